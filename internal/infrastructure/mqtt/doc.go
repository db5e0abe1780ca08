// Package mqtt provides MQTT client connectivity for Lab Panel Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Instruments publish push events (waiting for user action, maintenance
// results, status changes) to the broker. The core subscribes to
// labpanel/instrument/+/event/+ and hands every message to the device
// event router.
//
//	Instruments → MQTT Broker → Lab Panel Core → Dashboards
//
// # Security Considerations
//
//   - TLS should be enabled outside the lab network (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllInstrumentEvents(), 1, bridge.Handle)
package mqtt
