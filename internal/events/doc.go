// Package events is the device event router for Lab Panel Core.
//
// Instruments push typed, instrument-scoped notifications (waiting for
// user action, operation progress, maintenance results, QC procedure
// outcomes, health-state changes). The router fans each one out to every
// current subscriber for its type; nothing is consumed or buffered.
//
// Architecture:
//
//	MQTT labpanel/instrument/{id}/event/{type}
//	        │
//	        ▼
//	┌──────────────┐  schema check + decode  ┌──────────────┐
//	│    Bridge    │────────────────────────▶│    Router    │──▶ handler 1
//	│ (bridge.go)  │                         │ (router.go)  │──▶ handler 2
//	└──────────────┘                         └──────────────┘──▶ ...
//
// Payloads are validated against embedded JSON Schemas before decoding.
// A payload that fails is logged and dropped; no subscriber sees it.
//
// # Ordering
//
// Handlers for one event type run in registration order, on the goroutine
// that delivered the message. A handler that panics is recovered and
// logged so the remaining handlers still run.
//
// # Usage
//
//	router := events.NewRouter(log)
//	unsubscribe := router.Subscribe(events.TypeWaitingForUserAction, func(e events.Event) {
//	    w := e.(events.WaitingForUserAction)
//	    ...
//	})
//	defer unsubscribe()
//
//	bridge := events.NewBridge(router, mqttClient, 1, log)
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
package events
