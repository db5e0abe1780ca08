// Package influxdb provides InfluxDB connectivity for dialog telemetry.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing and health monitoring.
//
// # Purpose
//
// Two measurements are written:
//   - dialog_events: one point per dialog registry transition, tagged by
//     action, dialog kind and instrument, with the queue length afterwards
//   - instrument_events: one point per instrument push event, tagged by type
//
// Together they answer how often operators are interrupted, by which
// instrument, and how long dialogs queue behind each other.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off; a nil *Client ignores writes
//	}
//	defer client.Close()
//
//	client.WriteInstrumentEvent("5", "maintenance_result")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via
// the SetOnError callback. Connection and health check errors are
// returned directly.
package influxdb
