package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDialogEvents     = "dialog_events"
	MeasurementInstrumentEvents = "instrument_events"
)

// DialogEvent is one dialog registry transition worth charting.
type DialogEvent struct {
	DialogID     string
	Kind         string
	InstrumentID string

	// Action is opened, replaced, closed or released.
	Action string

	// Pending is the queue length after the transition.
	Pending int

	// Suppressed reports whether a cool-down was active afterwards.
	Suppressed bool

	Time time.Time
}

// WriteDialogEvent records a dialog transition.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Nothing is written when the client is nil or disconnected, so callers
// can hold a nil *Client when telemetry is disabled.
//
// Example:
//
//	client.WriteDialogEvent(influxdb.DialogEvent{
//	    DialogID: "maintenance-result-5", Kind: "maintenance_result",
//	    InstrumentID: "5", Action: "opened", Pending: 1,
//	})
func (c *Client) WriteDialogEvent(e DialogEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(dialogPoint(e))
}

// WriteInstrumentEvent counts one instrument push event by type.
//
// Parameters:
//   - instrumentID: Instrument the event is about
//   - eventType: Event type, e.g. "maintenance_result"
func (c *Client) WriteInstrumentEvent(instrumentID, eventType string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(instrumentPoint(instrumentID, eventType, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func dialogPoint(e DialogEvent) *write.Point {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"action": e.Action,
	}
	if e.Kind != "" {
		tags["kind"] = e.Kind
	}
	if e.InstrumentID != "" {
		tags["instrument_id"] = e.InstrumentID
	}

	return write.NewPoint(
		MeasurementDialogEvents,
		tags,
		map[string]interface{}{
			"dialog_id":  e.DialogID,
			"pending":    e.Pending,
			"suppressed": e.Suppressed,
		},
		ts,
	)
}

func instrumentPoint(instrumentID, eventType string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementInstrumentEvents,
		map[string]string{
			"instrument_id": instrumentID,
			"type":          eventType,
		},
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)
}
