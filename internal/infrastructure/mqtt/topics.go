package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the lab panel MQTT namespace.
//
// Instruments publish their push events on a flat per-instrument scheme:
// labpanel/instrument/{instrument_id}/event/{event_type}
const (
	// TopicPrefix is the root of every lab panel topic.
	TopicPrefix = "labpanel"

	// TopicPrefixInstrument is the base for instrument-originated topics.
	TopicPrefixInstrument = "labpanel/instrument"

	// TopicPrefixPanel is the base for topics published by the panel core.
	TopicPrefixPanel = "labpanel/panel"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "labpanel/system"
)

// Topics provides builders for lab panel MQTT topics.
//
//	topics := mqtt.Topics{}
//	t := topics.InstrumentEvent("5", "maintenance_result")
//	// Returns: "labpanel/instrument/5/event/maintenance_result"
type Topics struct{}

// InstrumentEvent returns the topic an instrument publishes one event type on.
//
// Example: labpanel/instrument/5/event/detailed_status_changed
func (Topics) InstrumentEvent(instrumentID, eventType string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefixInstrument, instrumentID, eventType)
}

// AllInstrumentEvents returns a pattern matching every event of every instrument.
//
// Pattern: labpanel/instrument/+/event/+
func (Topics) AllInstrumentEvents() string {
	return fmt.Sprintf("%s/+/event/+", TopicPrefixInstrument)
}

// PanelDialog returns the retained topic carrying the visible dialog.
//
// Example: labpanel/panel/lab-001/dialog
func (Topics) PanelDialog(labID string) string {
	return fmt.Sprintf("%s/%s/dialog", TopicPrefixPanel, labID)
}

// SystemStatus returns the system status topic.
//
// Example: labpanel/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ParseInstrumentEvent splits an instrument event topic into its
// instrument id and event type. ok is false for any other topic shape.
func ParseInstrumentEvent(topic string) (instrumentID, eventType string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixInstrument+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "event" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
