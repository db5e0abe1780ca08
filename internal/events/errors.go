package events

import "errors"

// Domain errors for the events package.
var (
	// ErrUnknownType is returned for an event type the router does not know.
	ErrUnknownType = errors.New("events: unknown event type")

	// ErrDecode is returned when a payload is not valid JSON or fails its schema.
	ErrDecode = errors.New("events: decode failed")

	// ErrUnknownTopic is returned by the bridge for topics outside the
	// instrument event namespace.
	ErrUnknownTopic = errors.New("events: unknown topic")

	// ErrInstrumentMismatch is returned when the instrument named in the
	// topic differs from the one in the payload.
	ErrInstrumentMismatch = errors.New("events: instrument mismatch")
)
