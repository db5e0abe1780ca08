package dialog

import "github.com/google/uuid"

// Key derives the deterministic id of a device-correlated dialog, e.g.
// Key("waiting", "5") == "waiting-5". Repeated events for the same
// instrument therefore land on the same queue entry.
func Key(workflow, instrumentID string) string {
	return workflow + "-" + instrumentID
}

// NewID returns a random id for dialogs that are not tied to an instrument.
func NewID() string {
	return uuid.NewString()
}
