package dialog

// Entry is one queued dialog.
type Entry struct {
	// ID is the stable identity used for de-duplication and targeted removal.
	// Producers that follow a physical instrument use Key(workflow, instrumentID).
	ID string `json:"id"`

	// Payload is rendered by the dashboard. The registry never inspects it.
	Payload Payload `json:"payload"`
}

// Payload is the renderable content of a dialog plus its user-action callbacks.
type Payload struct {
	Kind         string         `json:"kind"`
	InstrumentID string         `json:"instrument_id,omitempty"`
	Title        string         `json:"title"`
	Body         string         `json:"body,omitempty"`
	Data         map[string]any `json:"data,omitempty"`

	// OnConfirm and OnClose run when the user presses the matching button.
	// Producers wire them to their own close transition, which removes the entry.
	OnConfirm func() `json:"-"`
	OnClose   func() `json:"-"`
}

// Actions lists the user actions the dashboard should offer.
func (p Payload) Actions() []string {
	actions := make([]string, 0, 2)
	if p.OnConfirm != nil {
		actions = append(actions, ActionConfirm)
	}
	if p.OnClose != nil {
		actions = append(actions, ActionClose)
	}
	return actions
}

// User action names.
const (
	ActionConfirm = "confirm"
	ActionClose   = "close"
)

// View is the projection consumers render from.
type View struct {
	// Visible is the front entry, or nil when the queue is empty or a
	// cool-down is active.
	Visible *Entry

	Suppressed bool
	Pending    int

	// Version increases with every state change so consumers that receive
	// views concurrently can drop stale ones.
	Version uint64
}

// Op names the kind of state change a listener is told about.
type Op string

// Registry change operations.
const (
	OpInserted Op = "inserted"
	OpReplaced Op = "replaced"
	OpRemoved  Op = "removed"
	OpReleased Op = "released"

	// OpReset announces a replacement registry. View is its full state.
	OpReset Op = "reset"
)

// Change describes one registry mutation.
type Change struct {
	Op Op
	ID string

	// Entry is a copy of the entry that was upserted or removed. It is nil
	// for OpReleased and OpReset.
	Entry *Entry

	View View
}

// Listener receives registry changes.
type Listener func(Change)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
