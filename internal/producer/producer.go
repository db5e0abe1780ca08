package producer

import (
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
)

// DefaultAutoCloseDelay is how long an instrument must report RUNNING
// before a self-closing dialog goes away.
const DefaultAutoCloseDelay = 15 * time.Second

// Workflow names, also the prefix of each dialog key.
const (
	WorkflowWaiting           = "waiting"
	WorkflowMaintenanceResult = "maintenance-result"
	WorkflowQC                = "qc"
	WorkflowSampleReminder    = "sample-reminder"
)

// Dialog kinds carried in the payload for the dashboard and history.
const (
	KindWaiting           = "waiting_for_user_action"
	KindMaintenanceResult = "maintenance_result"
	KindQC                = "qc_procedure"
	KindSampleReminder    = "sample_reminder"
)

// Router is the part of the event router producers subscribe through.
type Router interface {
	Subscribe(t events.Type, h events.Handler) (unsubscribe func())
}

// Navigator is the part of the navigation tracker producers drive.
type Navigator interface {
	Current() string
	Navigate(route string) error
	UpIf(match func(current string) bool) bool
}

// Toggles reports whether a feature toggle is switched on.
type Toggles interface {
	Enabled(key string) bool
}

// Logger defines the logging interface used by producers.
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

// Deps holds what every producer needs.
type Deps struct {
	Registry  Registry
	Router    Router
	Navigator Navigator

	// Toggles gates each workflow. Nil enables every workflow.
	Toggles Toggles

	// Clock drives auto-close timers. Defaults to clock.Real().
	Clock clock.Clock

	// AutoCloseDelay defaults to DefaultAutoCloseDelay when zero.
	AutoCloseDelay time.Duration

	Logger Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.AutoCloseDelay <= 0 {
		d.AutoCloseDelay = DefaultAutoCloseDelay
	}
	if d.Logger == nil {
		d.Logger = noopLogger{}
	}
	return d
}

// Producer follows one workflow for one instrument.
type Producer interface {
	// Workflow returns the workflow name, e.g. "qc".
	Workflow() string

	// Bind starts following instrumentID, replacing any previous binding.
	Bind(instrumentID string)

	// Unbind stops following the instrument. An open dialog is closed
	// when closeDialog is set, otherwise it stays queued for the user.
	Unbind(closeDialog bool)

	// InstrumentID returns the bound instrument, or "".
	InstrumentID() string

	// Machine returns the state machine of the current binding, or nil.
	Machine() *Machine
}

// New returns one producer of every workflow, unbound.
func New(deps Deps) []Producer {
	return []Producer{
		NewWaiting(deps),
		NewMaintenanceResult(deps),
		NewQC(deps),
		NewSampleReminder(deps),
	}
}

// handlerFunc handles one event for the binding it was created for.
type handlerFunc func(b binding, e events.Event)

// binding is one producer's attachment to one instrument.
type binding struct {
	instrumentID string
	machine      *Machine
}

// base implements binding bookkeeping shared by all producers.
type base struct {
	workflow string
	toggle   string
	deps     Deps

	// onClose builds the side effect run when the dialog for a binding closes.
	onClose func(instrumentID string) func(CloseReason)

	// handlers are subscribed for every binding.
	handlers map[events.Type]handlerFunc

	mu      sync.Mutex
	current *binding
	unsubs  []func()
}

func (b *base) init(workflow, toggle string, deps Deps) {
	b.workflow = workflow
	b.toggle = toggle
	b.deps = deps.withDefaults()
}

func (b *base) Workflow() string {
	return b.workflow
}

func (b *base) InstrumentID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return ""
	}
	return b.current.instrumentID
}

func (b *base) Machine() *Machine {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	return b.current.machine
}

// Bind subscribes afresh for instrumentID. The previous binding's timer is
// cancelled and its subscriptions dropped; a dialog it opened stays queued
// and can still be closed through its own callbacks.
func (b *base) Bind(instrumentID string) {
	var onClose func(CloseReason)
	if b.onClose != nil {
		onClose = b.onClose(instrumentID)
	}
	bd := &binding{
		instrumentID: instrumentID,
		machine: NewMachine(
			dialog.Key(b.workflow, instrumentID),
			b.deps.Registry,
			b.deps.Clock,
			onClose,
			b.deps.Logger,
		),
	}

	b.mu.Lock()
	prev, prevUnsubs := b.current, b.unsubs
	b.current = bd
	b.unsubs = nil
	b.mu.Unlock()

	release(prev, prevUnsubs)

	unsubs := make([]func(), 0, len(b.handlers))
	for t, h := range b.handlers {
		unsubs = append(unsubs, b.deps.Router.Subscribe(t, b.dispatch(bd, h)))
	}

	b.mu.Lock()
	if b.current != bd {
		// Rebound concurrently; this binding is already stale.
		b.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	b.unsubs = unsubs
	b.mu.Unlock()

	b.deps.Logger.Debug("producer bound", "workflow", b.workflow, "instrument_id", instrumentID)
}

func (b *base) Unbind(closeDialog bool) {
	b.mu.Lock()
	prev, prevUnsubs := b.current, b.unsubs
	b.current = nil
	b.unsubs = nil
	b.mu.Unlock()

	if prev == nil {
		return
	}
	release(prev, prevUnsubs)
	if closeDialog {
		prev.machine.Close(ReasonUnwatch)
	}
	b.deps.Logger.Debug("producer unbound", "workflow", b.workflow, "instrument_id", prev.instrumentID)
}

func release(prev *binding, unsubs []func()) {
	for _, u := range unsubs {
		u()
	}
	if prev != nil {
		prev.machine.Disarm()
	}
}

// dispatch wraps h so it only sees events for bd's instrument, and only
// while bd is the current binding. A delivery already in flight when the
// producer was rebound is dropped here.
func (b *base) dispatch(bd *binding, h handlerFunc) events.Handler {
	return func(e events.Event) {
		if e.Instrument() != bd.instrumentID {
			return
		}
		b.mu.Lock()
		live := b.current == bd
		b.mu.Unlock()
		if !live {
			return
		}
		h(*bd, e)
	}
}

// open opens the dialog unless the workflow's toggle is off.
func (b *base) open(bd binding, p dialog.Payload) {
	if b.deps.Toggles != nil && !b.deps.Toggles.Enabled(b.toggle) {
		b.deps.Logger.Debug("dialog suppressed by toggle",
			"workflow", b.workflow,
			"instrument_id", bd.instrumentID,
			"toggle", b.toggle,
		)
		return
	}
	p.InstrumentID = bd.instrumentID
	bd.machine.Open(p)
}

// followHealth arms the auto-close countdown on RUNNING and cancels it on
// any other state, OFFLINE included.
func (b *base) followHealth(bd binding, e events.Event) {
	status, ok := e.(events.DetailedStatusChanged)
	if !ok {
		return
	}
	if status.HealthState == events.HealthRunning {
		bd.machine.ArmClose(b.deps.AutoCloseDelay)
		return
	}
	bd.machine.Disarm()
}
