package producer

import (
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
	"github.com/nerrad567/labpanel-core/internal/dialog"
)

// State is the lifecycle state of one workflow dialog.
type State int

// Machine states.
const (
	StateIdle State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason says what closed a dialog.
type CloseReason string

// Close reasons.
const (
	ReasonEvent   CloseReason = "event"
	ReasonTimer   CloseReason = "timer"
	ReasonConfirm CloseReason = "confirm"
	ReasonDismiss CloseReason = "dismiss"
	ReasonUnwatch CloseReason = "unwatch"
)

// Registry is the part of the dialog registry producers use.
type Registry interface {
	Upsert(e dialog.Entry) string
	Remove(id string)
	Has(id string) bool
}

// Machine is the Idle/Open/Closed state machine behind one workflow dialog.
//
// It holds at most one auto-close timer. A timer that was cancelled after
// it had already fired is fenced off by a sequence number, so a stale
// callback never removes the dialog.
//
// The registry is the source of truth for whether the dialog is open.
// Several machines can share a key over time (an instrument rebound away
// and back), so a machine adopts a queued dialog with its key and treats
// one removed elsewhere as closed.
//
// Thread Safety: all methods are safe for concurrent use. Registry calls
// happen while the machine's lock is held, so registry listeners must not
// call back into the same machine synchronously. The onClose hook runs
// after the lock is released.
type Machine struct {
	mu       sync.Mutex
	key      string
	state    State
	timer    clock.Timer
	timerSeq uint64

	registry Registry
	clock    clock.Clock
	onClose  func(CloseReason)
	logger   Logger
}

// NewMachine creates a machine in StateIdle.
//
// Parameters:
//   - key: dialog id, normally dialog.Key(workflow, instrumentID)
//   - registry: where the dialog is queued
//   - clk: drives the auto-close timer
//   - onClose: side effect run once per Open→Closed transition (may be nil)
//   - logger: may be nil
func NewMachine(key string, registry Registry, clk clock.Clock, onClose func(CloseReason), logger Logger) *Machine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Machine{
		key:      key,
		registry: registry,
		clock:    clk,
		onClose:  onClose,
		logger:   logger,
	}
}

// Key returns the dialog id this machine manages.
func (m *Machine) Key() string {
	return m.key
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Armed reports whether an auto-close timer is outstanding.
func (m *Machine) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Open queues the dialog, or replaces it in place when already open.
//
// Missing OnConfirm/OnClose callbacks are filled in with a Close using
// ReasonConfirm/ReasonDismiss, so every dialog can be closed by the user.
// An armed timer keeps running across a replacement.
func (m *Machine) Open(p dialog.Payload) {
	if p.OnConfirm == nil {
		p.OnConfirm = func() { m.Close(ReasonConfirm) }
	}
	if p.OnClose == nil {
		p.OnClose = func() { m.Close(ReasonDismiss) }
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reopened := m.state != StateOpen
	m.state = StateOpen
	m.registry.Upsert(dialog.Entry{ID: m.key, Payload: p})

	if reopened {
		m.logger.Debug("dialog opened", "dialog_id", m.key)
	}
}

// Close removes the dialog and cancels any armed timer. The onClose hook
// runs, and Close reports true, only when a queued dialog was closed.
func (m *Machine) Close(reason CloseReason) bool {
	m.mu.Lock()
	m.stopTimerLocked()
	if !m.liveLocked() {
		m.mu.Unlock()
		return false
	}
	m.state = StateClosed
	m.registry.Remove(m.key)
	m.mu.Unlock()

	m.logger.Debug("dialog closed", "dialog_id", m.key, "reason", string(reason))
	if m.onClose != nil {
		m.onClose(reason)
	}
	return true
}

// ArmClose starts the auto-close countdown. It is a no-op unless the
// dialog is open with no countdown already running: a repeated qualifying
// event must not push the deadline back.
func (m *Machine) ArmClose(delay time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil || !m.liveLocked() {
		return false
	}

	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(seq) })

	m.logger.Debug("dialog auto-close armed", "dialog_id", m.key, "delay", delay.String())
	return true
}

// Disarm cancels the countdown without closing the dialog.
func (m *Machine) Disarm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer == nil {
		return false
	}
	m.stopTimerLocked()
	m.logger.Debug("dialog auto-close disarmed", "dialog_id", m.key)
	return true
}

// liveLocked reconciles the state with the registry and reports whether
// the dialog is open.
func (m *Machine) liveLocked() bool {
	queued := m.registry.Has(m.key)
	switch {
	case m.state == StateOpen && !queued:
		m.state = StateClosed
	case m.state != StateOpen && queued:
		m.logger.Debug("dialog adopted", "dialog_id", m.key)
		m.state = StateOpen
	}
	return m.state == StateOpen
}

// stopTimerLocked cancels the timer and invalidates any callback already in flight.
func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Machine) fire(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.Close(ReasonTimer)
}
