package dialog

import (
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
)

// Options configures a Registry.
type Options struct {
	// Cooldown hides the slot for this long when the front changes to a
	// different dialog. Zero disables the cool-down.
	Cooldown time.Duration

	// Clock drives the cool-down timer. Defaults to clock.Real().
	Clock clock.Clock

	// VersionBase is the version of the empty registry. A registry that
	// replaces another starts above the old one's version so consumers
	// that drop stale views keep working across the swap.
	VersionBase uint64

	Logger Logger
}

// Registry is the ordered store of queued dialogs plus the suppression flag.
//
// It is created when an orchestration scope mounts and torn down with
// Close when the scope unmounts. Nothing is persisted.
type Registry struct {
	mu         sync.Mutex
	entries    []*Entry
	suppressed bool
	closed     bool
	version    uint64

	cooldown   time.Duration
	clock      clock.Clock
	release    clock.Timer
	releaseSeq uint64

	listeners  []subscriber
	listenerID uint64

	logger Logger
}

type subscriber struct {
	id uint64
	fn Listener
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	return &Registry{
		version:  opts.VersionBase,
		cooldown: opts.Cooldown,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Upsert queues a dialog or replaces the one with the same id in place.
//
// An empty id is replaced with a generated one. The id actually used is
// returned. Upsert on a closed registry is ignored.
func (r *Registry) Upsert(e Entry) string {
	if e.ID == "" {
		e.ID = NewID()
	}
	entry := &e

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return e.ID
	}

	prev := r.entries
	next := make([]*Entry, len(prev), len(prev)+1)
	copy(next, prev)

	op := OpInserted
	if i := indexOf(prev, e.ID); i >= 0 {
		next[i] = entry
		op = OpReplaced
	} else {
		next = append(next, entry)
	}

	r.commitLocked(prev, next)
	change := r.changeLocked(op, e.ID, entry)
	listeners := r.listenersLocked()
	r.mu.Unlock()

	r.logger.Debug("dialog upserted", "dialog_id", e.ID, "op", op, "pending", change.View.Pending)
	notify(listeners, change)
	return e.ID
}

// Remove drops the dialog with the given id. Unknown ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	prev := r.entries
	i := indexOf(prev, id)
	if i < 0 {
		r.mu.Unlock()
		return
	}

	next := make([]*Entry, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)

	removed := prev[i]
	r.commitLocked(prev, next)
	change := r.changeLocked(OpRemoved, id, removed)
	listeners := r.listenersLocked()
	r.mu.Unlock()

	r.logger.Debug("dialog removed",
		"dialog_id", id,
		"pending", change.View.Pending,
		"suppressed", change.View.Suppressed,
	)
	notify(listeners, change)
}

// commitLocked swaps in the new queue after running the cool-down decision.
func (r *Registry) commitLocked(prev, next []*Entry) {
	suppress := ShouldSuppress(r.cooldown, prev, next)
	r.entries = next
	if suppress {
		r.suppressLocked()
	}
}

// Visible returns the dialog the panel should render, if any.
func (r *Registry) Visible() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := r.visibleLocked(); v != nil {
		return *v, true
	}
	return Entry{}, false
}

// View returns the current projection.
func (r *Registry) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Entries returns the queued ids, front first.
func (r *Registry) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// Get returns a copy of the queued entry with the given id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := indexOf(r.entries, id); i >= 0 {
		return *r.entries[i], true
	}
	return Entry{}, false
}

// Has reports whether a dialog with the given id is queued.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return indexOf(r.entries, id) >= 0
}

// Suppressed reports whether a cool-down window is active.
func (r *Registry) Suppressed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressed
}

// Subscribe registers a change listener. Listeners run in registration
// order. The returned function removes the listener.
func (r *Registry) Subscribe(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listenerID++
	id := r.listenerID
	r.listeners = append(r.listeners, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.listeners {
			if s.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close tears the registry down: the cool-down timer is stopped, queued
// dialogs and listeners are dropped, and later mutations are ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if r.release != nil {
		r.release.Stop()
		r.release = nil
	}
	r.entries = nil
	r.suppressed = false
	r.listeners = nil
}

func (r *Registry) visibleLocked() *Entry {
	if r.suppressed || len(r.entries) == 0 {
		return nil
	}
	return r.entries[0]
}

func (r *Registry) viewLocked() View {
	v := View{
		Suppressed: r.suppressed,
		Pending:    len(r.entries),
		Version:    r.version,
	}
	if front := r.visibleLocked(); front != nil {
		cp := *front
		v.Visible = &cp
	}
	return v
}

// changeLocked bumps the version and captures the resulting view.
func (r *Registry) changeLocked(op Op, id string, e *Entry) Change {
	r.version++
	c := Change{Op: op, ID: id, View: r.viewLocked()}
	if e != nil {
		cp := *e
		c.Entry = &cp
	}
	return c
}

func (r *Registry) listenersLocked() []Listener {
	out := make([]Listener, len(r.listeners))
	for i, s := range r.listeners {
		out[i] = s.fn
	}
	return out
}

func notify(listeners []Listener, change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}

func indexOf(entries []*Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
