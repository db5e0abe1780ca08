package orchestrator

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/producer"
)

// Logger defines the logging interface used by the orchestrator.
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

// Options configures a Scope.
type Options struct {
	// Cooldown is the registry's cool-down between two different dialogs.
	Cooldown time.Duration

	// AutoCloseDelay is how long self-closing dialogs wait on RUNNING.
	AutoCloseDelay time.Duration

	// Router delivers instrument events. Required.
	Router producer.Router

	// Navigator receives navigation requests from producers. May be nil.
	Navigator producer.Navigator

	// Toggles gates the producers. Nil enables every workflow.
	Toggles producer.Toggles

	// VersionBase seeds the registry version. See dialog.Options.
	VersionBase uint64

	Clock  clock.Clock
	Logger Logger
}

// Scope is one dialog orchestration scope.
//
// Thread Safety: all methods are safe for concurrent use.
type Scope struct {
	registry *dialog.Registry
	deps     producer.Deps
	logger   Logger

	mu      sync.Mutex
	watched map[string][]producer.Producer
	closed  bool
}

// New creates a scope with an empty registry and no watched instruments.
func New(opts Options) (*Scope, error) {
	if opts.Router == nil {
		return nil, ErrRouterRequired
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	registry := dialog.NewRegistry(dialog.Options{
		Cooldown:    opts.Cooldown,
		Clock:       opts.Clock,
		Logger:      opts.Logger,
		VersionBase: opts.VersionBase,
	})

	return &Scope{
		registry: registry,
		deps: producer.Deps{
			Registry:       registry,
			Router:         opts.Router,
			Navigator:      opts.Navigator,
			Toggles:        opts.Toggles,
			Clock:          opts.Clock,
			AutoCloseDelay: opts.AutoCloseDelay,
			Logger:         opts.Logger,
		},
		logger:  opts.Logger,
		watched: make(map[string][]producer.Producer),
	}, nil
}

// Registry returns the scope's dialog registry.
func (s *Scope) Registry() *dialog.Registry {
	return s.registry
}

// Watch starts every producer for instrumentID. Watching an instrument
// that is already watched is a no-op.
func (s *Scope) Watch(instrumentID string) error {
	if strings.TrimSpace(instrumentID) == "" {
		return ErrInvalidInstrument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.watched[instrumentID]; ok {
		return nil
	}

	producers := producer.New(s.deps)
	for _, p := range producers {
		p.Bind(instrumentID)
	}
	s.watched[instrumentID] = producers

	s.logger.Info("watching instrument", "instrument_id", instrumentID)
	return nil
}

// Unwatch stops the producers for instrumentID and removes the dialogs
// they opened.
func (s *Scope) Unwatch(instrumentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	producers, ok := s.watched[instrumentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, instrumentID)
	}
	delete(s.watched, instrumentID)

	for _, p := range producers {
		p.Unbind(true)
	}

	s.logger.Info("stopped watching instrument", "instrument_id", instrumentID)
	return nil
}

// Rebind moves the producers watching from over to to, as when an
// instrument-scoped view switches instrument. Timers armed for from are
// cancelled; dialogs it opened stay queued until the user closes them.
func (s *Scope) Rebind(from, to string) error {
	if strings.TrimSpace(to) == "" {
		return ErrInvalidInstrument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	producers, ok := s.watched[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, from)
	}
	if from == to {
		return nil
	}
	if _, ok := s.watched[to]; ok {
		// to already has producers; the from set is no longer needed.
		for _, p := range producers {
			p.Unbind(false)
		}
		delete(s.watched, from)
		s.logger.Info("rebound instrument producers", "from", from, "to", to, "merged", true)
		return nil
	}

	for _, p := range producers {
		p.Bind(to)
	}
	delete(s.watched, from)
	s.watched[to] = producers

	s.logger.Info("rebound instrument producers", "from", from, "to", to)
	return nil
}

// Watched returns the watched instrument ids, sorted.
func (s *Scope) Watched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Confirm runs the confirm action of the queued dialog id.
func (s *Scope) Confirm(id string) error {
	return s.act(id, dialog.ActionConfirm, func(p dialog.Payload) func() { return p.OnConfirm })
}

// Dismiss runs the close action of the queued dialog id.
func (s *Scope) Dismiss(id string) error {
	return s.act(id, dialog.ActionClose, func(p dialog.Payload) func() { return p.OnClose })
}

// act runs a payload callback outside any lock. A dialog without the
// callback is removed directly so the user can never get stuck on it.
func (s *Scope) act(id, action string, pick func(dialog.Payload) func()) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	e, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDialogNotFound, id)
	}

	if fn := pick(e.Payload); fn != nil {
		fn()
	} else {
		s.registry.Remove(id)
	}

	s.logger.Debug("dialog action", "dialog_id", id, "action", action)
	return nil
}

// Close unbinds every producer and tears the registry down. Further
// calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watched := s.watched
	s.watched = make(map[string][]producer.Producer)
	s.mu.Unlock()

	for _, producers := range watched {
		for _, p := range producers {
			p.Unbind(false)
		}
	}
	s.registry.Close()
}
