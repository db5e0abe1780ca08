package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/producer"
)

// ToggleLoader reads the feature toggles for a new scope.
type ToggleLoader func(ctx context.Context) (producer.Toggles, error)

// Manager holds the current Scope and replaces it on Reload.
//
// Toggles are read once per scope, so a toggle change takes effect when
// the scope is rebuilt. The watched instruments and registry listeners
// carry over; queued dialogs do not. Listeners are sent one dialog.OpReset
// change after each reload, and versions keep increasing across it.
type Manager struct {
	opts Options
	load ToggleLoader

	mu        sync.RWMutex
	scope     *Scope
	listeners []dialog.Listener
	closed    bool
}

// NewManager builds the first scope with freshly loaded toggles.
func NewManager(ctx context.Context, opts Options, load ToggleLoader) (*Manager, error) {
	m := &Manager{opts: opts, load: load}
	if opts.Logger == nil {
		m.opts.Logger = noopLogger{}
	}

	scope, err := m.build(ctx, m.opts.VersionBase)
	if err != nil {
		return nil, err
	}
	m.scope = scope
	return m, nil
}

// Scope returns the current scope.
func (m *Manager) Scope() *Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scope
}

// Subscribe attaches fn to the current registry and to every registry
// built by later reloads. Listeners stay attached for the manager's lifetime.
func (m *Manager) Subscribe(fn dialog.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, fn)
	if m.scope != nil {
		m.scope.Registry().Subscribe(fn)
	}
}

// Reload re-reads the toggles and swaps in a new scope watching the same
// instruments. On error the current scope is kept.
//
// Once the new scope is in place every listener receives a dialog.OpReset
// change carrying its view, so consumers stop showing dialogs that went
// away with the old registry.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	prev := m.scope
	next, err := m.build(ctx, prev.Registry().View().Version+1)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for _, fn := range m.listeners {
		next.Registry().Subscribe(fn)
	}

	for _, id := range prev.Watched() {
		if err := next.Watch(id); err != nil {
			next.Close()
			m.mu.Unlock()
			return fmt.Errorf("re-watching instrument %s: %w", id, err)
		}
	}

	m.scope = next
	prev.Close()
	listeners := append([]dialog.Listener(nil), m.listeners...)
	m.mu.Unlock()

	reset := dialog.Change{Op: dialog.OpReset, View: next.Registry().View()}
	for _, fn := range listeners {
		fn(reset)
	}

	m.opts.Logger.Info("orchestration scope reloaded",
		"watched", len(next.Watched()),
		"version", reset.View.Version,
	)
	return nil
}

// Close closes the current scope.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.scope.Close()
}

func (m *Manager) build(ctx context.Context, versionBase uint64) (*Scope, error) {
	opts := m.opts
	opts.VersionBase = versionBase
	if m.load != nil {
		toggles, err := m.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading toggles: %w", err)
		}
		opts.Toggles = toggles
	}
	return New(opts)
}
