package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/producer"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// mockToggleSource returns a fresh snapshot of values on every load.
type mockToggleSource struct {
	values map[string]bool
	err    error
	loads  int
}

func (m *mockToggleSource) load(context.Context) (producer.Toggles, error) {
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return settings.NewSnapshot(m.values), nil
}

func newTestManager(t *testing.T, src *mockToggleSource) (*Manager, *events.Router) {
	t.Helper()
	router := events.NewRouter(nil)
	m, err := NewManager(context.Background(), Options{Router: router}, src.load)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m, router
}

func TestManager_ReloadAppliesToggles(t *testing.T) {
	src := &mockToggleSource{values: map[string]bool{settings.ToggleQCDialogs: false}}
	m, router := newTestManager(t, src)
	_ = m.Scope().Watch("5")

	router.Publish(events.ProcedureRejected{InstrumentID: "5"})
	if m.Scope().Registry().Has("qc-5") {
		t.Fatal("qc dialog opened while toggle off")
	}

	src.values[settings.ToggleQCDialogs] = true
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := m.Scope().Watched(); len(got) != 1 || got[0] != "5" {
		t.Errorf("Watched() after reload = %v, want [5]", got)
	}
	router.Publish(events.ProcedureRejected{InstrumentID: "5"})
	if !m.Scope().Registry().Has("qc-5") {
		t.Error("qc dialog not opened after toggle switched on")
	}
	if got := router.SubscriberCount(events.TypeProcedureRejected); got != 1 {
		t.Errorf("procedure_rejected subscribers = %d, want 1", got)
	}
}

func TestManager_ListenersSurviveReload(t *testing.T) {
	src := &mockToggleSource{values: map[string]bool{settings.ToggleWaitingDialogs: true}}
	m, router := newTestManager(t, src)

	var changes []dialog.Change
	m.Subscribe(func(c dialog.Change) { changes = append(changes, c) })

	_ = m.Scope().Watch("5")
	router.Publish(events.WaitingForUserAction{InstrumentID: "5"})

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	router.Publish(events.WaitingForUserAction{InstrumentID: "5"})

	wantOps := []dialog.Op{dialog.OpInserted, dialog.OpReset, dialog.OpInserted}
	if len(changes) != len(wantOps) {
		t.Fatalf("changes = %d, want %d", len(changes), len(wantOps))
	}
	for i, c := range changes {
		if c.Op != wantOps[i] {
			t.Errorf("change[%d].Op = %q, want %q", i, c.Op, wantOps[i])
		}
	}
}

func TestManager_ReloadResetsConsumers(t *testing.T) {
	src := &mockToggleSource{values: map[string]bool{
		settings.ToggleWaitingDialogs: true,
		settings.ToggleQCDialogs:      true,
	}}
	m, router := newTestManager(t, src)

	var changes []dialog.Change
	m.Subscribe(func(c dialog.Change) { changes = append(changes, c) })

	_ = m.Scope().Watch("5")
	router.Publish(events.WaitingForUserAction{InstrumentID: "5", Message: "first"})
	router.Publish(events.WaitingForUserAction{InstrumentID: "5", Message: "second"})
	router.Publish(events.ProcedureRejected{InstrumentID: "5"})
	before := changes[len(changes)-1].View.Version

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(changes) != 4 {
		t.Fatalf("changes after reload = %d, want 4", len(changes))
	}
	reset := changes[3]
	if reset.Op != dialog.OpReset {
		t.Fatalf("reload change op = %q, want %q", reset.Op, dialog.OpReset)
	}
	if reset.View.Visible != nil || reset.View.Pending != 0 {
		t.Errorf("reset view = %+v, want empty", reset.View)
	}
	if reset.View.Version <= before {
		t.Errorf("reset version = %d, want > %d", reset.View.Version, before)
	}

	router.Publish(events.WaitingForUserAction{InstrumentID: "5"})
	if len(changes) != 5 {
		t.Fatalf("changes = %d, want 5", len(changes))
	}
	if got := changes[4].View.Version; got <= reset.View.Version {
		t.Errorf("version after reload = %d, want > %d", got, reset.View.Version)
	}
}

func TestManager_ReloadErrorKeepsScope(t *testing.T) {
	src := &mockToggleSource{}
	m, _ := newTestManager(t, src)
	before := m.Scope()

	src.err = errors.New("database is locked")
	if err := m.Reload(context.Background()); err == nil {
		t.Fatal("Reload() error = nil")
	}
	if m.Scope() != before {
		t.Error("scope replaced despite load error")
	}
	if err := before.Watch("5"); err != nil {
		t.Errorf("old scope unusable after failed reload: %v", err)
	}
}

func TestNewManager_LoadError(t *testing.T) {
	src := &mockToggleSource{err: errors.New("no such table: feature_toggles")}
	_, err := NewManager(context.Background(), Options{Router: events.NewRouter(nil)}, src.load)
	if err == nil {
		t.Fatal("NewManager() error = nil")
	}
}

func TestManager_Close(t *testing.T) {
	src := &mockToggleSource{}
	m, _ := newTestManager(t, src)
	m.Close()

	if err := m.Reload(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Reload() after Close error = %v, want ErrClosed", err)
	}
	m.Close()
}
