package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/navigation"
)

func newTestScope(t *testing.T, cooldown time.Duration) (*Scope, *events.Router, *navigation.Tracker, *clock.Fake) {
	t.Helper()
	router := events.NewRouter(nil)
	nav := navigation.NewTracker()
	fc := clock.NewFake()

	s, err := New(Options{
		Cooldown:  cooldown,
		Router:    router,
		Navigator: nav,
		Clock:     fc,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s, router, nav, fc
}

func TestNew_RequiresRouter(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrRouterRequired) {
		t.Errorf("New() error = %v, want ErrRouterRequired", err)
	}
}

// ============================================================================
// Watching instruments
// ============================================================================

func TestScope_WatchRoutesEvents(t *testing.T) {
	s, router, _, _ := newTestScope(t, 0)

	if err := s.Watch("5"); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := s.Watch("5"); err != nil {
		t.Fatalf("second Watch() error = %v", err)
	}
	if got := router.SubscriberCount(events.TypeMaintenanceResult); got != 2 {
		t.Errorf("maintenance_result subscribers = %d, want 2 (result + reminder)", got)
	}

	router.Publish(events.ProcedureRejected{InstrumentID: "5", Reason: "drift"})
	router.Publish(events.ProcedureRejected{InstrumentID: "9", Reason: "drift"})

	ids := s.Registry().Entries()
	if len(ids) != 1 || ids[0] != "qc-5" {
		t.Errorf("Entries() = %v, want [qc-5]", ids)
	}
}

func TestScope_WatchRejectsEmptyID(t *testing.T) {
	s, _, _, _ := newTestScope(t, 0)
	if err := s.Watch("  "); !errors.Is(err, ErrInvalidInstrument) {
		t.Errorf("Watch() error = %v, want ErrInvalidInstrument", err)
	}
}

func TestScope_Unwatch(t *testing.T) {
	s, router, _, _ := newTestScope(t, 0)
	_ = s.Watch("5")
	router.Publish(events.WaitingForUserAction{InstrumentID: "5"})

	if err := s.Unwatch("5"); err != nil {
		t.Fatalf("Unwatch() error = %v", err)
	}
	if s.Registry().Has("waiting-5") {
		t.Error("waiting-5 still queued after Unwatch")
	}
	for _, typ := range events.Types() {
		if n := router.SubscriberCount(typ); n != 0 {
			t.Errorf("%s subscribers = %d after Unwatch", typ, n)
		}
	}
	if err := s.Unwatch("5"); !errors.Is(err, ErrNotWatched) {
		t.Errorf("second Unwatch() error = %v, want ErrNotWatched", err)
	}
}

func TestScope_Rebind(t *testing.T) {
	s, router, _, fc := newTestScope(t, 0)
	_ = s.Watch("5")

	router.Publish(events.MaintenanceResult{Source: events.InstrumentRef{ID: "5"}, Success: true})
	router.Publish(events.DetailedStatusChanged{InstrumentID: "5", HealthState: events.HealthRunning})

	if err := s.Rebind("5", "7"); err != nil {
		t.Fatalf("Rebind() error = %v", err)
	}
	if fc.Pending() != 0 {
		t.Errorf("pending timers = %d after rebind, want 0", fc.Pending())
	}
	if got := s.Watched(); len(got) != 1 || got[0] != "7" {
		t.Errorf("Watched() = %v, want [7]", got)
	}
	if got := router.SubscriberCount(events.TypeDetailedStatusChanged); got != 2 {
		t.Errorf("detailed_status_changed subscribers = %d, want 2", got)
	}

	router.Publish(events.ProcedureRejected{InstrumentID: "7"})
	if !s.Registry().Has("qc-7") {
		t.Error("rebound producers ignore instrument 7")
	}
	if !s.Registry().Has("maintenance-result-5") {
		t.Error("dialog for instrument 5 dropped by rebind")
	}

	if err := s.Rebind("5", "8"); !errors.Is(err, ErrNotWatched) {
		t.Errorf("Rebind() from unwatched error = %v, want ErrNotWatched", err)
	}
}

func TestScope_RebindRoundTrip(t *testing.T) {
	s, router, _, fc := newTestScope(t, 0)
	_ = s.Watch("5")

	router.Publish(events.WaitingForUserAction{InstrumentID: "5", Message: "Load rack 2"})
	router.Publish(events.MaintenanceResult{Source: events.InstrumentRef{ID: "5"}, Success: true})

	if err := s.Rebind("5", "7"); err != nil {
		t.Fatalf("Rebind(5, 7) error = %v", err)
	}
	if err := s.Rebind("7", "5"); err != nil {
		t.Fatalf("Rebind(7, 5) error = %v", err)
	}

	router.Publish(events.OperationProgress{InstrumentID: "5", Complete: true})
	if s.Registry().Has("waiting-5") {
		t.Error("waiting-5 survived progress after the round trip")
	}

	router.Publish(events.DetailedStatusChanged{InstrumentID: "5", HealthState: events.HealthRunning})
	fc.Advance(15 * time.Second)
	if s.Registry().Has("maintenance-result-5") {
		t.Error("maintenance-result-5 survived the countdown after the round trip")
	}
}

// infoLogger records Info messages.
type infoLogger struct {
	noopLogger
	infos []string
}

func (l *infoLogger) Info(msg string, _ ...any) {
	l.infos = append(l.infos, msg)
}

func TestScope_RebindOntoWatchedInstrument(t *testing.T) {
	router := events.NewRouter(nil)
	logger := &infoLogger{}
	s, err := New(Options{Router: router, Clock: clock.NewFake(), Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	_ = s.Watch("5")
	_ = s.Watch("7")
	logger.infos = nil

	if err := s.Rebind("5", "7"); err != nil {
		t.Fatalf("Rebind() error = %v", err)
	}
	if len(logger.infos) != 1 || logger.infos[0] != "rebound instrument producers" {
		t.Errorf("logged %v, want one rebind entry", logger.infos)
	}

	router.Publish(events.ProcedureRejected{InstrumentID: "7"})
	if got := router.SubscriberCount(events.TypeProcedureRejected); got != 1 {
		t.Errorf("procedure_rejected subscribers = %d, want 1", got)
	}
	if got := s.Watched(); len(got) != 1 || got[0] != "7" {
		t.Errorf("Watched() = %v, want [7]", got)
	}
}

// ============================================================================
// User actions
// ============================================================================

func TestScope_ConfirmAndDismiss(t *testing.T) {
	tests := []struct {
		name string
		act  func(s *Scope, id string) error
	}{
		{"confirm", (*Scope).Confirm},
		{"dismiss", (*Scope).Dismiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, router, _, _ := newTestScope(t, 0)
			_ = s.Watch("5")
			router.Publish(events.ProcedureRejected{InstrumentID: "5"})

			if err := tt.act(s, "qc-5"); err != nil {
				t.Fatalf("error = %v", err)
			}
			if s.Registry().Has("qc-5") {
				t.Error("qc-5 still queued")
			}

			// The producer's machine is closed, so a new rejection reopens it.
			router.Publish(events.ProcedureRejected{InstrumentID: "5"})
			if !s.Registry().Has("qc-5") {
				t.Error("qc-5 did not reopen")
			}
		})
	}
}

func TestScope_ActionWithoutCallbackRemoves(t *testing.T) {
	s, _, _, _ := newTestScope(t, 0)
	id := s.Registry().Upsert(dialog.Entry{Payload: dialog.Payload{Title: "notice"}})

	if err := s.Dismiss(id); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if s.Registry().Has(id) {
		t.Error("dialog without callbacks still queued")
	}
}

func TestScope_ActionUnknownDialog(t *testing.T) {
	s, _, _, _ := newTestScope(t, 0)
	if err := s.Confirm("qc-5"); !errors.Is(err, ErrDialogNotFound) {
		t.Errorf("Confirm() error = %v, want ErrDialogNotFound", err)
	}
}

// ============================================================================
// End to end
// ============================================================================

func TestScope_CooldownBetweenInstruments(t *testing.T) {
	s, router, _, fc := newTestScope(t, 500*time.Millisecond)
	_ = s.Watch("5")
	_ = s.Watch("7")

	router.Publish(events.ProcedureRejected{InstrumentID: "5"})
	router.Publish(events.WaitingForUserAction{InstrumentID: "7"})

	if e, ok := s.Registry().Visible(); !ok || e.ID != "qc-5" {
		t.Fatalf("visible = %+v, want qc-5", e)
	}

	router.Publish(events.ProcedureAccepted{InstrumentID: "5"})
	if _, ok := s.Registry().Visible(); ok {
		t.Fatal("next dialog shown without cool-down")
	}

	fc.Advance(500 * time.Millisecond)
	if e, ok := s.Registry().Visible(); !ok || e.ID != "waiting-7" {
		t.Fatalf("visible after cool-down = %+v, want waiting-7", e)
	}
}

func TestScope_MaintenanceFlowNavigatesUp(t *testing.T) {
	s, router, nav, fc := newTestScope(t, 0)
	_ = s.Watch("5")
	_ = nav.SetCurrent("/instruments/5/maintenance")

	router.Publish(events.MaintenanceResult{Source: events.InstrumentRef{ID: "5"}, Success: true})
	router.Publish(events.DetailedStatusChanged{InstrumentID: "5", HealthState: events.HealthRunning})
	fc.Advance(15 * time.Second)

	if s.Registry().Has("maintenance-result-5") {
		t.Error("maintenance result did not auto-close")
	}
	// The reminder fires at the same deadline after the result closed, so
	// the dashboard ends on the status view.
	if got := nav.Current(); got != "/instruments/5/status" {
		t.Errorf("route = %q, want /instruments/5/status", got)
	}
}

func TestScope_Close(t *testing.T) {
	s, router, _, _ := newTestScope(t, 0)
	_ = s.Watch("5")
	router.Publish(events.ProcedureRejected{InstrumentID: "5"})

	s.Close()

	for _, typ := range events.Types() {
		if n := router.SubscriberCount(typ); n != 0 {
			t.Errorf("%s subscribers = %d after Close", typ, n)
		}
	}
	if err := s.Watch("7"); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch() after Close error = %v, want ErrClosed", err)
	}
	if err := s.Confirm("qc-5"); !errors.Is(err, ErrClosed) {
		t.Errorf("Confirm() after Close error = %v, want ErrClosed", err)
	}
	s.Close()
}
