package producer

import (
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/navigation"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// SampleReminder asks the operator to load samples after a successful
// maintenance procedure. If the instrument then runs for the auto-close
// delay the reminder is dropped and the dashboard goes to the status view.
type SampleReminder struct {
	base
}

// NewSampleReminder creates an unbound sample reminder producer.
func NewSampleReminder(deps Deps) *SampleReminder {
	s := &SampleReminder{}
	s.init(WorkflowSampleReminder, settings.ToggleSampleReminder, deps)
	s.onClose = s.showStatus
	s.handlers = map[events.Type]handlerFunc{
		events.TypeMaintenanceResult:     s.onResult,
		events.TypeDetailedStatusChanged: s.followHealth,
	}
	return s
}

func (s *SampleReminder) onResult(bd binding, e events.Event) {
	ev, ok := e.(events.MaintenanceResult)
	if !ok || !ev.Success {
		return
	}
	s.open(bd, dialog.Payload{
		Kind:  KindSampleReminder,
		Title: "Load samples",
		Body:  "Maintenance finished. Load samples to continue.",
		Data:  map[string]any{"procedure": ev.Procedure},
	})
}

// showStatus navigates to the status view when the reminder times out or
// the operator confirms it.
func (s *SampleReminder) showStatus(instrumentID string) func(CloseReason) {
	route := navigation.InstrumentRoute(instrumentID, "status")
	return func(reason CloseReason) {
		if reason != ReasonTimer && reason != ReasonConfirm {
			return
		}
		if s.deps.Navigator == nil {
			return
		}
		if err := s.deps.Navigator.Navigate(route); err != nil {
			s.deps.Logger.Warn("navigating to status view failed",
				"instrument_id", instrumentID,
				"error", err,
			)
		}
	}
}
