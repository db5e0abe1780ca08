package producer

import (
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/navigation"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// Views an instrument can be in while a maintenance procedure runs. When
// the result dialog closes on one of them the dashboard steps back up.
var maintenanceViews = []string{"maintenance", "diagnostics"}

// MaintenanceResult shows the outcome of a maintenance procedure. The
// dialog closes itself once the instrument has been RUNNING for the
// auto-close delay.
type MaintenanceResult struct {
	base
}

// NewMaintenanceResult creates an unbound maintenance result producer.
func NewMaintenanceResult(deps Deps) *MaintenanceResult {
	m := &MaintenanceResult{}
	m.init(WorkflowMaintenanceResult, settings.ToggleMaintenanceDialogs, deps)
	m.onClose = m.leaveMaintenanceView
	m.handlers = map[events.Type]handlerFunc{
		events.TypeMaintenanceResult:     m.onResult,
		events.TypeDetailedStatusChanged: m.followHealth,
	}
	return m
}

func (m *MaintenanceResult) onResult(bd binding, e events.Event) {
	ev, ok := e.(events.MaintenanceResult)
	if !ok {
		return
	}

	title := "Maintenance failed"
	if ev.Success {
		title = "Maintenance completed"
	}
	m.open(bd, dialog.Payload{
		Kind:  KindMaintenanceResult,
		Title: title,
		Body:  ev.Message,
		Data: map[string]any{
			"procedure":       ev.Procedure,
			"success":         ev.Success,
			"instrument_name": ev.Source.Name,
		},
	})
}

// leaveMaintenanceView steps up from the instrument's maintenance or
// diagnostics view, if that is where the dashboard is. Any other route is
// left alone.
func (m *MaintenanceResult) leaveMaintenanceView(instrumentID string) func(CloseReason) {
	return func(reason CloseReason) {
		if reason == ReasonUnwatch || m.deps.Navigator == nil {
			return
		}
		moved := m.deps.Navigator.UpIf(func(current string) bool {
			return navigation.MatchInstrumentRoute(current, instrumentID, maintenanceViews...)
		})
		if moved {
			m.deps.Logger.Debug("left maintenance view", "instrument_id", instrumentID, "reason", string(reason))
		}
	}
}
