package producer

import (
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// QC reports a rejected QC procedure until the instrument accepts one.
type QC struct {
	base
}

// NewQC creates an unbound QC procedure producer.
func NewQC(deps Deps) *QC {
	q := &QC{}
	q.init(WorkflowQC, settings.ToggleQCDialogs, deps)
	q.handlers = map[events.Type]handlerFunc{
		events.TypeProcedureRejected: q.onRejected,
		events.TypeProcedureAccepted: q.onAccepted,
	}
	return q
}

func (q *QC) onRejected(bd binding, e events.Event) {
	ev, ok := e.(events.ProcedureRejected)
	if !ok {
		return
	}
	body := ev.Reason
	if body == "" {
		body = "The QC procedure was rejected."
	}
	q.open(bd, dialog.Payload{
		Kind:  KindQC,
		Title: "QC procedure rejected",
		Body:  body,
		Data:  map[string]any{"procedure": ev.Procedure},
	})
}

func (q *QC) onAccepted(bd binding, _ events.Event) {
	bd.machine.Close(ReasonEvent)
}
