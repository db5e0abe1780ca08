package producer

import (
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// Waiting shows a dialog while an instrument waits for the operator and
// removes it as soon as the instrument reports progress again.
type Waiting struct {
	base
}

// NewWaiting creates an unbound waiting-for-user-action producer.
func NewWaiting(deps Deps) *Waiting {
	w := &Waiting{}
	w.init(WorkflowWaiting, settings.ToggleWaitingDialogs, deps)
	w.handlers = map[events.Type]handlerFunc{
		events.TypeWaitingForUserAction: w.onWaiting,
		events.TypeOperationProgress:    w.onProgress,
	}
	return w
}

func (w *Waiting) onWaiting(bd binding, e events.Event) {
	ev, ok := e.(events.WaitingForUserAction)
	if !ok {
		return
	}
	body := ev.Message
	if body == "" {
		body = "The instrument is waiting for you to continue."
	}
	w.open(bd, dialog.Payload{
		Kind:  KindWaiting,
		Title: "Action required",
		Body:  body,
		Data:  map[string]any{"action": ev.Action},
	})
}

func (w *Waiting) onProgress(bd binding, _ events.Event) {
	bd.machine.Close(ReasonEvent)
}
