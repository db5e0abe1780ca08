package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/history"
	"github.com/nerrad567/labpanel-core/internal/orchestrator"
)

// dialogResponse is the wire form of a queued dialog.
type dialogResponse struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	InstrumentID string         `json:"instrument_id,omitempty"`
	Title        string         `json:"title"`
	Body         string         `json:"body,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Actions      []string       `json:"actions"`
}

// viewResponse is the wire form of dialog.View.
type viewResponse struct {
	Visible    *dialogResponse `json:"visible"`
	Suppressed bool            `json:"suppressed"`
	Pending    int             `json:"pending"`
	Version    uint64          `json:"version"`
}

// changeEvent is the payload broadcast on ChannelDialogChanged.
type changeEvent struct {
	Op   dialog.Op    `json:"op"`
	ID   string       `json:"id,omitempty"`
	View viewResponse `json:"view"`
}

func newDialogResponse(e dialog.Entry) dialogResponse {
	return dialogResponse{
		ID:           e.ID,
		Kind:         e.Payload.Kind,
		InstrumentID: e.Payload.InstrumentID,
		Title:        e.Payload.Title,
		Body:         e.Payload.Body,
		Data:         e.Payload.Data,
		Actions:      e.Payload.Actions(),
	}
}

func newViewResponse(v dialog.View) viewResponse {
	resp := viewResponse{
		Suppressed: v.Suppressed,
		Pending:    v.Pending,
		Version:    v.Version,
	}
	if v.Visible != nil {
		d := newDialogResponse(*v.Visible)
		resp.Visible = &d
	}
	return resp
}

func newChangeEvent(c dialog.Change) changeEvent {
	return changeEvent{Op: c.Op, ID: c.ID, View: newViewResponse(c.View)}
}

// handleGetDialog returns the dialog currently shown in the shared slot.
// It answers 204 while the queue is empty or a cool-down hides the slot.
func (s *Server) handleGetDialog(w http.ResponseWriter, _ *http.Request) {
	e, ok := s.scopes.Scope().Registry().Visible()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newDialogResponse(e))
}

// handleListDialogs returns the whole queue in display order plus the view.
func (s *Server) handleListDialogs(w http.ResponseWriter, _ *http.Request) {
	reg := s.scopes.Scope().Registry()

	ids := reg.Entries()
	dialogs := make([]dialogResponse, 0, len(ids))
	for _, id := range ids {
		// An entry removed between Entries and Get is simply skipped.
		if e, ok := reg.Get(id); ok {
			dialogs = append(dialogs, newDialogResponse(e))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dialogs": dialogs,
		"count":   len(dialogs),
		"view":    newViewResponse(reg.View()),
	})
}

// handleConfirmDialog presses the confirm button of a queued dialog.
func (s *Server) handleConfirmDialog(w http.ResponseWriter, r *http.Request) {
	s.actOnDialog(w, r, (*orchestrator.Scope).Confirm)
}

// handleCloseDialog presses the close button of a queued dialog.
func (s *Server) handleCloseDialog(w http.ResponseWriter, r *http.Request) {
	s.actOnDialog(w, r, (*orchestrator.Scope).Dismiss)
}

func (s *Server) actOnDialog(w http.ResponseWriter, r *http.Request, act func(*orchestrator.Scope, string) error) {
	id := chi.URLParam(r, "id")
	scope := s.scopes.Scope()

	err := act(scope, id)
	switch {
	case errors.Is(err, orchestrator.ErrDialogNotFound):
		writeNotFound(w, "dialog not found")
		return
	case errors.Is(err, orchestrator.ErrClosed):
		writeConflict(w, "orchestration scope is reloading, retry")
		return
	case err != nil:
		s.logger.Error("dialog action failed", "dialog_id", id, "error", err)
		writeInternalError(w, "dialog action failed")
		return
	}

	writeJSON(w, http.StatusOK, newViewResponse(scope.Registry().View()))
}

// handleDialogHistory lists recorded dialog lifecycle events, newest first.
func (s *Server) handleDialogHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "dialog history is not configured")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		InstrumentID: q.Get("instrument"),
		DialogID:     q.Get("dialog"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing dialog history", "error", err)
		writeInternalError(w, "failed to list dialog history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
