package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/orchestrator"
)

// rebindRequest is the body of POST /instruments/{id}/rebind.
type rebindRequest struct {
	To string `json:"to"`
}

// handleListInstruments returns the watched instrument ids.
func (s *Server) handleListInstruments(w http.ResponseWriter, _ *http.Request) {
	watched := s.scopes.Scope().Watched()
	writeJSON(w, http.StatusOK, map[string]any{
		"instruments": watched,
		"count":       len(watched),
	})
}

// handleWatchInstrument starts the dialog producers for an instrument.
func (s *Server) handleWatchInstrument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scopes.Scope().Watch(id); err != nil {
		s.writeScopeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instrument_id": id, "watched": true})
}

// handleUnwatchInstrument stops the producers and removes their dialogs.
func (s *Server) handleUnwatchInstrument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scopes.Scope().Unwatch(id); err != nil {
		s.writeScopeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instrument_id": id, "watched": false})
}

// handleRebindInstrument moves an instrument's producers to another id.
func (s *Server) handleRebindInstrument(w http.ResponseWriter, r *http.Request) {
	var req rebindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	from := chi.URLParam(r, "id")
	if err := s.scopes.Scope().Rebind(from, req.To); err != nil {
		s.writeScopeError(w, err, from)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": req.To})
}

// handleInjectEvent publishes an instrument event as if it had arrived
// over MQTT. Used by service tooling and bench rigs without a broker.
func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t := events.Type(chi.URLParam(r, "type"))
	if !t.Valid() {
		writeNotFound(w, "unknown event type: "+string(t))
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}

	e, err := events.Decode(t, raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	if e.Instrument() != id {
		writeBadRequest(w, "event instrument does not match path")
		return
	}

	s.router.Publish(e)

	s.logger.Info("event injected", "instrument_id", id, "type", string(t),
		"client_id", clientIDFromContext(r))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"instrument_id": id,
		"type":          t,
		"delivered_to":  s.router.SubscriberCount(t),
	})
}

// handleReloadScope rebuilds the orchestration scope with fresh toggles.
func (s *Server) handleReloadScope(w http.ResponseWriter, r *http.Request) {
	if err := s.scopes.Reload(r.Context()); err != nil {
		if errors.Is(err, orchestrator.ErrClosed) {
			writeConflict(w, "orchestration is shutting down")
			return
		}
		s.logger.Error("scope reload failed", "error", err)
		writeInternalError(w, "scope reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":    true,
		"instruments": s.scopes.Scope().Watched(),
	})
}

// writeScopeError maps orchestrator errors to HTTP responses.
func (s *Server) writeScopeError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInstrument):
		writeBadRequest(w, "invalid instrument id")
	case errors.Is(err, orchestrator.ErrNotWatched):
		writeNotFound(w, "instrument not watched")
	case errors.Is(err, orchestrator.ErrClosed):
		writeConflict(w, "orchestration scope is reloading, retry")
	default:
		s.logger.Error("instrument operation failed", "instrument_id", id, "error", err)
		writeInternalError(w, "instrument operation failed")
	}
}

func clientIDFromContext(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
