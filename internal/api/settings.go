package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labpanel-core/internal/settings"
)

// setToggleRequest is the body of PUT /settings/{key}.
type setToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListSettings returns every feature toggle.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeUnavailable(w, "settings are not configured")
		return
	}

	toggles, err := s.settings.List(r.Context())
	if err != nil {
		s.logger.Error("listing feature toggles", "error", err)
		writeInternalError(w, "failed to list settings")
		return
	}
	if toggles == nil {
		toggles = []settings.Toggle{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"toggles": toggles,
		"count":   len(toggles),
	})
}

// handleSetSetting persists a toggle. Producers see the new value after
// the next scope reload, which ?apply=true performs immediately.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeUnavailable(w, "settings are not configured")
		return
	}

	var req setToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	key := chi.URLParam(r, "key")
	toggle, err := s.settings.Set(r.Context(), key, *req.Enabled)
	if err != nil {
		if errors.Is(err, settings.ErrToggleNotFound) {
			writeNotFound(w, "toggle not found")
			return
		}
		s.logger.Error("updating feature toggle", "key", key, "error", err)
		writeInternalError(w, "failed to update setting")
		return
	}

	applied := false
	if r.URL.Query().Get("apply") == "true" {
		if err := s.scopes.Reload(r.Context()); err != nil {
			s.logger.Error("reloading scope after toggle change", "key", key, "error", err)
			writeInternalError(w, "setting saved but scope reload failed")
			return
		}
		applied = true
	}

	s.logger.Info("feature toggle updated", "key", key, "enabled", toggle.Enabled, "applied", applied)
	writeJSON(w, http.StatusOK, map[string]any{
		"toggle":  toggle,
		"applied": applied,
	})
}
