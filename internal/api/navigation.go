package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/labpanel-core/internal/navigation"
)

// navigationResponse is the body of GET and PUT /navigation.
type navigationResponse struct {
	Route string `json:"route"`
}

// handleGetNavigation returns the route the dashboard last reported.
func (s *Server) handleGetNavigation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, navigationResponse{Route: s.nav.Current()})
}

// handleSetNavigation records the dashboard's current route. It does not
// emit a navigation request; the dashboard is already there.
func (s *Server) handleSetNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.nav.SetCurrent(req.Route); err != nil {
		if errors.Is(err, navigation.ErrInvalidRoute) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to record route")
		return
	}

	writeJSON(w, http.StatusOK, navigationResponse{Route: s.nav.Current()})
}
