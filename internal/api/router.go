package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labpanel-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Enrolment (guarded by the enrolment key, not a token)
		r.Post("/auth/panel-token", s.handlePanelToken)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/auth/me", s.handleAuthMe)

			r.With(s.requirePermission(auth.PermDialogRead)).Get("/dialog", s.handleGetDialog)

			r.Route("/dialogs", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDialogRead)).Get("/", s.handleListDialogs)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/history", s.handleDialogHistory)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDialogAct))
					r.Post("/confirm", s.handleConfirmDialog)
					r.Post("/close", s.handleCloseDialog)
				})
			})

			r.Route("/navigation", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDialogRead)).Get("/", s.handleGetNavigation)
				r.With(s.requirePermission(auth.PermNavigate)).Put("/", s.handleSetNavigation)
			})

			r.Route("/settings", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermSettingsRead)).Get("/", s.handleListSettings)
				r.With(s.requirePermission(auth.PermSettingsManage)).Put("/{key}", s.handleSetSetting)
			})

			r.Route("/instruments", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDialogRead)).Get("/", s.handleListInstruments)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermInstrumentWatch)).Put("/watch", s.handleWatchInstrument)
					r.With(s.requirePermission(auth.PermInstrumentWatch)).Delete("/watch", s.handleUnwatchInstrument)
					r.With(s.requirePermission(auth.PermInstrumentWatch)).Post("/rebind", s.handleRebindInstrument)
					r.With(s.requirePermission(auth.PermEventInject)).Post("/events/{type}", s.handleInjectEvent)
				})
			})

			r.With(s.requirePermission(auth.PermSettingsManage)).Post("/scope/reload", s.handleReloadScope)
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Lab           string          `json:"lab,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Connections   map[string]bool `json:"connections"`
	WSClients     int             `json:"ws_clients"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	conns := make(map[string]bool, 2)
	if s.mqtt != nil {
		conns["mqtt"] = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		conns["influxdb"] = s.influx.IsConnected()
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       s.version,
		Lab:           s.lab.ID,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Connections:   conns,
		WSClients:     s.hub.ClientCount(),
	})
}
