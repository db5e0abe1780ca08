package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// panelTokenRequest is the request body for POST /auth/panel-token.
type panelTokenRequest struct {
	EnrolmentKey string    `json:"enrolment_key"`
	ClientID     string    `json:"client_id"`
	Role         auth.Role `json:"role,omitempty"`
}

// tokenResponse is the response body for POST /auth/panel-token.
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Role        auth.Role `json:"role"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	clientID  string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// handlePanelToken exchanges the lab's enrolment key for a signed token.
// The role defaults to panel; service tokens need the same key.
func (s *Server) handlePanelToken(w http.ResponseWriter, r *http.Request) {
	var req panelTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if s.secCfg.JWT.EnrolmentKey == "" {
		writeForbidden(w, auth.ErrEnrolmentDisabled.Error())
		return
	}
	if !auth.VerifyEnrolmentKey(req.EnrolmentKey, s.secCfg.JWT.EnrolmentKey) {
		s.logger.Warn("panel enrolment rejected", "client_id", req.ClientID)
		writeUnauthorized(w, auth.ErrInvalidCredentials.Error())
		return
	}

	if req.Role == "" {
		req.Role = auth.RolePanel
	}

	token, err := auth.IssueToken(req.ClientID, req.Role, s.lab.ID, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	switch {
	case errors.Is(err, auth.ErrInvalidClientID), errors.Is(err, auth.ErrInvalidRole):
		writeBadRequest(w, err.Error())
		return
	case err != nil:
		s.logger.Error("issuing panel token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("panel enrolled", "client_id", req.ClientID, "role", string(req.Role))

	ttl := s.secCfg.JWT.AccessTokenTTL
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
		Role:        req.Role,
	})
}

// handleAuthMe describes the authenticated caller.
func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id":   claims.Subject,
		"role":        claims.Role,
		"lab":         claims.LabID,
		"permissions": auth.PermissionsForRole(claims.Role),
	})
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket := generateTicket()
	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		clientID:  claims.Subject,
		role:      claims.Role,
		expiresAt: time.Now().Add(ticketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks if a ticket is valid and consumes it (single-use).
func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	entry, ok := s.tickets.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(s.tickets.tickets, ticket)

	if !time.Now().Before(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpiredTickets removes expired tickets from the store.
func (s *Server) cleanExpiredTickets() {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	now := time.Now()
	for ticket, entry := range s.tickets.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}
