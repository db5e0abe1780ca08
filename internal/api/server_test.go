package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/nerrad567/labpanel-core/migrations"

	"github.com/nerrad567/labpanel-core/internal/auth"
	"github.com/nerrad567/labpanel-core/internal/clock"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/history"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/config"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/database"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/logging"
	"github.com/nerrad567/labpanel-core/internal/navigation"
	"github.com/nerrad567/labpanel-core/internal/orchestrator"
	"github.com/nerrad567/labpanel-core/internal/producer"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

const (
	testSecret       = "test-secret-key-at-least-32-characters-long"
	testEnrolmentKey = "bench-enrolment-key"
	testLabID        = "lab-test"
)

// mockConn reports a fixed connection state.
type mockConn struct{ connected bool }

func (m mockConn) IsConnected() bool { return m.connected }

// testEnv bundles the collaborators behind a test server.
type testEnv struct {
	router   *events.Router
	nav      *navigation.Tracker
	scopes   *orchestrator.Manager
	settings *settings.SQLiteRepository
	history  *history.SQLiteRepository
	clock    *clock.Fake
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server backed by a migrated in-memory database and a
// real orchestration scope driven by a fake clock.
func testServer(t *testing.T) (*Server, *testEnv) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	env := &testEnv{
		router:   events.NewRouter(nil),
		nav:      navigation.NewTracker(),
		settings: settings.NewSQLiteRepository(db.DB),
		history:  history.NewSQLiteRepository(db.DB),
		clock:    clock.NewFake(),
	}

	log := testLogger()
	env.scopes, err = orchestrator.NewManager(ctx, orchestrator.Options{
		Router:    env.router,
		Navigator: env.nav,
		Clock:     env.clock,
	}, func(ctx context.Context) (producer.Toggles, error) {
		return settings.Load(ctx, env.settings)
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	t.Cleanup(env.scopes.Close)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testSecret,
				AccessTokenTTL: 15,
				EnrolmentKey:   testEnrolmentKey,
			},
		},
		Lab:       config.LabConfig{ID: testLabID},
		Logger:    log,
		Scopes:    env.scopes,
		Navigator: env.nav,
		Router:    env.router,
		Settings:  env.settings,
		History:   env.history,
		MQTT:      mockConn{connected: true},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, env
}

// testToken issues a token for role signed with the test secret.
func testToken(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.IssueToken("bench-"+string(role), role, testLabID, testSecret, 15)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	return token
}

// do sends a request through the router and returns the recorded response.
func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	srv, env := testServer(t)
	full := Deps{
		Logger:    srv.logger,
		Scopes:    env.scopes,
		Navigator: env.nav,
		Router:    env.router,
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"scopes", func(d *Deps) { d.Scopes = nil }},
		{"navigator", func(d *Deps) { d.Navigator = nil }},
		{"router", func(d *Deps) { d.Router = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s succeeded, want error", tt.name)
			}
		})
	}

	if _, err := New(full); err != nil {
		t.Errorf("New() with required deps error: %v", err)
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[healthResponse](t, w)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Lab != testLabID {
		t.Errorf("lab = %q, want %q", resp.Lab, testLabID)
	}
	if connected, ok := resp.Connections["mqtt"]; !ok || !connected {
		t.Errorf("connections[mqtt] = %v (present %v), want true", connected, ok)
	}
	if _, ok := resp.Connections["influxdb"]; ok {
		t.Error("influxdb reported although not configured")
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestMetrics(t *testing.T) {
	srv, env := testServer(t)
	if err := env.scopes.Scope().Watch("5"); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}

	m := decode[SystemMetrics](t, w)
	if m.Dialogs.Instruments != 1 {
		t.Errorf("watched_instruments = %d, want 1", m.Dialogs.Instruments)
	}
	if !m.MQTT.Configured || !m.MQTT.Connected {
		t.Errorf("mqtt = %+v, want configured and connected", m.MQTT)
	}
	if m.InfluxDB.Configured {
		t.Errorf("influxdb = %+v, want not configured", m.InfluxDB)
	}
	if m.Events[string(events.TypeWaitingForUserAction)] != 1 {
		t.Errorf("waiting subscribers = %d, want 1", m.Events[string(events.TypeWaitingForUserAction)])
	}
}

type countingConn struct{ errs uint64 }

func (countingConn) IsConnected() bool      { return true }
func (c countingConn) WriteErrors() uint64 { return c.errs }

func TestConnMetrics(t *testing.T) {
	if got := connMetrics(nil); got.Configured {
		t.Errorf("connMetrics(nil) = %+v, want unconfigured", got)
	}

	got := connMetrics(countingConn{errs: 3})
	if !got.Configured || !got.Connected || got.WriteErrors != 3 {
		t.Errorf("connMetrics() = %+v, want configured, connected, 3 write errors", got)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://dashboard.lab"}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://elsewhere")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestJoinOrDefault(t *testing.T) {
	if got := joinOrDefault(nil, "GET"); got != "GET" {
		t.Errorf("joinOrDefault(nil) = %q, want GET", got)
	}
	if got := joinOrDefault([]string{"GET", "PUT"}, "x"); got != "GET, PUT" {
		t.Errorf("joinOrDefault() = %q, want %q", got, "GET, PUT")
	}
}

// ─── Authentication Tests ──────────────────────────────────────────

func TestAuthMiddleware_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	foreign, err := auth.IssueToken("bench-1", auth.RolePanel, "other-lab", testSecret, 15)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	wrongKey, err := auth.IssueToken("bench-1", auth.RolePanel, testLabID, "another-secret-that-is-long-enough-xx", 15)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + wrongKey},
		{"other lab", "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dialog", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		body   string
		want   int
	}{
		{"panel reads dialog", auth.RolePanel, http.MethodGet, "/api/v1/dialog", "", http.StatusNoContent},
		{"panel cannot change settings", auth.RolePanel, http.MethodPut, "/api/v1/settings/qc_dialogs", `{"enabled":false}`, http.StatusForbidden},
		{"service changes settings", auth.RoleService, http.MethodPut, "/api/v1/settings/qc_dialogs", `{"enabled":false}`, http.StatusOK},
		{"panel cannot inject", auth.RolePanel, http.MethodPost, "/api/v1/instruments/5/events/procedure_accepted", `{"instrumentId":"5"}`, http.StatusForbidden},
		{"panel cannot reload", auth.RolePanel, http.MethodPost, "/api/v1/scope/reload", "", http.StatusForbidden},
		{"service reloads", auth.RoleService, http.MethodPost, "/api/v1/scope/reload", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body, testToken(t, tt.role))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPanelToken_Success(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/panel-token",
		`{"enrolment_key":"`+testEnrolmentKey+`","client_id":"panel-bench-3"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[tokenResponse](t, w)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Errorf("response = %+v, want Bearer token valid 900s", resp)
	}
	if resp.Role != auth.RolePanel {
		t.Errorf("role = %q, want %q", resp.Role, auth.RolePanel)
	}

	claims, err := auth.ParseToken(resp.AccessToken, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "panel-bench-3" || claims.LabID != testLabID {
		t.Errorf("claims = %+v, want subject panel-bench-3 in %s", claims, testLabID)
	}
}

func TestPanelToken_Rejected(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid JSON", `{`, http.StatusBadRequest},
		{"wrong key", `{"enrolment_key":"nope","client_id":"panel-1"}`, http.StatusUnauthorized},
		{"invalid client id", `{"enrolment_key":"` + testEnrolmentKey + `","client_id":"bad id!"}`, http.StatusBadRequest},
		{"invalid role", `{"enrolment_key":"` + testEnrolmentKey + `","client_id":"panel-1","role":"admin"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/auth/panel-token", tt.body, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestPanelToken_EnrolmentDisabled(t *testing.T) {
	srv, _ := testServer(t)
	srv.secCfg.JWT.EnrolmentKey = ""

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/panel-token",
		`{"enrolment_key":"","client_id":"panel-1"}`, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAuthMe(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/auth/me", "", testToken(t, auth.RolePanel))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[map[string]any](t, w)
	if resp["client_id"] != "bench-panel" || resp["role"] != "panel" {
		t.Errorf("auth/me = %v", resp)
	}
	perms, ok := resp["permissions"].([]any)
	if !ok || len(perms) != len(auth.PermissionsForRole(auth.RolePanel)) {
		t.Errorf("permissions = %v, want %d entries", resp["permissions"], len(auth.PermissionsForRole(auth.RolePanel)))
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/ws-ticket", "", testToken(t, auth.RolePanel))
	if w.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[map[string]any](t, w)
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := srv.validateTicket(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.clientID != "bench-panel" || entry.role != auth.RolePanel {
		t.Errorf("ticket identity = %+v, want bench-panel/panel", entry)
	}

	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv, _ := testServer(t)

	ticket := generateTicket()
	srv.tickets.mu.Lock()
	srv.tickets.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	srv.tickets.mu.Unlock()

	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestCleanExpiredTickets(t *testing.T) {
	srv, _ := testServer(t)

	srv.tickets.mu.Lock()
	srv.tickets.tickets["old"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	srv.tickets.tickets["new"] = ticketEntry{expiresAt: time.Now().Add(time.Minute)}
	srv.tickets.mu.Unlock()

	srv.cleanExpiredTickets()

	srv.tickets.mu.Lock()
	defer srv.tickets.mu.Unlock()
	if _, ok := srv.tickets.tickets["old"]; ok {
		t.Error("expired ticket was not cleaned")
	}
	if _, ok := srv.tickets.tickets["new"]; !ok {
		t.Error("live ticket was cleaned")
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	// Use a specific port for this test
	port := 19180
	srv.cfg.Port = port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Wait for server to be ready
	time.Sleep(100 * time.Millisecond)

	if err := srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after Start error: %v", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded, want error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context succeeded, want error")
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error: %v", err)
	}
}
