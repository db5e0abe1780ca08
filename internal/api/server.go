// Package api provides the HTTP REST API and WebSocket server for Lab Panel Core.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/history"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/config"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/logging"
	"github.com/nerrad567/labpanel-core/internal/navigation"
	"github.com/nerrad567/labpanel-core/internal/orchestrator"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an upstream client is connected.
// Satisfied by the MQTT and InfluxDB clients.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Lab      config.LabConfig
	Logger   *logging.Logger

	Scopes    *orchestrator.Manager
	Navigator *navigation.Tracker
	Router    *events.Router

	// Settings and History are optional; their endpoints answer 503 when nil.
	Settings settings.Repository
	History  history.Repository

	// MQTT and InfluxDB are optional and only reported by the health endpoint.
	MQTT     ConnectionStatus
	InfluxDB ConnectionStatus

	Version string
}

// Server is the HTTP API server for Lab Panel Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	lab       config.LabConfig
	logger    *logging.Logger
	scopes    *orchestrator.Manager
	nav       *navigation.Tracker
	router    *events.Router
	settings  settings.Repository
	history   history.Repository
	mqtt      ConnectionStatus
	influx    ConnectionStatus
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
	unsubNav  func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, scope manager, navigator, router)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Scopes == nil {
		return nil, fmt.Errorf("scope manager is required")
	}
	if deps.Navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("event router is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		lab:       deps.Lab,
		logger:    deps.Logger,
		scopes:    deps.Scopes,
		nav:       deps.Navigator,
		router:    deps.Router,
		settings:  deps.Settings,
		history:   deps.History,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays dialog changes and navigation
// requests to it, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	s.relayUpdates()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// relayUpdates forwards dialog changes and navigation requests to the hub.
// Dialog listeners survive scope reloads because they are held by the
// manager rather than by a single registry.
func (s *Server) relayUpdates() {
	s.scopes.Subscribe(func(c dialog.Change) {
		s.hub.Broadcast(ChannelDialogChanged, newChangeEvent(c))
	})
	s.unsubNav = s.nav.Subscribe(func(req navigation.Request) {
		s.hub.Broadcast(ChannelNavigationRequested, req)
	})

	s.hub.SetSnapshot(func(channel string) (any, bool) {
		switch channel {
		case ChannelDialogChanged:
			return newViewResponse(s.scopes.Scope().Registry().View()), true
		case ChannelNavigationRequested:
			return navigationResponse{Route: s.nav.Current()}, true
		default:
			return nil, false
		}
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}
	if s.unsubNav != nil {
		s.unsubNav()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
