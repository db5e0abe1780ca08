// Lab Panel Core - Instrument Dialog Orchestration
//
// This is the main entry point for the Lab Panel Core application.
// Lab Panel Core decides which instrument dialog a lab dashboard shows:
//   - Instrument push events arrive over MQTT
//   - Producers turn them into dialogs in a single shared slot
//   - Panels read and act on the slot over REST and WebSocket
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nerrad567/labpanel-core/migrations"

	"github.com/nerrad567/labpanel-core/internal/api"
	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/events"
	"github.com/nerrad567/labpanel-core/internal/history"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/config"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/database"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/logging"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/labpanel-core/internal/navigation"
	"github.com/nerrad567/labpanel-core/internal/orchestrator"
	"github.com/nerrad567/labpanel-core/internal/producer"
	"github.com/nerrad567/labpanel-core/internal/settings"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lab Panel Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	settingsRepo := settings.NewSQLiteRepository(db.DB)
	historyRepo := history.NewSQLiteRepository(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	router := events.NewRouter(log)
	nav := navigation.NewTracker()

	scopes, err := orchestrator.NewManager(ctx, orchestrator.Options{
		Cooldown:       cfg.Dialogs.Cooldown(),
		AutoCloseDelay: cfg.Dialogs.AutoCloseDelay(),
		Router:         router,
		Navigator:      nav,
		Logger:         log,
	}, func(ctx context.Context) (producer.Toggles, error) {
		return settings.Load(ctx, settingsRepo)
	})
	if err != nil {
		return fmt.Errorf("building dialog scope: %w", err)
	}
	defer func() {
		log.Info("closing dialog scope")
		scopes.Close()
	}()

	for _, id := range cfg.Lab.Instruments {
		if watchErr := scopes.Scope().Watch(id); watchErr != nil {
			return fmt.Errorf("watching instrument %q: %w", id, watchErr)
		}
	}
	log.Info("dialog scope ready", "instruments", len(cfg.Lab.Instruments))

	// Dialog history (with telemetry mirror when InfluxDB is enabled)
	var recorder *history.Recorder
	if influxClient != nil {
		recorder = history.NewRecorder(historyRepo, influxClient, log)
		startInstrumentTelemetry(router, influxClient)
	} else {
		recorder = history.NewRecorder(historyRepo, nil, log)
	}
	recorder.Start(ctx)
	defer func() {
		log.Info("stopping history recorder")
		recorder.Stop()
	}()
	scopes.Subscribe(recorder.Handle)

	mirror := newDialogMirror(mqttClient, cfg.Lab.ID, log)
	go mirror.run(ctx)
	scopes.Subscribe(mirror.handle)

	bridge := events.NewBridge(router, mqttClient, byte(cfg.MQTT.QoS), log)
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting event bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping event bridge")
		if stopErr := bridge.Stop(); stopErr != nil {
			log.Error("error stopping event bridge", "error", stopErr)
		}
	}()
	log.Info("event bridge started", "topic", mqtt.Topics{}.AllInstrumentEvents())

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Lab:       cfg.Lab,
		Logger:    log,
		Scopes:    scopes,
		Navigator: nav,
		Router:    router,
		Settings:  settingsRepo,
		History:   historyRepo,
		MQTT:      mqttClient,
		Version:   version,
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, event bridge,
	// recorder, dialog scope, InfluxDB, MQTT, database.

	log.Info("Lab Panel Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABPANEL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABPANEL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// instrumentEventWriter is the telemetry sink for raw instrument events.
type instrumentEventWriter interface {
	WriteInstrumentEvent(instrumentID, eventType string)
}

// startInstrumentTelemetry counts every routed instrument event.
// The router keeps the subscriptions for the process lifetime.
func startInstrumentTelemetry(router *events.Router, w instrumentEventWriter) {
	for _, t := range events.Types() {
		router.Subscribe(t, func(e events.Event) {
			w.WriteInstrumentEvent(e.Instrument(), string(e.Type()))
		})
	}
}

// retainedPublisher publishes retained MQTT messages.
type retainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// mirroredDialog is the retained payload describing the visible dialog.
type mirroredDialog struct {
	Visible    *dialog.Entry `json:"visible"`
	Suppressed bool          `json:"suppressed"`
	Pending    int           `json:"pending"`
	Version    uint64        `json:"version"`
}

// dialogMirror keeps a retained MQTT copy of the dialog slot for panels
// that only speak MQTT.
//
// Registry listeners must not block, so handle only replaces the pending
// view and run publishes it. Intermediate views may be skipped; the last
// one always reaches the broker. Listeners can be called from several
// goroutines at once, so a view no newer than the last one accepted is
// dropped.
type dialogMirror struct {
	pub   retainedPublisher
	topic string
	log   *logging.Logger

	mu          sync.Mutex
	lastVersion uint64
	latest      chan dialog.View
}

func newDialogMirror(pub retainedPublisher, labID string, log *logging.Logger) *dialogMirror {
	return &dialogMirror{
		pub:    pub,
		topic:  mqtt.Topics{}.PanelDialog(labID),
		log:    log,
		latest: make(chan dialog.View, 1),
	}
}

// handle implements dialog.Listener.
func (m *dialogMirror) handle(c dialog.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.View.Version <= m.lastVersion {
		return
	}
	m.lastVersion = c.View.Version

	for {
		select {
		case m.latest <- c.View:
			return
		default:
		}
		// Drop the stale view so the newest one fits.
		select {
		case <-m.latest:
		default:
		}
	}
}

func (m *dialogMirror) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-m.latest:
			m.publish(v)
		}
	}
}

func (m *dialogMirror) publish(v dialog.View) {
	payload, err := json.Marshal(mirroredDialog{
		Visible:    v.Visible,
		Suppressed: v.Suppressed,
		Pending:    v.Pending,
		Version:    v.Version,
	})
	if err != nil {
		m.log.Error("encoding dialog mirror", "error", err)
		return
	}
	if err := m.pub.PublishRetained(m.topic, payload); err != nil {
		m.log.Warn("publishing dialog mirror", "topic", m.topic, "error", err)
	}
}
