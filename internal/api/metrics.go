package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/labpanel-core/internal/events"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          ConnMetrics    `json:"mqtt"`
	InfluxDB      ConnMetrics    `json:"influxdb"`
	Dialogs       DialogMetrics  `json:"dialogs"`
	Events        map[string]int `json:"event_subscribers"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ConnMetrics reports an optional upstream connection.
type ConnMetrics struct {
	Configured  bool   `json:"configured"`
	Connected   bool   `json:"connected"`
	WriteErrors uint64 `json:"write_errors,omitempty"`
}

// writeErrorCounter is implemented by connections with asynchronous writes.
type writeErrorCounter interface {
	WriteErrors() uint64
}

// DialogMetrics summarises the shared dialog slot.
type DialogMetrics struct {
	Pending     int    `json:"pending"`
	Suppressed  bool   `json:"suppressed"`
	Version     uint64 `json:"version"`
	Instruments int    `json:"watched_instruments"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	scope := s.scopes.Scope()
	view := scope.Registry().View()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT:     connMetrics(s.mqtt),
		InfluxDB: connMetrics(s.influx),
		Dialogs: DialogMetrics{
			Pending:     view.Pending,
			Suppressed:  view.Suppressed,
			Version:     view.Version,
			Instruments: len(scope.Watched()),
		},
		Events: make(map[string]int, len(events.Types())),
	}

	for _, t := range events.Types() {
		metrics.Events[string(t)] = s.router.SubscriberCount(t)
	}

	writeJSON(w, http.StatusOK, metrics)
}

func connMetrics(c ConnectionStatus) ConnMetrics {
	if c == nil {
		return ConnMetrics{}
	}
	m := ConnMetrics{Configured: true, Connected: c.IsConnected()}
	if w, ok := c.(writeErrorCounter); ok {
		m.WriteErrors = w.WriteErrors()
	}
	return m
}
