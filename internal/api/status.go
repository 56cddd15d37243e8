package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Runs          RunMetrics     `json:"runs"`
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

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// RunMetrics summarises the engine's execution log.
type RunMetrics struct {
	LogEntries int   `json:"log_entries"`
	ClockMS    int64 `json:"clock_ms"`
}

// handleStatus returns the current instrument snapshot and simulated clock.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.engine.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": s.instrumentID,
		"state":      snapshot,
		"clock_ms":   s.engine.Clock().Milliseconds(),
	})
}

// handleLog returns the engine's full execution log. The log spans runs:
// it is the instrument's complete command history since startup.
func (s *Server) handleLog(w http.ResponseWriter, _ *http.Request) {
	entries := s.engine.Log()

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Runs: RunMetrics{
			LogEntries: len(s.engine.Log()),
			ClockMS:    s.engine.Clock().Milliseconds(),
		},
	}

	if s.hub != nil {
		metrics.WebSocket = WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	// MQTT metrics (if available)
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
