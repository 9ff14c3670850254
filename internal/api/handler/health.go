package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/reelscribe/internal/preflight"
	"github.com/iconidentify/reelscribe/internal/worker"
)

var startTime = time.Now()

// QueueStatter reports worker queue activity.
type QueueStatter interface {
	Stats() worker.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	queue    QueueStatter
	tempPath string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(queue QueueStatter, tempPath string) *HealthHandler {
	return &HealthHandler{
		queue:    queue,
		tempPath: tempPath,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Queue     *worker.Stats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()

	status, code := "ok", http.StatusOK
	if !stats.Running {
		status, code = "error", http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     &stats,
	})
}

// SystemStats contains runtime and temp directory statistics.
type SystemStats struct {
	Uptime        int64        `json:"uptime_seconds"`
	UptimeHuman   string       `json:"uptime_human"`
	MemAllocMB    int64        `json:"mem_alloc_mb"`
	MemSysMB      int64        `json:"mem_sys_mb"`
	NumGoroutines int          `json:"num_goroutines"`
	NumCPU        int          `json:"num_cpu"`
	TempPath      string       `json:"temp_path"`
	TempFreeBytes int64        `json:"temp_free_bytes"`
	Queue         worker.Stats `json:"queue"`
}

// Stats handles GET /stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		TempPath:      h.tempPath,
		TempFreeBytes: preflight.FreeDiskSpace(h.tempPath),
		Queue:         h.queue.Stats(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
