package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/sadewadee/m2proxy/internal/pool"
)

var startTime = time.Now()

// HealthHandler serves health check and readiness endpoints.
type HealthHandler struct {
	pool *pool.Pool
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(p *pool.Pool) *HealthHandler {
	return &HealthHandler{pool: p}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ready", "/readyz":
		h.readiness(w)
	default:
		h.liveness(w)
	}
}

func (h *HealthHandler) liveness(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

// readiness reports ready while the pool accepts messages and its queue is
// not saturated.
func (h *HealthHandler) readiness(w http.ResponseWriter) {
	stats := h.pool.Stats()

	ready := h.pool.Running() && (stats.QueueCapacity == 0 || stats.QueueDepth < stats.QueueCapacity)
	status := http.StatusOK
	statusStr := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusStr = "not_ready"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         statusStr,
		"uptime":         time.Since(startTime).String(),
		"uptime_seconds": time.Since(startTime).Seconds(),
		"pool":           stats,
		"memory": map[string]any{
			"alloc_mb":  mem.Alloc / 1024 / 1024,
			"sys_mb":    mem.Sys / 1024 / 1024,
			"gc_cycles": mem.NumGC,
		},
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	})
}
