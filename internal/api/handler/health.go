package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/vidvault/internal/repository"
	"github.com/iconidentify/vidvault/internal/worker"
)

var startTime = time.Now()

// StoreChecker reports database health and archive totals.
type StoreChecker interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*repository.StoreStats, error)
}

// PoolReporter reports worker pool load.
type PoolReporter interface {
	Stats() worker.Stats
}

// SessionCounter reports how many conversations are held in memory.
type SessionCounter interface {
	Len() int
}

// DiskReporter reports free space in the video directory.
type DiskReporter interface {
	FreeSpace() int64
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store    StoreChecker
	pool     PoolReporter
	sessions SessionCounter
	disk     DiskReporter
}

// NewHealthHandler creates a new health handler. Any dependency but the
// store may be nil.
func NewHealthHandler(store StoreChecker, pool PoolReporter, sessions SessionCounter, disk DiskReporter) *HealthHandler {
	return &HealthHandler{
		store:    store,
		pool:     pool,
		sessions: sessions,
		disk:     disk,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
	Archive   *ArchiveStats `json:"archive,omitempty"`
	Workers   *worker.Stats `json:"workers,omitempty"`
	Sessions  *int          `json:"sessions,omitempty"`
}

// ArchiveStats contains archive totals.
type ArchiveStats struct {
	Users      int `json:"users"`
	Categories int `json:"categories"`
	Videos     int `json:"videos"`
	Files      int `json:"files"`
	Links      int `json:"links"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: now(),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: now(),
			Error:     "database unavailable",
		})
		return
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: now(),
			Error:     "database query failed",
		})
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: now(),
		Archive: &ArchiveStats{
			Users:      stats.Users,
			Categories: stats.Categories,
			Videos:     stats.Videos,
			Files:      stats.Files,
			Links:      stats.Links,
		},
	}
	if h.pool != nil {
		ws := h.pool.Stats()
		resp.Workers = &ws
	}
	if h.sessions != nil {
		n := h.sessions.Len()
		resp.Sessions = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// SystemStats contains process resource statistics.
type SystemStats struct {
	Uptime        int64  `json:"uptime_seconds"`
	UptimeHuman   string `json:"uptime_human"`
	MemAllocMB    int64  `json:"mem_alloc_mb"`
	MemSysMB      int64  `json:"mem_sys_mb"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	DiskFreeBytes int64  `json:"disk_free_bytes"`
}

// Stats handles GET /stats - process statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
	}
	if h.disk != nil {
		stats.DiskFreeBytes = h.disk.FreeSpace()
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
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
