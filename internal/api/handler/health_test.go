package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/vidvault/internal/repository"
	"github.com/iconidentify/vidvault/internal/worker"
)

type mockStore struct {
	pingErr  error
	statsErr error
	stats    *repository.StoreStats
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) Stats(ctx context.Context) (*repository.StoreStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	if m.stats == nil {
		return &repository.StoreStats{}, nil
	}
	return m.stats, nil
}

type mockPool struct{ stats worker.Stats }

func (m mockPool) Stats() worker.Stats { return m.stats }

type mockSessions int

func (m mockSessions) Len() int { return int(m) }

type mockDisk int64

func (m mockDisk) FreeSpace() int64 { return int64(m) }

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(&mockStore{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Live(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}

	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready_Success(t *testing.T) {
	store := &mockStore{stats: &repository.StoreStats{
		Users:      3,
		Categories: 2,
		Videos:     7,
		Files:      4,
		Links:      3,
	}}
	handler := NewHealthHandler(store, mockPool{worker.Stats{Workers: 2, Queued: 1}}, mockSessions(5), nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Archive == nil {
		t.Fatal("archive stats should not be nil")
	}
	if resp.Archive.Videos != 7 || resp.Archive.Links != 3 {
		t.Errorf("archive = %+v, want videos 7 links 3", *resp.Archive)
	}
	if resp.Workers == nil || resp.Workers.Queued != 1 {
		t.Errorf("workers = %+v, want queued 1", resp.Workers)
	}
	if resp.Sessions == nil || *resp.Sessions != 5 {
		t.Errorf("sessions = %v, want 5", resp.Sessions)
	}
}

func TestHealthHandler_Ready_OptionalDepsOmitted(t *testing.T) {
	handler := NewHealthHandler(&mockStore{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := resp["workers"]; ok {
		t.Error("workers should be omitted without a pool")
	}
	if _, ok := resp["sessions"]; ok {
		t.Error("sessions should be omitted without a session manager")
	}
}

func TestHealthHandler_Ready_Errors(t *testing.T) {
	tests := []struct {
		name    string
		store   *mockStore
		wantErr string
	}{
		{"ping fails", &mockStore{pingErr: errors.New("closed")}, "database unavailable"},
		{"stats fails", &mockStore{statsErr: errors.New("locked")}, "database query failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.store, nil, nil, nil)

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()

			handler.Ready(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != "error" {
				t.Errorf("status = %q, want %q", resp.Status, "error")
			}
			if resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	handler := NewHealthHandler(&mockStore{}, nil, nil, mockDisk(1<<30))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	var stats SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.DiskFreeBytes != 1<<30 {
		t.Errorf("disk_free_bytes = %d, want %d", stats.DiskFreeBytes, 1<<30)
	}
	if stats.NumCPU < 1 {
		t.Errorf("num_cpu = %d, want >= 1", stats.NumCPU)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{49 * time.Hour, "2d 1h 0m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
