package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything with a health probe; the archive DB satisfies it.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	archive   Pinger // nil when archiving is disabled
	storeType string
	version   string
	startTime time.Time
}

func NewHealthHandler(archive Pinger, storeType, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		archive:   archive,
		storeType: storeType,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks: map[string]string{
			"storage": h.storeType,
		},
	}

	if h.archive != nil {
		if err := h.archive.HealthCheck(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["archive"] = "error: " + err.Error()
		} else {
			resp.Checks["archive"] = "ok"
		}
	} else {
		resp.Checks["archive"] = "disabled"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
