// Package handlers provides the HTTP API handlers for streamvault.
package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"
)

// HealthHandler handles the health, readiness and liveness probes.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, db *gorm.DB) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthOutput wraps HealthResponse for huma.
type HealthOutput struct {
	Body HealthResponse
}

// ProbeOutput is the trivial ready/live body.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the probe routes.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getReady",
		Method:      "GET",
		Path:        "/ready",
		Summary:     "Readiness probe",
		Tags:        []string{"System"},
	}, h.GetReady)

	huma.Register(api, huma.Operation{
		OperationID: "getLive",
		Method:      "GET",
		Path:        "/live",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLive)
}

// GetHealth returns the overall service health.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	checks := map[string]string{
		"database": h.databaseCheck(ctx),
	}
	status := "healthy"
	for _, v := range checks {
		if v != "ok" {
			status = "degraded"
		}
	}

	uptime := time.Since(h.startTime)
	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Version:       h.version,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			UptimeSeconds: uptime.Seconds(),
			Checks:        checks,
		},
	}, nil
}

// GetReady reports readiness: the database must answer.
func (h *HealthHandler) GetReady(ctx context.Context, _ *struct{}) (*ProbeOutput, error) {
	if h.databaseCheck(ctx) != "ok" {
		return nil, huma.Error503ServiceUnavailable("database unavailable")
	}
	out := &ProbeOutput{}
	out.Body.Status = "ready"
	return out, nil
}

// GetLive reports process liveness.
func (h *HealthHandler) GetLive(ctx context.Context, _ *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	out.Body.Status = "alive"
	return out, nil
}

func (h *HealthHandler) databaseCheck(ctx context.Context) string {
	if h.db == nil {
		return "not configured"
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err.Error()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return err.Error()
	}
	return "ok"
}
