package api

import (
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"` // ok | degraded | unknown
	StationCount  int    `json:"station_count"`
	SamplingCount int    `json:"sampling_count"`
	WarningCount  int    `json:"warning_count"`
	CriticalCount int    `json:"critical_count"`
	AlertCount    int    `json:"alert_count"`
}

// StationResponse is one station entry in GET /api/v1/stations or
// GET /api/v1/stations/{id}.
type StationResponse struct {
	types.StationStatus
	Diagnostics []DiagnosticHint `json:"diagnostics"`
	LastSeen    string           `json:"last_seen"` // RFC3339
}

// ReadingsResponse is the payload for GET /api/v1/stations/{id}/readings.
type ReadingsResponse struct {
	Station  string          `json:"station"`
	Label    string          `json:"label"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Readings []types.Reading `json:"readings"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Stations    []StationResponse `json:"stations"`
	Alerts      []*alerts.Alert   `json:"alerts"`
	GeneratedAt string            `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
