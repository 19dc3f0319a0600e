// Package responses defines the JSON payloads served by the status API.
package responses

import (
	"time"

	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// IndexResponse is returned by the liveness endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// BuildsResponse maps build ids to their records.
type BuildsResponse map[string]status.Record

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	Uptime       float64   `json:"uptime"`
	Roots        []string  `json:"roots,omitempty"`
	Builds       int       `json:"builds"`
	ActiveBuilds int       `json:"active_builds"`
}
