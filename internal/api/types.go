// Package api provides the REST API of the seat monitor.
package api

import (
	"github.com/stacklok/seatwatch/internal/monitor"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version" example:"v0.1.0"`
	Commit    string `json:"commit" example:"abc123def"`
	BuildDate string `json:"build_date" example:"2025-01-15T10:30:00Z"`
	GoVersion string `json:"go_version" example:"go1.25.2"`
	Platform  string `json:"platform" example:"linux/amd64"`
}

// TrackRequest is the body of POST /courses
type TrackRequest struct {
	CRN      string `json:"crn" example:"12345"`
	Year     int    `json:"year" example:"2025"`
	Semester string `json:"semester" example:"Fall"`
}

// SubscribeRequest is the body of POST /notifications/subscribe
type SubscribeRequest struct {
	PhoneNumber string `json:"phone_number,omitempty" example:"+15550100"`
}

// CycleResponse is returned by the endpoints that run a check-and-notify cycle
type CycleResponse struct {
	Message string           `json:"message"`
	Summary *monitor.Summary `json:"summary"`
}
