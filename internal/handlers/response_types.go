package handlers

import (
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
)

// Response wrapper types for Swagger documentation

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"Something went wrong"`
	Details string `json:"details,omitempty" example:"Validation error details"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status         string            `json:"status" example:"ok"`
	ActiveSessions int               `json:"activeSessions" example:"1"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// LinesResponse represents the transcript of one session
type LinesResponse struct {
	SessionID string            `json:"sessionId" example:"550e8400-e29b-41d4-a716-446655440000"`
	Lines     []transcript.Line `json:"lines"`
}

// SummaryResponse represents a stored session summary
type SummaryResponse struct {
	Summary transcript.Summary `json:"summary"`
}

// ListSessionsResponse represents the live capture sessions
type ListSessionsResponse struct {
	Sessions []registry.Session `json:"sessions"`
}
