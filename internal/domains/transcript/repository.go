package transcript

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Line is the transcript of one utterance (one generation of a capture session).
// @Description One transcribed utterance
type Line struct {
	SessionID    uuid.UUID `json:"sessionId" example:"550e8400-e29b-41d4-a716-446655440000"`
	GenerationID int       `json:"generationId" example:"0"`
	Text         string    `json:"text" example:"so the plan for today"`
	Final        bool      `json:"final" example:"true"`
	Corrected    string    `json:"corrected,omitempty" example:"So the plan for today."`
	TPS          float64   `json:"tps,omitempty" example:"12.5"`
	UpdatedAt    time.Time `json:"updatedAt" example:"2023-01-01T12:00:00Z"`
}

// Display returns the corrected text when cleanup produced one.
func (l Line) Display() string {
	if l.Corrected != "" {
		return l.Corrected
	}
	return l.Text
}

// Summary is the stored result of Summarize.
// @Description Session summary and action items
type Summary struct {
	SessionID   uuid.UUID `json:"sessionId" example:"550e8400-e29b-41d4-a716-446655440000"`
	Summary     string    `json:"summary" example:"Discussed the release plan."`
	ActionItems string    `json:"actionItems" example:"* ship the beta"`
	CreatedAt   time.Time `json:"createdAt" example:"2023-01-01T12:00:00Z"`
}

// Text is the summary followed by its action items, as streamed to clients.
func (s Summary) Text() string {
	if s.ActionItems == "" {
		return s.Summary
	}
	return s.Summary + "\n" + s.ActionItems
}

// Repository persists finalized lines and summaries.
type Repository interface {
	// SaveLine inserts or replaces the line for (SessionID, GenerationID).
	SaveLine(ctx context.Context, line *Line) error
	// ListLines returns the persisted lines ordered by generation.
	ListLines(ctx context.Context, sessionID uuid.UUID) ([]Line, error)

	SaveSummary(ctx context.Context, s *Summary) error
	GetSummary(ctx context.Context, sessionID uuid.UUID) (*Summary, error)
}

// LiveCache holds lines that are still being transcribed.
type LiveCache interface {
	Put(ctx context.Context, line Line) error
	All(ctx context.Context, sessionID uuid.UUID) ([]Line, error)
	Drop(ctx context.Context, sessionID uuid.UUID, generationID int) error
}
