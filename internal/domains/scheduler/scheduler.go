package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/assistant"
)

// JobType represents the type of scheduled job
type JobType string

const (
	JobTypeSummarize JobType = "transcript:summarize"
)

// JobPayload represents the data structure for scheduled jobs
type JobPayload struct {
	JobType   JobType   `json:"job_type"`
	SessionID uuid.UUID `json:"session_id"`
	ExecuteAt time.Time `json:"execute_at"`
}

// Summarizer is the part of the transcript service the jobs drive.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID uuid.UUID, fn assistant.StreamFunc) (*transcript.Summary, error)
}

// SchedulerService defines the interface for background transcript jobs
type SchedulerService interface {
	// ScheduleSummary enqueues a summary of the session after delay.
	// Scheduling the same session twice is a no-op.
	ScheduleSummary(ctx context.Context, sessionID uuid.UUID, delay time.Duration) error

	// Lifecycle methods
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
}
