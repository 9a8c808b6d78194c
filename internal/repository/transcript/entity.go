package transcript

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"gorm.io/gorm"
)

// LineEntity represents the database entity for a finalized transcript line
type LineEntity struct {
	ID           uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	SessionID    uuid.UUID `gorm:"column:session_id;type:char(36);not null;uniqueIndex:idx_session_generation"`
	GenerationID int       `gorm:"column:generation_id;not null;uniqueIndex:idx_session_generation"`
	Text         string    `gorm:"column:text;type:text;not null"`
	Corrected    string    `gorm:"column:corrected;type:text"`
	TPS          float64   `gorm:"column:tps"`
	CreatedAt    time.Time `gorm:"autoCreateTime(3)"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (LineEntity) TableName() string {
	return "transcript_lines"
}

// BeforeCreate is a GORM hook to ensure UUID is set
func (l *LineEntity) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ToDomain converts LineEntity to domain Line. Persisted lines are always final.
func (l *LineEntity) ToDomain() transcript.Line {
	return transcript.Line{
		SessionID:    l.SessionID,
		GenerationID: l.GenerationID,
		Text:         l.Text,
		Final:        true,
		Corrected:    l.Corrected,
		TPS:          l.TPS,
		UpdatedAt:    l.UpdatedAt,
	}
}

func NewLineEntityFromDomain(line *transcript.Line) *LineEntity {
	updated := line.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return &LineEntity{
		SessionID:    line.SessionID,
		GenerationID: line.GenerationID,
		Text:         line.Text,
		Corrected:    line.Corrected,
		TPS:          line.TPS,
		UpdatedAt:    updated,
	}
}

// SummaryEntity stores the latest summary of a session
type SummaryEntity struct {
	SessionID   uuid.UUID `gorm:"primaryKey;column:session_id;type:char(36);not null"`
	Summary     string    `gorm:"column:summary;type:text;not null"`
	ActionItems string    `gorm:"column:action_items;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (SummaryEntity) TableName() string {
	return "session_summaries"
}

func (s *SummaryEntity) ToDomain() *transcript.Summary {
	return &transcript.Summary{
		SessionID:   s.SessionID,
		Summary:     s.Summary,
		ActionItems: s.ActionItems,
		CreatedAt:   s.CreatedAt,
	}
}

func (s *SummaryEntity) FromDomain(d *transcript.Summary) {
	s.SessionID = d.SessionID
	s.Summary = d.Summary
	s.ActionItems = d.ActionItems
	s.CreatedAt = d.CreatedAt
}
