package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormTranscriptRepo struct {
	db *gorm.DB
}

// SaveLine implements transcript.Repository
func (g *GormTranscriptRepo) SaveLine(ctx context.Context, line *transcript.Line) error {
	entity := NewLineEntityFromDomain(line)
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "generation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "corrected", "tps", "updated_at"}),
	}).Create(entity).Error
	if err != nil {
		return fmt.Errorf("failed to save line: %w", err)
	}
	return nil
}

// ListLines implements transcript.Repository
func (g *GormTranscriptRepo) ListLines(ctx context.Context, sessionID uuid.UUID) ([]transcript.Line, error) {
	var entities []LineEntity
	if err := g.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("generation_id ASC").
		Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}

	lines := make([]transcript.Line, len(entities))
	for i := range entities {
		lines[i] = entities[i].ToDomain()
	}
	return lines, nil
}

// SaveSummary implements transcript.Repository. A session keeps only its latest summary.
func (g *GormTranscriptRepo) SaveSummary(ctx context.Context, s *transcript.Summary) error {
	entity := &SummaryEntity{}
	entity.FromDomain(s)
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "action_items", "created_at"}),
	}).Create(entity).Error
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// GetSummary implements transcript.Repository
func (g *GormTranscriptRepo) GetSummary(ctx context.Context, sessionID uuid.UUID) (*transcript.Summary, error) {
	var entity SummaryEntity
	if err := g.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transcript.ErrSummaryNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return entity.ToDomain(), nil
}

func NewGormTranscriptRepo(db *gorm.DB) transcript.Repository {
	return &GormTranscriptRepo{db: db}
}
