package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type InsightRepo interface {
	Create(ctx context.Context, tx *gorm.DB, insight *types.Insight) (*types.Insight, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Insight, error)
	GetActiveFor(ctx context.Context, tx *gorm.DB, userID uuid.UUID, entityType string, entityID *uuid.UUID, insightType string) (*types.Insight, error)
	Deactivate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ListActiveForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) ([]*types.Insight, error)
	SetUserFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback string) error
}

type insightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	repoLog := baseLog.With("repo", "InsightRepo")
	return &insightRepo{db: db, log: repoLog}
}

func (r *insightRepo) Create(ctx context.Context, tx *gorm.DB, insight *types.Insight) (*types.Insight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(insight).Error; err != nil {
		return nil, err
	}
	return insight, nil
}

func (r *insightRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Insight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Insight
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *insightRepo) GetActiveFor(ctx context.Context, tx *gorm.DB, userID uuid.UUID, entityType string, entityID *uuid.UUID, insightType string) (*types.Insight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND entity_type = ? AND insight_type = ? AND is_active = ?", userID, entityType, insightType, true)
	if entityID != nil {
		q = q.Where("entity_id = ?", *entityID)
	} else {
		q = q.Where("entity_id IS NULL")
	}
	var result types.Insight
	err := q.First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *insightRepo) Deactivate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Insight{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// ListActiveForUser excludes expired insights but does not delete them;
// expiry is a query-time filter only.
func (r *insightRepo) ListActiveForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) ([]*types.Insight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Insight
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *insightRepo) SetUserFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Insight{}).
		Where("id = ?", id).
		Update("user_feedback", feedback).Error
}
