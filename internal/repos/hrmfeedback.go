package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type HRMFeedbackRepo interface {
	Create(ctx context.Context, tx *gorm.DB, feedback *types.HRMFeedback) (*types.HRMFeedback, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.HRMFeedback, error)
	ListByInsightID(ctx context.Context, tx *gorm.DB, insightID uuid.UUID) ([]*types.HRMFeedback, error)
}

type hrmFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHRMFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) HRMFeedbackRepo {
	repoLog := baseLog.With("repo", "HRMFeedbackRepo")
	return &hrmFeedbackRepo{db: db, log: repoLog}
}

func (r *hrmFeedbackRepo) Create(ctx context.Context, tx *gorm.DB, feedback *types.HRMFeedback) (*types.HRMFeedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(feedback).Error; err != nil {
		return nil, err
	}
	return feedback, nil
}

func (r *hrmFeedbackRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.HRMFeedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.HRMFeedback
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *hrmFeedbackRepo) ListByInsightID(ctx context.Context, tx *gorm.DB, insightID uuid.UUID) ([]*types.HRMFeedback, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.HRMFeedback
	if err := transaction.WithContext(ctx).
		Where("insight_id = ?", insightID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
