package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type HRMPreferenceRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.HRMUserPreference, error)
	Upsert(ctx context.Context, tx *gorm.DB, pref *types.HRMUserPreference) (*types.HRMUserPreference, error)
}

type hrmPreferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHRMPreferenceRepo(db *gorm.DB, baseLog *logger.Logger) HRMPreferenceRepo {
	repoLog := baseLog.With("repo", "HRMPreferenceRepo")
	return &hrmPreferenceRepo{db: db, log: repoLog}
}

// GetByUserID returns nil without error when the user has no preference row;
// callers fall back to defaults (all consent flags on, no overrides).
func (r *hrmPreferenceRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.HRMUserPreference, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.HRMUserPreference
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *hrmPreferenceRepo) Upsert(ctx context.Context, tx *gorm.DB, pref *types.HRMUserPreference) (*types.HRMUserPreference, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if pref.ID == uuid.Nil {
		pref.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rule_weight_overrides", "explanation_detail_level", "optimization_goal",
				"energy_pattern", "enable_ai_learning", "embed_journal_content",
				"embed_task_content", "track_behavioral_events",
			}),
		}).
		Create(pref).Error
	if err != nil {
		return nil, err
	}
	return pref, nil
}
