package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// FeatureCount is one slice of the per-feature usage breakdown.
type FeatureCount struct {
	FeatureType string `json:"feature_type"`
	Total       int64  `json:"total"`
	Successful  int64  `json:"successful"`
}

type AIInteractionRepo interface {
	// CreateCounted inserts one interaction row and, when the row is a
	// successful one, enforces the monthly limit as part of the same
	// statement sequence: the count and the insert run under a per-user
	// advisory lock so two concurrent calls cannot both pass the limit
	// check. Returns whether the row counted toward quota and the new
	// successful count for the window.
	CreateCounted(ctx context.Context, tx *gorm.DB, interaction *types.AIInteraction, windowStart time.Time, limit int) (bool, int64, error)
	CountSuccessfulSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	CountSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	BreakdownByFeatureSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*FeatureCount, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type aiInteractionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAIInteractionRepo(db *gorm.DB, baseLog *logger.Logger) AIInteractionRepo {
	repoLog := baseLog.With("repo", "AIInteractionRepo")
	return &aiInteractionRepo{db: db, log: repoLog}
}

func (r *aiInteractionRepo) CreateCounted(ctx context.Context, tx *gorm.DB, interaction *types.AIInteraction, windowStart time.Time, limit int) (bool, int64, error) {
	outer := tx
	if outer == nil {
		outer = r.db
	}
	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	counted := false
	var newCount int64
	err := outer.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		// Serialize the count-then-insert pair per user. Postgres needs the
		// advisory lock; sqlite has a single writer and needs nothing.
		if t.Dialector.Name() == "postgres" {
			if err := t.Exec(`SELECT pg_advisory_xact_lock(hashtextextended(?, 0))`, interaction.UserID.String()).Error; err != nil {
				return err
			}
		}
		var used int64
		if err := t.Model(&types.AIInteraction{}).
			Where("user_id = ? AND success = ? AND created_at >= ?", interaction.UserID, true, windowStart).
			Count(&used).Error; err != nil {
			return err
		}
		if interaction.Success && used >= int64(limit) {
			// Quota filled between dispatch-time check and completion.
			// The attempt is still logged, but never as a counted success.
			interaction.Success = false
			if interaction.ErrorMessage == "" {
				interaction.ErrorMessage = "monthly quota exhausted"
			}
		}
		if err := t.Create(interaction).Error; err != nil {
			return err
		}
		newCount = used
		if interaction.Success {
			counted = true
			newCount = used + 1
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return counted, newCount, nil
}

func (r *aiInteractionRepo) CountSuccessfulSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.AIInteraction{}).
		Where("user_id = ? AND success = ? AND created_at >= ?", userID, true, since).
		Count(&count).Error
	return count, err
}

func (r *aiInteractionRepo) CountSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.AIInteraction{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *aiInteractionRepo) BreakdownByFeatureSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*FeatureCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*FeatureCount
	err := transaction.WithContext(ctx).
		Model(&types.AIInteraction{}).
		Select(`feature_type,
			COUNT(*) AS total,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successful`).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("feature_type").
		Order("feature_type ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *aiInteractionRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&types.AIInteraction{})
	return res.RowsAffected, res.Error
}
