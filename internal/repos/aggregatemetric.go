package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type AggregateMetricRepo interface {
	// ReplaceSnapshot swaps the full rollup snapshot for one (user, rollup)
	// pair in a single transaction. Concurrent readers keep seeing the old
	// rows until the transaction commits.
	ReplaceSnapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rollup string, rows []*types.AggregateMetric) error
	ListByUserAndRollup(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rollup string) ([]*types.AggregateMetric, error)
}

type aggregateMetricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAggregateMetricRepo(db *gorm.DB, baseLog *logger.Logger) AggregateMetricRepo {
	repoLog := baseLog.With("repo", "AggregateMetricRepo")
	return &aggregateMetricRepo{db: db, log: repoLog}
}

func (r *aggregateMetricRepo) ReplaceSnapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rollup string, rows []*types.AggregateMetric) error {
	outer := tx
	if outer == nil {
		outer = r.db
	}
	return outer.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		if err := t.
			Where("user_id = ? AND rollup = ?", userID, rollup).
			Delete(&types.AggregateMetric{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			if row.ID == uuid.Nil {
				row.ID = uuid.New()
			}
			row.UserID = userID
			row.Rollup = rollup
		}
		return t.Create(&rows).Error
	})
}

func (r *aggregateMetricRepo) ListByUserAndRollup(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rollup string) ([]*types.AggregateMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AggregateMetric
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND rollup = ?", userID, rollup).
		Order("period_start ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
