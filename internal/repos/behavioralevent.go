package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type BehavioralEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.BehavioralEvent) ([]*types.BehavioralEvent, error)
	GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.BehavioralEvent, error)
	ListUserIDsWithEventsSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error)
}

type behavioralEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBehavioralEventRepo(db *gorm.DB, baseLog *logger.Logger) BehavioralEventRepo {
	repoLog := baseLog.With("repo", "BehavioralEventRepo")
	return &behavioralEventRepo{db: db, log: repoLog}
}

func (r *behavioralEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.BehavioralEvent) ([]*types.BehavioralEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.BehavioralEvent{}, nil
	}
	for _, ev := range events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
	}
	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *behavioralEventRepo) GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.BehavioralEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BehavioralEvent
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("timestamp ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *behavioralEventRepo) ListUserIDsWithEventsSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.BehavioralEvent{}).
		Where("timestamp >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
