package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type TaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error)
	Update(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Task, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Task, error)
	SoftDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetPriorityScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64) error
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	repoLog := baseLog.With("repo", "TaskRepo")
	return &taskRepo{db: db, log: repoLog}
}

func (r *taskRepo) Create(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepo) Update(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Save(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Task
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *taskRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Task
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *taskRepo) SoftDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Task{}).Error
}

func (r *taskRepo) SetPriorityScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id = ?", id).
		Update("priority_score", score).Error
}
