package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type JournalEntryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.JournalEntry) (*types.JournalEntry, error)
	Update(ctx context.Context, tx *gorm.DB, entry *types.JournalEntry) (*types.JournalEntry, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JournalEntry, error)
	SetSentimentScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64) error
}

type journalEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJournalEntryRepo(db *gorm.DB, baseLog *logger.Logger) JournalEntryRepo {
	repoLog := baseLog.With("repo", "JournalEntryRepo")
	return &journalEntryRepo{db: db, log: repoLog}
}

func (r *journalEntryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.JournalEntry) (*types.JournalEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *journalEntryRepo) Update(ctx context.Context, tx *gorm.DB, entry *types.JournalEntry) (*types.JournalEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Save(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *journalEntryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JournalEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.JournalEntry
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *journalEntryRepo) SetSentimentScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.JournalEntry{}).
		Where("id = ?", id).
		Update("sentiment_score", score).Error
}
