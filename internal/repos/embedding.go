package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type EmbeddingRepo interface {
	// Upsert replaces the index entry for (entity_type, entity_id)
	// atomically; there is never a partially written vector.
	Upsert(ctx context.Context, tx *gorm.DB, emb *types.Embedding) (*types.Embedding, error)
	GetByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) (*types.Embedding, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, entityTypes []string, since *time.Time) ([]*types.Embedding, error)
	DeleteByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) error
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	repoLog := baseLog.With("repo", "EmbeddingRepo")
	return &embeddingRepo{db: db, log: repoLog}
}

func (r *embeddingRepo) Upsert(ctx context.Context, tx *gorm.DB, emb *types.Embedding) (*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if emb.ID == uuid.Nil {
		emb.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "content", "vector", "source_text_hash", "updated_at",
			}),
		}).
		Create(emb).Error
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func (r *embeddingRepo) GetByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) (*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Embedding
	err := transaction.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *embeddingRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, entityTypes []string, since *time.Time) ([]*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Embedding
	if userID == uuid.Nil || len(entityTypes) == 0 {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND entity_type IN ?", userID, entityTypes)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *embeddingRepo) DeleteByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&types.Embedding{}).Error
}
