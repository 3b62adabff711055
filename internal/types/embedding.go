package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EmbeddingEntityJournalEntry = "journal_entry"
	EmbeddingEntityReflection   = "reflection"
	EmbeddingEntityTask         = "task"
)

// Embedding is the semantic index entry for one entity. The
// (entity_type, entity_id) pair is unique: regeneration replaces the row in
// place, and SourceTextHash short-circuits regeneration when the source text
// has not changed.
type Embedding struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EntityType     string         `gorm:"column:entity_type;not null;uniqueIndex:idx_embedding_entity" json:"entity_type"`
	EntityID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_embedding_entity" json:"entity_id"`
	Title          string         `gorm:"column:title" json:"title"`
	Content        string         `gorm:"column:content" json:"content"`
	Vector         datatypes.JSON `gorm:"type:jsonb;column:vector" json:"vector"`
	SourceTextHash string         `gorm:"column:source_text_hash;not null" json:"source_text_hash"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Embedding) TableName() string { return "embedding" }
