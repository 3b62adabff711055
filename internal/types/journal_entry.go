package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JournalEntry struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title          string         `gorm:"column:title" json:"title"`
	Content        string         `gorm:"column:content" json:"content"`
	Mood           string         `gorm:"column:mood" json:"mood,omitempty"`
	SentimentScore *float64       `gorm:"column:sentiment_score" json:"sentiment_score,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JournalEntry) TableName() string { return "journal_entry" }
