package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Insight is a versioned, scored recommendation produced by the rule-weighted
// engine. A recomputation for the same (user, entity, insight_type) never
// overwrites a row: it inserts a new version linked via PreviousVersionID and
// flips the old row to is_active = false.
type Insight struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EntityType        string         `gorm:"column:entity_type;not null;index" json:"entity_type"`
	EntityID          *uuid.UUID     `gorm:"type:uuid;index" json:"entity_id,omitempty"`
	InsightType       string         `gorm:"column:insight_type;not null;index" json:"insight_type"`
	Title             string         `gorm:"column:title;not null" json:"title"`
	Summary           string         `gorm:"column:summary" json:"summary"`
	DetailedReasoning datatypes.JSON `gorm:"type:jsonb;column:detailed_reasoning" json:"detailed_reasoning"`
	ConfidenceScore   float64        `gorm:"column:confidence_score;not null" json:"confidence_score"`
	ImpactScore       float64        `gorm:"column:impact_score;not null" json:"impact_score"`
	ReasoningPath     datatypes.JSON `gorm:"type:jsonb;column:reasoning_path" json:"reasoning_path"`
	UserFeedback      string         `gorm:"column:user_feedback" json:"user_feedback,omitempty"`
	Version           int            `gorm:"column:version;not null;default:1" json:"version"`
	PreviousVersionID *uuid.UUID     `gorm:"type:uuid" json:"previous_version_id,omitempty"`
	IsActive          bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	ExpiresAt         *time.Time     `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Insight) TableName() string { return "insight" }
