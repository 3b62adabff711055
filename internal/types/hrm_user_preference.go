package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// HRMUserPreference holds one row per user: rule weight overrides plus the
// consent flags the enrichment pipeline checks before storing embeddings or
// behavioral analytics.
type HRMUserPreference struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	RuleWeightOverrides    datatypes.JSON `gorm:"type:jsonb;column:rule_weight_overrides" json:"rule_weight_overrides"`
	ExplanationDetailLevel string         `gorm:"column:explanation_detail_level;not null" json:"explanation_detail_level"`
	OptimizationGoal       string         `gorm:"column:optimization_goal" json:"optimization_goal,omitempty"`
	EnergyPattern          string         `gorm:"column:energy_pattern" json:"energy_pattern,omitempty"`
	EnableAILearning       bool           `gorm:"column:enable_ai_learning;not null;default:true" json:"enable_ai_learning"`
	EmbedJournalContent    bool           `gorm:"column:embed_journal_content;not null;default:true" json:"embed_journal_content"`
	EmbedTaskContent       bool           `gorm:"column:embed_task_content;not null;default:true" json:"embed_task_content"`
	TrackBehavioralEvents  bool           `gorm:"column:track_behavioral_events;not null;default:true" json:"track_behavioral_events"`
	CreatedAt              time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
}

func (HRMUserPreference) TableName() string { return "hrm_user_preference" }
