package types

import (
	"time"

	"github.com/google/uuid"
)

// FeatureType is the closed set of AI features that consume quota. Quota
// accounting rejects anything outside this list before any row is written.
type FeatureType string

const (
	FeatureSentimentAnalysis    FeatureType = "sentiment_analysis"
	FeatureHRMAnalysis          FeatureType = "hrm_analysis"
	FeatureTaskWhyStatements    FeatureType = "task_why_statements"
	FeatureFocusSuggestions     FeatureType = "focus_suggestions"
	FeatureTodayPriorities      FeatureType = "today_priorities"
	FeatureGoalCoaching         FeatureType = "goal_coaching"
	FeatureProjectDecomposition FeatureType = "project_decomposition"
	FeatureStrategicPlanning    FeatureType = "strategic_planning"
)

var allFeatureTypes = map[FeatureType]bool{
	FeatureSentimentAnalysis:    true,
	FeatureHRMAnalysis:          true,
	FeatureTaskWhyStatements:    true,
	FeatureFocusSuggestions:     true,
	FeatureTodayPriorities:      true,
	FeatureGoalCoaching:         true,
	FeatureProjectDecomposition: true,
	FeatureStrategicPlanning:    true,
}

func (f FeatureType) Valid() bool { return allFeatureTypes[f] }

// AIInteraction records one attempted enrichment call, success or failure.
// Rows are never mutated; the quota window is derived from them on demand.
type AIInteraction struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	FeatureType      string    `gorm:"column:feature_type;not null;index" json:"feature_type"`
	TokensUsed       int       `gorm:"column:tokens_used;not null;default:0" json:"tokens_used"`
	Success          bool      `gorm:"column:success;not null" json:"success"`
	ErrorMessage     string    `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessingTimeMS int64     `gorm:"column:processing_time_ms;not null;default:0" json:"processing_time_ms"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
}

func (AIInteraction) TableName() string { return "ai_interaction" }
