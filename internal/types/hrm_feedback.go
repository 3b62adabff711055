package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FeedbackTypeAccurate      = "accurate"
	FeedbackTypeInaccurate    = "inaccurate"
	FeedbackTypeScoreAdjusted = "score_adjusted"
	FeedbackTypeDismissed     = "dismissed"
)

// HRMFeedback is the append-only log of user corrections to generated
// insights. AppliedRules snapshots the reasoning path at feedback time so
// later weight tuning can work against what the user actually saw.
type HRMFeedback struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	InsightID         *uuid.UUID     `gorm:"type:uuid;index" json:"insight_id,omitempty"`
	FeedbackType      string         `gorm:"column:feedback_type;not null" json:"feedback_type"`
	OriginalScore     *float64       `gorm:"column:original_score" json:"original_score,omitempty"`
	UserAdjustedScore *float64       `gorm:"column:user_adjusted_score" json:"user_adjusted_score,omitempty"`
	AppliedRules      datatypes.JSON `gorm:"type:jsonb;column:applied_rules" json:"applied_rules"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
}

func (HRMFeedback) TableName() string { return "hrm_feedback" }
