package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RollupPillarAlignmentWeekly = "pillar_alignment_weekly"
	RollupAreaHabitStrength     = "area_habit_strength"
	RollupDailyFlow             = "daily_flow"
	RollupCompletionByLoad      = "completion_by_cognitive_load"
)

// AggregateMetric is a materialized rollup row. Each refresh cycle fully
// recomputes all rows for a (user, rollup) pair from the raw behavioral time
// series and replaces the previous snapshot wholesale.
type AggregateMetric struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_aggregate_user_rollup" json:"user_id"`
	Rollup       string         `gorm:"column:rollup;not null;index:idx_aggregate_user_rollup" json:"rollup"`
	SubjectID    *uuid.UUID     `gorm:"type:uuid" json:"subject_id,omitempty"`
	PeriodStart  time.Time      `gorm:"column:period_start;not null" json:"period_start"`
	MetricValues datatypes.JSON `gorm:"type:jsonb;column:metric_values" json:"metric_values"`
	ComputedAt   time.Time      `gorm:"column:computed_at;not null" json:"computed_at"`
}

func (AggregateMetric) TableName() string { return "aggregate_metric" }
