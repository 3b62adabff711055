package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Task struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID     *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Description   string         `gorm:"column:description" json:"description"`
	Status        string         `gorm:"column:status;not null" json:"status"`
	DueDate       *time.Time     `gorm:"column:due_date" json:"due_date,omitempty"`
	EnergyLevel   string         `gorm:"column:energy_level" json:"energy_level,omitempty"`
	CognitiveLoad string         `gorm:"column:cognitive_load" json:"cognitive_load,omitempty"`
	PriorityScore float64        `gorm:"column:priority_score;default:0" json:"priority_score"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Task) TableName() string { return "task" }
