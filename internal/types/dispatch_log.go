package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	DispatchStatusPending   = "pending"
	DispatchStatusCompleted = "completed"
	DispatchStatusError     = "error"
)

// DispatchLog is the append-only audit record for every dispatch attempt.
// Rows are created by the change-capture hooks inside the mutation's
// transaction; the only mutation afterwards is a single status transition
// performed by the worker that processed the message.
type DispatchLog struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WebhookType          string     `gorm:"column:webhook_type;not null;index" json:"webhook_type"`
	UserID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceTable          string     `gorm:"column:table_name;not null" json:"table_name"`
	RecordID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"record_id"`
	TriggeredAt          time.Time  `gorm:"column:triggered_at;not null;index" json:"triggered_at"`
	ProcessedAt          *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	Status               string     `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage         string     `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessingDurationMS *int64     `gorm:"column:processing_duration_ms" json:"processing_duration_ms,omitempty"`
}

func (DispatchLog) TableName() string { return "dispatch_log" }
