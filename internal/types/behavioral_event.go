package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BehavioralEvent is immutable once written. It has no UpdatedAt or soft
// delete on purpose: the aggregation refresher treats the table as an
// append-only time series.
type BehavioralEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EventType      string         `gorm:"column:event_type;not null;index" json:"event_type"`
	EventData      datatypes.JSON `gorm:"type:jsonb;column:event_data" json:"event_data"`
	SessionID      *uuid.UUID     `gorm:"type:uuid;index" json:"session_id,omitempty"`
	FlowStateEvent bool           `gorm:"column:flow_state_event;not null;default:false" json:"flow_state_event"`
	Timestamp      time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
}

func (BehavioralEvent) TableName() string { return "behavioral_event" }
