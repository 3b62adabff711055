package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RuleTypeScoring         = "scoring"
	RuleTypeFiltering       = "filtering"
	RuleTypeRelationship    = "relationship"
	RuleTypeTemporal        = "temporal"
	RuleTypeConstraint      = "constraint"
	RuleTypePatternMatching = "pattern_matching"
)

// HRMRule is system-owned declarative configuration for the reasoning
// engine. Rows are seeded by migration and read-only at runtime; users can
// only override weights through HRMUserPreference.
type HRMRule struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RuleCode             string         `gorm:"column:rule_code;not null;uniqueIndex" json:"rule_code"`
	HierarchyLevel       string         `gorm:"column:hierarchy_level;not null" json:"hierarchy_level"`
	AppliesToEntityTypes datatypes.JSON `gorm:"type:jsonb;column:applies_to_entity_types" json:"applies_to_entity_types"`
	RuleType             string         `gorm:"column:rule_type;not null;index" json:"rule_type"`
	RuleConfig           datatypes.JSON `gorm:"type:jsonb;column:rule_config" json:"rule_config"`
	BaseWeight           float64        `gorm:"column:base_weight;not null;default:0.5" json:"base_weight"`
	RequiresLLM          bool           `gorm:"column:requires_llm;not null;default:false" json:"requires_llm"`
	IsActive             bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	Version              int            `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
}

func (HRMRule) TableName() string { return "hrm_rule" }
