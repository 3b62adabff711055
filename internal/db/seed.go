package db

import (
	"context"

	"gorm.io/datatypes"

	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// DefaultHRMRules is the system rule set. Rules are declarative
// configuration owned by the migration/seed process; users can only override
// weights, never edit these rows.
func DefaultHRMRules() []*types.HRMRule {
	taskOnly := datatypes.JSON(`["task"]`)
	taskAndJournal := datatypes.JSON(`["task","journal_entry"]`)
	return []*types.HRMRule{
		{
			RuleCode:             "TEMPORAL_DEADLINE_URGENCY",
			HierarchyLevel:       "task",
			AppliesToEntityTypes: taskOnly,
			RuleType:             types.RuleTypeTemporal,
			RuleConfig: datatypes.JSON(`{
				"urgency_bands": [
					{"max_days": 1, "score": 1.0},
					{"max_days": 3, "score": 0.8},
					{"max_days": 7, "score": 0.6},
					{"max_days": 14, "score": 0.4}
				],
				"default_score": 0.2
			}`),
			BaseWeight: 0.9,
			IsActive:   true,
			Version:    1,
		},
		{
			RuleCode:             "SCORING_CONTEXT_BLEND",
			HierarchyLevel:       "task",
			AppliesToEntityTypes: taskOnly,
			RuleType:             types.RuleTypeScoring,
			RuleConfig: datatypes.JSON(`{
				"factors": {
					"has_context": 0.3,
					"in_project": 0.3,
					"energy_match": 0.4
				}
			}`),
			BaseWeight: 0.6,
			IsActive:   true,
			Version:    1,
		},
		{
			RuleCode:             "RELATIONSHIP_CONFLICT_SYNERGY",
			HierarchyLevel:       "project",
			AppliesToEntityTypes: taskOnly,
			RuleType:             types.RuleTypeRelationship,
			RuleConfig:           datatypes.JSON(`{"conflict_penalty": 0.2, "synergy_boost": 0.15}`),
			BaseWeight:           0.5,
			IsActive:             true,
			Version:              1,
		},
		{
			RuleCode:             "CONSTRAINT_BLOCKING_DEPENDENCIES",
			HierarchyLevel:       "task",
			AppliesToEntityTypes: taskOnly,
			RuleType:             types.RuleTypeConstraint,
			RuleConfig:           datatypes.JSON(`{"blocking_penalty": 0.5}`),
			BaseWeight:           0.8,
			IsActive:             true,
			Version:              1,
		},
		{
			RuleCode:             "PATTERN_MOMENTUM_WINDOW",
			HierarchyLevel:       "area",
			AppliesToEntityTypes: taskAndJournal,
			RuleType:             types.RuleTypePatternMatching,
			RuleConfig:           datatypes.JSON(`{"window_periods": 14, "recent_periods": 3, "neutral_score": 0.5}`),
			BaseWeight:           0.4,
			RequiresLLM:          true,
			IsActive:             true,
			Version:              1,
		},
		{
			RuleCode:             "FILTERING_ACTIONABLE_STATUS",
			HierarchyLevel:       "task",
			AppliesToEntityTypes: taskOnly,
			RuleType:             types.RuleTypeFiltering,
			RuleConfig:           datatypes.JSON(`{"statuses": ["todo", "in_progress"]}`),
			BaseWeight:           1.0,
			IsActive:             true,
			Version:              1,
		},
	}
}

// SeedHRMRules upserts the system rule set keyed by rule_code.
func SeedHRMRules(ctx context.Context, ruleRepo repos.HRMRuleRepo) error {
	return ruleRepo.Seed(ctx, nil, DefaultHRMRules())
}
