package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

func taskRule(code, ruleType, config string, weight float64) *types.HRMRule {
	return &types.HRMRule{
		ID:                   uuid.New(),
		RuleCode:             code,
		HierarchyLevel:       "task",
		AppliesToEntityTypes: datatypes.JSON(`["task"]`),
		RuleType:             ruleType,
		RuleConfig:           datatypes.JSON(config),
		BaseWeight:           weight,
		IsActive:             true,
		Version:              1,
	}
}

func TestTemporalRuleUrgencyBands(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("T1", types.RuleTypeTemporal,
		`{"urgency_bands":[{"max_days":1,"score":1.0},{"max_days":7,"score":0.6}],"default_score":0.2}`, 1.0)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		dueIn   time.Duration
		want    float64
	}{
		{name: "due_tomorrow", dueIn: 20 * time.Hour, want: 1.0},
		{name: "due_this_week", dueIn: 5 * 24 * time.Hour, want: 0.6},
		{name: "due_far_out", dueIn: 30 * 24 * time.Hour, want: 0.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due := now.Add(tc.dueIn)
			result, err := engine.Score(EntityContext{
				EntityType: "task",
				EntityID:   uuid.New(),
				DueDate:    &due,
				Now:        now,
			}, []*types.HRMRule{rule}, nil)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if len(result.Path) != 1 || result.Path[0].Score != tc.want {
				t.Fatalf("score = %+v, want band score %v", result.Path, tc.want)
			}
		})
	}
}

func TestTemporalRuleSkipsWithoutDueDate(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("T1", types.RuleTypeTemporal, `{"urgency_bands":[{"max_days":1,"score":1.0}]}`, 1.0)

	result, err := engine.Score(EntityContext{EntityType: "task", EntityID: uuid.New()}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(result.Path) != 0 {
		t.Fatalf("reasoning path = %v, want no firings for a task without a due date", result.Path)
	}
}

func TestScoringRuleBlendsFactors(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("S1", types.RuleTypeScoring, `{"factors":{"a":0.75,"b":0.25}}`, 1.0)

	result, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		Factors:    map[string]float64{"a": 1.0, "b": 0.0},
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(result.Path) != 1 {
		t.Fatalf("firings = %d, want 1", len(result.Path))
	}
	if got := result.Path[0].Score; got != 0.75 {
		t.Fatalf("blended score = %v, want 0.75", got)
	}
}

func TestRelationshipRuleNetsConflictsAndSynergies(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("R1", types.RuleTypeRelationship, `{"conflict_penalty":0.2,"synergy_boost":0.1}`, 1.0)

	result, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		Links: []EntityLink{
			{TargetID: uuid.New(), Relation: "synergy"},
			{TargetID: uuid.New(), Relation: "synergy"},
			{TargetID: uuid.New(), Relation: "conflict"},
		},
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// 0.5 + 2*0.1 - 1*0.2 = 0.5
	if got := result.Path[0].Score; got != 0.5 {
		t.Fatalf("relationship score = %v, want 0.5", got)
	}
}

func TestConstraintRulePenalizesBlockers(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("C1", types.RuleTypeConstraint, `{"blocking_penalty":0.4}`, 1.0)

	blocked, err := engine.Score(EntityContext{
		EntityType:     "task",
		EntityID:       uuid.New(),
		BlockedByCount: 2,
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := blocked.Path[0].Score; got < 0.19 || got > 0.21 {
		t.Fatalf("blocked score = %v, want ~0.2", got)
	}

	free, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := free.Path[0].Score; got != 1.0 {
		t.Fatalf("unblocked score = %v, want 1.0", got)
	}
}

func TestPatternRuleScoresMomentum(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("P1", types.RuleTypePatternMatching, `{"window_periods":5,"recent_periods":2,"neutral_score":0.5}`, 1.0)

	rising, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		History:    []float64{1, 1, 1, 2, 2},
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := rising.Path[0].Score; got <= 0.5 {
		t.Fatalf("rising momentum score = %v, want above neutral 0.5", got)
	}

	short, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		History:    []float64{1},
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(short.Path) != 0 {
		t.Fatal("pattern rule fired with insufficient history")
	}
}

func TestFilteringRuleGatesEligibility(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("F1", types.RuleTypeFiltering, `{"statuses":["todo"]}`, 1.0)

	eligible, err := engine.Score(EntityContext{EntityType: "task", EntityID: uuid.New(), Status: "todo"}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if eligible.Filtered {
		t.Fatal("eligible entity flagged as filtered")
	}

	filtered, err := engine.Score(EntityContext{EntityType: "task", EntityID: uuid.New(), Status: "done"}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !filtered.Filtered {
		t.Fatal("ineligible entity not flagged as filtered")
	}
}

func TestUserOverrideScalesWeight(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("S1", types.RuleTypeScoring, `{"factors":{"a":1.0}}`, 0.5)
	entity := EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		Factors:    map[string]float64{"a": 1.0},
	}

	plain, err := engine.Score(entity, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	pref := &types.HRMUserPreference{RuleWeightOverrides: datatypes.JSON(`{"S1":2.0}`)}
	boosted, err := engine.Score(entity, []*types.HRMRule{rule}, pref)
	if err != nil {
		t.Fatalf("Score with override: %v", err)
	}
	if boosted.Path[0].Contribution != 2*plain.Path[0].Contribution {
		t.Fatalf("override contribution = %v, want double %v", boosted.Path[0].Contribution, plain.Path[0].Contribution)
	}
}

func TestRulesOnlyApplyToMatchingEntityTypes(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rule := taskRule("S1", types.RuleTypeScoring, `{"factors":{"a":1.0}}`, 1.0)

	result, err := engine.Score(EntityContext{
		EntityType: "journal_entry",
		EntityID:   uuid.New(),
		Factors:    map[string]float64{"a": 1.0},
	}, []*types.HRMRule{rule}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(result.Path) != 0 {
		t.Fatal("task-only rule fired for a journal entry")
	}
}

func TestReasoningPathOrderedAndComplete(t *testing.T) {
	engine := NewRuleEngine(logger.NewNop())
	rules := []*types.HRMRule{
		taskRule("B_RULE", types.RuleTypeScoring, `{"factors":{"a":1.0}}`, 0.5),
		taskRule("A_RULE", types.RuleTypeConstraint, `{"blocking_penalty":0.5}`, 0.8),
	}

	result, err := engine.Score(EntityContext{
		EntityType: "task",
		EntityID:   uuid.New(),
		Factors:    map[string]float64{"a": 0.5},
	}, rules, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(result.Path) != 2 {
		t.Fatalf("firings = %d, want 2", len(result.Path))
	}
	if result.Path[0].RuleCode != "A_RULE" || result.Path[1].RuleCode != "B_RULE" {
		t.Fatalf("path order = %s,%s, want rule_code ascending", result.Path[0].RuleCode, result.Path[1].RuleCode)
	}
	var total float64
	for _, firing := range result.Path {
		total += firing.Contribution
	}
	if total != result.Total {
		t.Fatalf("sum of contributions %v != total %v", total, result.Total)
	}
	if result.Normalized < 0 || result.Normalized > 1 {
		t.Fatalf("normalized = %v, want within [0,1]", result.Normalized)
	}
}
