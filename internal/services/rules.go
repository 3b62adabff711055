package services

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// EntityLink describes one relationship edge for relationship rules.
type EntityLink struct {
	TargetID uuid.UUID `json:"target_id"`
	Relation string    `json:"relation"` // "conflict" or "synergy"
}

// EntityContext is the evaluation input for one entity. The worker builds it
// from the event store; the engine itself never touches the database.
type EntityContext struct {
	EntityType     string
	EntityID       uuid.UUID
	Status         string
	DueDate        *time.Time
	Factors        map[string]float64 // named scoring inputs in [0,1]
	Links          []EntityLink
	BlockedByCount int
	// History is the chronological per-period activity series used by
	// pattern-matching rules, oldest first.
	History []float64
	Now     time.Time
}

// RuleFiring is one entry of an insight's reasoning path.
type RuleFiring struct {
	RuleCode     string  `json:"rule_code"`
	RuleType     string  `json:"rule_type"`
	Weight       float64 `json:"weight"`
	Score        float64 `json:"score"`
	Contribution float64 `json:"contribution"`
	Reasoning    string  `json:"reasoning"`
}

// ScoreResult aggregates the weighted rule contributions plus the ordered
// trace of every rule that fired.
type ScoreResult struct {
	Total      float64      `json:"total"`
	Normalized float64      `json:"normalized"` // Total / sum of effective weights, clamped to [0,1]
	Path       []RuleFiring `json:"reasoning_path"`
	Filtered   bool         `json:"filtered"` // a filtering rule declared the entity ineligible
}

// Per-rule-type config payloads decoded from HRMRule.RuleConfig. One variant
// per rule type keeps new rule types additive.
type temporalConfig struct {
	UrgencyBands []struct {
		MaxDays float64 `json:"max_days"`
		Score   float64 `json:"score"`
	} `json:"urgency_bands"`
	DefaultScore float64 `json:"default_score"`
}

type scoringConfig struct {
	Factors map[string]float64 `json:"factors"`
}

type relationshipConfig struct {
	ConflictPenalty float64 `json:"conflict_penalty"`
	SynergyBoost    float64 `json:"synergy_boost"`
}

type constraintConfig struct {
	BlockingPenalty float64 `json:"blocking_penalty"`
}

type patternConfig struct {
	WindowPeriods int     `json:"window_periods"`
	RecentPeriods int     `json:"recent_periods"`
	NeutralScore  float64 `json:"neutral_score"`
}

type filteringConfig struct {
	Statuses []string `json:"statuses"`
}

// RuleEngine evaluates the declarative rule set against an entity. It is
// stateless and safe for concurrent use.
type RuleEngine struct {
	log *logger.Logger
}

func NewRuleEngine(baseLog *logger.Logger) *RuleEngine {
	return &RuleEngine{log: baseLog.With("service", "RuleEngine")}
}

// Score computes Σ(base_weight × user_override × evaluate(entity)) over all
// active rules whose applies_to_entity_types include the entity's type. The
// returned path lists rules in evaluation order (rule_code ascending) with
// their individual contributions.
func (e *RuleEngine) Score(entity EntityContext, rules []*types.HRMRule, pref *types.HRMUserPreference) (*ScoreResult, error) {
	overrides := map[string]float64{}
	if pref != nil && len(pref.RuleWeightOverrides) > 0 {
		if err := json.Unmarshal(pref.RuleWeightOverrides, &overrides); err != nil {
			return nil, fmt.Errorf("bad rule weight overrides: %w", err)
		}
	}

	ordered := make([]*types.HRMRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		applies, err := ruleApplies(rule, entity.EntityType)
		if err != nil {
			return nil, err
		}
		if applies {
			ordered = append(ordered, rule)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RuleCode < ordered[j].RuleCode })

	result := &ScoreResult{}
	var weightSum float64
	for _, rule := range ordered {
		score, reasoning, fired, err := e.evaluate(rule, entity)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.RuleCode, err)
		}
		if !fired {
			continue
		}
		override := 1.0
		if v, ok := overrides[rule.RuleCode]; ok {
			override = v
		}
		weight := rule.BaseWeight * override
		contribution := weight * score
		if rule.RuleType == types.RuleTypeFiltering && score == 0 {
			result.Filtered = true
		}
		result.Total += contribution
		weightSum += math.Abs(weight)
		result.Path = append(result.Path, RuleFiring{
			RuleCode:     rule.RuleCode,
			RuleType:     rule.RuleType,
			Weight:       weight,
			Score:        score,
			Contribution: contribution,
			Reasoning:    reasoning,
		})
	}
	if weightSum > 0 {
		result.Normalized = clamp01(result.Total / weightSum)
	}
	return result, nil
}

func (e *RuleEngine) evaluate(rule *types.HRMRule, entity EntityContext) (float64, string, bool, error) {
	raw := json.RawMessage(rule.RuleConfig)
	switch rule.RuleType {
	case types.RuleTypeTemporal:
		return evalTemporal(raw, entity)
	case types.RuleTypeScoring:
		return evalScoring(raw, entity)
	case types.RuleTypeRelationship:
		return evalRelationship(raw, entity)
	case types.RuleTypeConstraint:
		return evalConstraint(raw, entity)
	case types.RuleTypePatternMatching:
		return evalPattern(raw, entity)
	case types.RuleTypeFiltering:
		return evalFiltering(raw, entity)
	default:
		return 0, "", false, fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
}

// Temporal rules score by time-to-deadline, highest band first. An entity
// without a due date does not fire.
func evalTemporal(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg temporalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	if entity.DueDate == nil {
		return 0, "no due date set", false, nil
	}
	now := entity.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	days := entity.DueDate.Sub(now).Hours() / 24
	for _, band := range cfg.UrgencyBands {
		if days <= band.MaxDays {
			return band.Score, fmt.Sprintf("due in %.1f days (band <= %.0f)", days, band.MaxDays), true, nil
		}
	}
	return cfg.DefaultScore, fmt.Sprintf("due in %.1f days (beyond all bands)", days), true, nil
}

// Scoring rules blend weighted factors: Σ(w_i × factor_i) / Σ(w_i) over the
// factors present on the entity.
func evalScoring(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg scoringConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	var sum, weightSum float64
	var used int
	names := make([]string, 0, len(cfg.Factors))
	for name := range cfg.Factors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := entity.Factors[name]
		if !ok {
			continue
		}
		w := cfg.Factors[name]
		sum += w * v
		weightSum += w
		used++
	}
	if used == 0 || weightSum == 0 {
		return 0, "no configured factors present", false, nil
	}
	score := clamp01(sum / weightSum)
	return score, fmt.Sprintf("blended %d factors", used), true, nil
}

// Relationship rules net synergy boosts against conflict penalties across
// linked entities.
func evalRelationship(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg relationshipConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	if len(entity.Links) == 0 {
		return 0, "no linked entities", false, nil
	}
	var conflicts, synergies int
	for _, link := range entity.Links {
		switch link.Relation {
		case "conflict":
			conflicts++
		case "synergy":
			synergies++
		}
	}
	score := clamp01(0.5 + float64(synergies)*cfg.SynergyBoost - float64(conflicts)*cfg.ConflictPenalty)
	return score, fmt.Sprintf("%d synergies, %d conflicts", synergies, conflicts), true, nil
}

// Constraint rules apply a hard penalty per blocking dependency.
func evalConstraint(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg constraintConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	if entity.BlockedByCount == 0 {
		return 1.0, "no blocking dependencies", true, nil
	}
	score := clamp01(1.0 - float64(entity.BlockedByCount)*cfg.BlockingPenalty)
	return score, fmt.Sprintf("blocked by %d dependencies", entity.BlockedByCount), true, nil
}

// Pattern-matching rules compare recent momentum against the trailing
// historical window: above-average recent activity scores above neutral.
func evalPattern(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg patternConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	window := cfg.WindowPeriods
	if window <= 0 {
		window = 7
	}
	recent := cfg.RecentPeriods
	if recent <= 0 {
		recent = 2
	}
	if len(entity.History) < recent {
		return 0, "insufficient history", false, nil
	}
	series := entity.History
	if len(series) > window {
		series = series[len(series)-window:]
	}
	var windowSum float64
	for _, v := range series {
		windowSum += v
	}
	windowAvg := windowSum / float64(len(series))

	var recentSum float64
	for _, v := range series[len(series)-min(recent, len(series)):] {
		recentSum += v
	}
	recentAvg := recentSum / float64(min(recent, len(series)))

	neutral := cfg.NeutralScore
	if neutral == 0 {
		neutral = 0.5
	}
	if windowAvg == 0 {
		return neutral, "no activity in window", true, nil
	}
	momentum := recentAvg / windowAvg
	score := clamp01(neutral * momentum)
	return score, fmt.Sprintf("momentum %.2fx window average", momentum), true, nil
}

// Filtering rules gate eligibility: score 1 when the entity's status is in
// the configured set, 0 otherwise.
func evalFiltering(raw json.RawMessage, entity EntityContext) (float64, string, bool, error) {
	var cfg filteringConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, "", false, err
	}
	if len(cfg.Statuses) == 0 {
		return 0, "no statuses configured", false, nil
	}
	for _, status := range cfg.Statuses {
		if status == entity.Status {
			return 1, fmt.Sprintf("status %q eligible", entity.Status), true, nil
		}
	}
	return 0, fmt.Sprintf("status %q not eligible", entity.Status), true, nil
}

func ruleApplies(rule *types.HRMRule, entityType string) (bool, error) {
	if len(rule.AppliesToEntityTypes) == 0 {
		return false, nil
	}
	var entityTypes []string
	if err := json.Unmarshal(rule.AppliesToEntityTypes, &entityTypes); err != nil {
		return false, fmt.Errorf("bad applies_to_entity_types for %s: %w", rule.RuleCode, err)
	}
	for _, et := range entityTypes {
		if et == entityType {
			return true, nil
		}
	}
	return false, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
