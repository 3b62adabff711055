package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type HRMRuleRepo interface {
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.HRMRule, error)
	GetByCode(ctx context.Context, tx *gorm.DB, ruleCode string) (*types.HRMRule, error)
	// Seed upserts the system rule set keyed by rule_code. This is the only
	// write path; rules are read-only outside the migration/seed process.
	Seed(ctx context.Context, tx *gorm.DB, rules []*types.HRMRule) error
}

type hrmRuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHRMRuleRepo(db *gorm.DB, baseLog *logger.Logger) HRMRuleRepo {
	repoLog := baseLog.With("repo", "HRMRuleRepo")
	return &hrmRuleRepo{db: db, log: repoLog}
}

func (r *hrmRuleRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.HRMRule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.HRMRule
	if err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Order("rule_code ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *hrmRuleRepo) GetByCode(ctx context.Context, tx *gorm.DB, ruleCode string) (*types.HRMRule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.HRMRule
	if err := transaction.WithContext(ctx).
		Where("rule_code = ?", ruleCode).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *hrmRuleRepo) Seed(ctx context.Context, tx *gorm.DB, rules []*types.HRMRule) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rules) == 0 {
		return nil
	}
	for _, rule := range rules {
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "rule_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"hierarchy_level", "applies_to_entity_types", "rule_type",
				"rule_config", "base_weight", "requires_llm", "is_active", "version",
			}),
		}).
		Create(&rules).Error
}
