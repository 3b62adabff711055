package services

import (
	"context"
	"time"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

const (
	DefaultStatsWindowDays          = 7
	DefaultDispatchRetentionDays    = 30
	DefaultInteractionRetentionDays = 183 // six months
)

// SweepResult reports what one retention pass removed.
type SweepResult struct {
	DispatchRowsDeleted    int64 `json:"dispatch_rows_deleted"`
	InteractionRowsDeleted int64 `json:"interaction_rows_deleted"`
}

// AuditService is the read model plus retention policy over the dispatch
// audit log. The log itself is written by the capture hooks; workers flip
// row status; this service only reads and sweeps.
type AuditService interface {
	Stats(ctx context.Context, windowDays int) ([]*repos.WebhookStats, error)
	// StalePending lists dispatches whose audit row has sat pending longer
	// than olderThan. A consumer reconnecting after downtime reconciles
	// against this, not against bus delivery order.
	StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*types.DispatchLog, error)
	Sweep(ctx context.Context) (*SweepResult, error)
}

type auditService struct {
	log                      *logger.Logger
	dispatchRepo             repos.DispatchLogRepo
	interactions             repos.AIInteractionRepo
	dispatchRetentionDays    int
	interactionRetentionDays int
	now                      func() time.Time
}

func NewAuditService(baseLog *logger.Logger, dispatchRepo repos.DispatchLogRepo, interactions repos.AIInteractionRepo, dispatchRetentionDays, interactionRetentionDays int) AuditService {
	if dispatchRetentionDays <= 0 {
		dispatchRetentionDays = DefaultDispatchRetentionDays
	}
	if interactionRetentionDays <= 0 {
		interactionRetentionDays = DefaultInteractionRetentionDays
	}
	return &auditService{
		log:                      baseLog.With("service", "AuditService"),
		dispatchRepo:             dispatchRepo,
		interactions:             interactions,
		dispatchRetentionDays:    dispatchRetentionDays,
		interactionRetentionDays: interactionRetentionDays,
		now:                      func() time.Time { return time.Now().UTC() },
	}
}

func (s *auditService) Stats(ctx context.Context, windowDays int) ([]*repos.WebhookStats, error) {
	if windowDays <= 0 {
		windowDays = DefaultStatsWindowDays
	}
	since := s.now().AddDate(0, 0, -windowDays)
	return s.dispatchRepo.StatsByWebhookType(ctx, nil, since)
}

func (s *auditService) StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*types.DispatchLog, error) {
	cutoff := s.now().Add(-olderThan)
	return s.dispatchRepo.ListPendingOlderThan(ctx, nil, cutoff, limit)
}

func (s *auditService) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	dispatchDeleted, err := s.dispatchRepo.DeleteOlderThan(ctx, nil, now.AddDate(0, 0, -s.dispatchRetentionDays))
	if err != nil {
		return nil, err
	}
	interactionDeleted, err := s.interactions.DeleteOlderThan(ctx, nil, now.AddDate(0, 0, -s.interactionRetentionDays))
	if err != nil {
		return nil, err
	}
	result := &SweepResult{
		DispatchRowsDeleted:    dispatchDeleted,
		InteractionRowsDeleted: interactionDeleted,
	}
	if dispatchDeleted > 0 || interactionDeleted > 0 {
		s.log.Info("retention sweep removed rows",
			"dispatch_rows", dispatchDeleted, "interaction_rows", interactionDeleted)
	}
	return result, nil
}
