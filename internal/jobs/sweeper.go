package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/services"
)

// Sweeper runs the audit-log and interaction retention policy on a schedule.
type Sweeper struct {
	log      *logger.Logger
	auditSvc services.AuditService
	cron     *cron.Cron
}

func NewSweeper(baseLog *logger.Logger, auditSvc services.AuditService) *Sweeper {
	return &Sweeper{
		log:      baseLog.With("job", "RetentionSweeper"),
		auditSvc: auditSvc,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.auditSvc.Sweep(ctx); err != nil {
			s.log.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bad sweep schedule %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
