package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// WebhookStats is the read model over the dispatch audit log for one
// webhook type within a trailing window.
type WebhookStats struct {
	WebhookType         string     `json:"webhook_type"`
	TotalTriggers       int64      `json:"total_triggers"`
	AvgProcessingTimeMS float64    `json:"avg_processing_time_ms"`
	SuccessRate         float64    `json:"success_rate"`
	LastTriggered       *time.Time `json:"last_triggered"`
}

type DispatchLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entries []*types.DispatchLog) ([]*types.DispatchLog, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DispatchLog, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, durationMS int64) error
	MarkError(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string, durationMS int64) error
	ListPendingOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.DispatchLog, error)
	ListPendingForRecord(ctx context.Context, tx *gorm.DB, webhookType string, recordID uuid.UUID) ([]*types.DispatchLog, error)
	StatsByWebhookType(ctx context.Context, tx *gorm.DB, since time.Time) ([]*WebhookStats, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dispatchLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDispatchLogRepo(db *gorm.DB, baseLog *logger.Logger) DispatchLogRepo {
	repoLog := baseLog.With("repo", "DispatchLogRepo")
	return &dispatchLogRepo{db: db, log: repoLog}
}

func (r *dispatchLogRepo) Create(ctx context.Context, tx *gorm.DB, entries []*types.DispatchLog) ([]*types.DispatchLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return []*types.DispatchLog{}, nil
	}
	now := time.Now().UTC()
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Status == "" {
			e.Status = types.DispatchStatusPending
		}
		if e.TriggeredAt.IsZero() {
			e.TriggeredAt = now
		}
	}
	if err := transaction.WithContext(ctx).Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *dispatchLogRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DispatchLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.DispatchLog
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkCompleted transitions a pending entry exactly once. The status guard in
// the WHERE clause makes a second completion attempt a no-op instead of a
// second mutation of the audit row.
func (r *dispatchLogRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, durationMS int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.DispatchLog{}).
		Where("id = ? AND status = ?", id, types.DispatchStatusPending).
		Updates(map[string]any{
			"status":                 types.DispatchStatusCompleted,
			"processed_at":           now,
			"processing_duration_ms": durationMS,
		}).Error
}

func (r *dispatchLogRepo) MarkError(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string, durationMS int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.DispatchLog{}).
		Where("id = ? AND status = ?", id, types.DispatchStatusPending).
		Updates(map[string]any{
			"status":                 types.DispatchStatusError,
			"processed_at":           now,
			"error_message":          errMsg,
			"processing_duration_ms": durationMS,
		}).Error
}

func (r *dispatchLogRepo) ListPendingOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.DispatchLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DispatchLog
	q := transaction.WithContext(ctx).
		Where("status = ? AND triggered_at < ?", types.DispatchStatusPending, cutoff).
		Order("triggered_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dispatchLogRepo) ListPendingForRecord(ctx context.Context, tx *gorm.DB, webhookType string, recordID uuid.UUID) ([]*types.DispatchLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DispatchLog
	if err := transaction.WithContext(ctx).
		Where("webhook_type = ? AND record_id = ? AND status = ?", webhookType, recordID, types.DispatchStatusPending).
		Order("triggered_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dispatchLogRepo) StatsByWebhookType(ctx context.Context, tx *gorm.DB, since time.Time) ([]*WebhookStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	type row struct {
		WebhookType   string
		TotalTriggers int64
		AvgDuration   *float64
		Completed     int64
		Processed     int64
		LastTriggered *time.Time
	}
	var rows []row
	err := transaction.WithContext(ctx).
		Model(&types.DispatchLog{}).
		Select(`webhook_type,
			COUNT(*) AS total_triggers,
			AVG(processing_duration_ms) AS avg_duration,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status IN ('completed', 'error') THEN 1 ELSE 0 END) AS processed,
			MAX(triggered_at) AS last_triggered`).
		Where("triggered_at >= ?", since).
		Group("webhook_type").
		Order("webhook_type ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make([]*WebhookStats, 0, len(rows))
	for _, rw := range rows {
		s := &WebhookStats{
			WebhookType:   rw.WebhookType,
			TotalTriggers: rw.TotalTriggers,
			LastTriggered: rw.LastTriggered,
		}
		if rw.AvgDuration != nil {
			s.AvgProcessingTimeMS = *rw.AvgDuration
		}
		if rw.Processed > 0 {
			s.SuccessRate = float64(rw.Completed) / float64(rw.Processed)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (r *dispatchLogRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("triggered_at < ?", cutoff).
		Delete(&types.DispatchLog{})
	return res.RowsAffected, res.Error
}
