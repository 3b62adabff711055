package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

const (
	// DefaultMonthlyQuota is the monthly AI-enrichment limit per user.
	DefaultMonthlyQuota = 250

	quotaWarnPct80 = 0.80
	quotaWarnPct95 = 0.95
)

var (
	// ErrQuotaExceeded is an expected outcome, not a failure: the caller has
	// no quota left this window and nothing was recorded.
	ErrQuotaExceeded = errors.New("monthly AI quota exceeded")

	ErrUnknownFeatureType = errors.New("unknown feature type")
)

// QuotaUsage reports the current calendar-month window, derived on demand
// from AIInteraction rows.
type QuotaUsage struct {
	Total       int64                 `json:"total"`
	Successful  int64                 `json:"successful"`
	Breakdown   []*repos.FeatureCount `json:"breakdown_by_feature"`
	WindowStart time.Time             `json:"window_start"`
	WindowEnd   time.Time             `json:"window_end"`
}

type QuotaCheck struct {
	HasQuota     bool  `json:"has_quota"`
	Remaining    int64 `json:"remaining"`
	Used         int64 `json:"used"`
	Limit        int   `json:"limit"`
	LimitReached bool  `json:"limit_reached"`
}

// RecordResult reports what a single interaction insert did to the window.
type RecordResult struct {
	Interaction *types.AIInteraction `json:"interaction"`
	Counted     bool                 `json:"counted"`
	NewCount    int64                `json:"new_count"`
}

type QuotaService interface {
	GetUsage(ctx context.Context, userID uuid.UUID) (*QuotaUsage, error)
	CheckQuota(ctx context.Context, userID uuid.UUID, limit int) (*QuotaCheck, error)
	// Record logs one attempted enrichment call. Successful interactions are
	// inserted through a per-user conditional increment; an attempt that
	// finds the window already full is logged as a non-counted failure.
	Record(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature types.FeatureType, success bool, tokensUsed int, processingTimeMS int64, errMsg string) (*RecordResult, error)
	MonthWindow(now time.Time) (time.Time, time.Time)
}

type quotaService struct {
	db           *gorm.DB
	log          *logger.Logger
	interactions repos.AIInteractionRepo
	dispatchRepo repos.DispatchLogRepo
	bus          bus.Bus
	limit        int
	now          func() time.Time
}

func NewQuotaService(db *gorm.DB, baseLog *logger.Logger, interactions repos.AIInteractionRepo, dispatchRepo repos.DispatchLogRepo, b bus.Bus, limit int) QuotaService {
	if limit <= 0 {
		limit = DefaultMonthlyQuota
	}
	return &quotaService{
		db:           db,
		log:          baseLog.With("service", "QuotaService"),
		interactions: interactions,
		dispatchRepo: dispatchRepo,
		bus:          b,
		limit:        limit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// MonthWindow returns the UTC calendar-month boundaries containing now.
func (s *quotaService) MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end
}

func (s *quotaService) GetUsage(ctx context.Context, userID uuid.UUID) (*QuotaUsage, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	start, end := s.MonthWindow(s.now())
	total, err := s.interactions.CountSince(ctx, nil, userID, start)
	if err != nil {
		return nil, err
	}
	successful, err := s.interactions.CountSuccessfulSince(ctx, nil, userID, start)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.interactions.BreakdownByFeatureSince(ctx, nil, userID, start)
	if err != nil {
		return nil, err
	}
	return &QuotaUsage{
		Total:       total,
		Successful:  successful,
		Breakdown:   breakdown,
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

func (s *quotaService) CheckQuota(ctx context.Context, userID uuid.UUID, limit int) (*QuotaCheck, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 {
		limit = s.limit
	}
	start, _ := s.MonthWindow(s.now())
	used, err := s.interactions.CountSuccessfulSince(ctx, nil, userID, start)
	if err != nil {
		return nil, err
	}
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaCheck{
		HasQuota:     used < int64(limit),
		Remaining:    remaining,
		Used:         used,
		Limit:        limit,
		LimitReached: used >= int64(limit),
	}, nil
}

func (s *quotaService) Record(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature types.FeatureType, success bool, tokensUsed int, processingTimeMS int64, errMsg string) (*RecordResult, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeatureType, feature)
	}
	start, _ := s.MonthWindow(s.now())
	interaction := &types.AIInteraction{
		UserID:           userID,
		FeatureType:      string(feature),
		TokensUsed:       tokensUsed,
		Success:          success,
		ErrorMessage:     errMsg,
		ProcessingTimeMS: processingTimeMS,
	}
	counted, newCount, err := s.interactions.CreateCounted(ctx, tx, interaction, start, s.limit)
	if err != nil {
		return nil, err
	}
	if counted {
		s.fireThresholdEvents(ctx, userID, interaction.ID, newCount)
	}
	return &RecordResult{Interaction: interaction, Counted: counted, NewCount: newCount}, nil
}

// fireThresholdEvents emits the one-shot 80%/95%/100% notifications.
// Crossing is detected by exact equality on the running successful count, so
// each threshold fires at most once per window. A caller that records more
// than one interaction per logical action can skip a threshold; that is a
// documented limitation of equality-based detection.
func (s *quotaService) fireThresholdEvents(ctx context.Context, userID uuid.UUID, interactionID uuid.UUID, count int64) {
	warn80 := int64(float64(s.limit) * quotaWarnPct80)
	warn95 := int64(float64(s.limit) * quotaWarnPct95)
	full := int64(s.limit)

	var channel string
	var pct int
	switch count {
	case warn80:
		channel, pct = bus.ChannelQuotaWarning, 80
	case warn95:
		channel, pct = bus.ChannelQuotaWarning, 95
	case full:
		channel, pct = bus.ChannelQuotaLimit, 100
	default:
		return
	}

	entries := []*types.DispatchLog{{
		WebhookType: channel,
		UserID:      userID,
		SourceTable: types.AIInteraction{}.TableName(),
		RecordID:    interactionID,
		TriggeredAt: time.Now().UTC(),
		Status:      types.DispatchStatusPending,
	}}
	entries, err := s.dispatchRepo.Create(ctx, nil, entries)
	if err != nil {
		s.log.Error("quota threshold audit insert failed", "user_id", userID, "pct", pct, "error", err)
		return
	}

	msg := bus.DispatchMessage{
		Table:  types.AIInteraction{}.TableName(),
		Action: bus.ActionInsert,
		Record: bus.DispatchRecord{
			UserID: userID,
			ID:     interactionID,
			Context: map[string]any{
				"dispatch_log_id":   entries[0].ID.String(),
				"threshold_percent": pct,
				"used":              count,
				"limit":             s.limit,
			},
		},
	}
	if err := s.bus.Publish(ctx, channel, msg); err != nil {
		s.log.Warn("quota threshold publish failed", "channel", channel, "user_id", userID, "error", err)
	}
	s.log.Info("quota threshold crossed", "user_id", userID, "pct", pct, "used", count, "limit", s.limit)
}
