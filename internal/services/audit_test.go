package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

func seedDispatch(t *testing.T, gdb *gorm.DB, webhookType, status string, age time.Duration, durationMS int64) *types.DispatchLog {
	t.Helper()
	row := &types.DispatchLog{
		ID:          uuid.New(),
		WebhookType: webhookType,
		UserID:      uuid.New(),
		SourceTable: "task",
		RecordID:    uuid.New(),
		TriggeredAt: time.Now().UTC().Add(-age),
		Status:      status,
	}
	if status != types.DispatchStatusPending {
		processed := row.TriggeredAt.Add(time.Duration(durationMS) * time.Millisecond)
		row.ProcessedAt = &processed
		row.ProcessingDurationMS = &durationMS
	}
	if err := gdb.Create(row).Error; err != nil {
		t.Fatalf("seed dispatch: %v", err)
	}
	return row
}

func TestStatsByWebhookType(t *testing.T) {
	gdb := newTestDB(t)
	log := logger.NewNop()
	svc := NewAuditService(log, repos.NewDispatchLogRepo(gdb, log), repos.NewAIInteractionRepo(gdb, log), 0, 0)

	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, time.Hour, 100)
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, 2*time.Hour, 300)
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusError, 3*time.Hour, 50)
	seedDispatch(t, gdb, bus.ChannelEmbeddingQueue, types.DispatchStatusPending, time.Hour, 0)
	// Outside the 7-day window, must not count.
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, 10*24*time.Hour, 9999)

	stats, err := svc.Stats(context.Background(), 7)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	byType := map[string]*repos.WebhookStats{}
	for _, s := range stats {
		byType[s.WebhookType] = s
	}

	sentiment := byType[bus.ChannelSentiment]
	if sentiment == nil {
		t.Fatal("no sentiment stats returned")
	}
	if sentiment.TotalTriggers != 3 {
		t.Fatalf("sentiment triggers = %d, want 3 inside the window", sentiment.TotalTriggers)
	}
	wantRate := 2.0 / 3.0
	if sentiment.SuccessRate < wantRate-0.01 || sentiment.SuccessRate > wantRate+0.01 {
		t.Fatalf("success rate = %v, want ~%v", sentiment.SuccessRate, wantRate)
	}
	if sentiment.AvgProcessingTimeMS != 150 {
		t.Fatalf("avg processing ms = %v, want 150", sentiment.AvgProcessingTimeMS)
	}
	if sentiment.LastTriggered == nil {
		t.Fatal("last_triggered missing")
	}

	pendingOnly := byType[bus.ChannelEmbeddingQueue]
	if pendingOnly == nil || pendingOnly.TotalTriggers != 1 {
		t.Fatalf("embedding stats = %+v, want the pending row counted", pendingOnly)
	}
	if pendingOnly.SuccessRate != 0 {
		t.Fatalf("success rate with no processed rows = %v, want 0", pendingOnly.SuccessRate)
	}
}

func TestStalePendingLookup(t *testing.T) {
	gdb := newTestDB(t)
	log := logger.NewNop()
	svc := NewAuditService(log, repos.NewDispatchLogRepo(gdb, log), repos.NewAIInteractionRepo(gdb, log), 0, 0)

	old := seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusPending, 10*time.Minute, 0)
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusPending, time.Second, 0)
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, time.Hour, 5)

	stale, err := svc.StalePending(context.Background(), time.Minute, 0)
	if err != nil {
		t.Fatalf("StalePending: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale rows = %d, want exactly the old pending row", len(stale))
	}
}

func TestSweepEnforcesRetention(t *testing.T) {
	gdb := newTestDB(t)
	log := logger.NewNop()
	svc := NewAuditService(log, repos.NewDispatchLogRepo(gdb, log), repos.NewAIInteractionRepo(gdb, log), 30, 183)

	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, 40*24*time.Hour, 10)
	seedDispatch(t, gdb, bus.ChannelSentiment, types.DispatchStatusCompleted, time.Hour, 10)

	oldInteraction := &types.AIInteraction{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		FeatureType: string(types.FeatureSentimentAnalysis),
		Success:     true,
		CreatedAt:   time.Now().UTC().AddDate(0, -7, 0),
	}
	if err := gdb.Create(oldInteraction).Error; err != nil {
		t.Fatalf("seed interaction: %v", err)
	}

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.DispatchRowsDeleted != 1 {
		t.Fatalf("dispatch rows deleted = %d, want 1", result.DispatchRowsDeleted)
	}
	if result.InteractionRowsDeleted != 1 {
		t.Fatalf("interaction rows deleted = %d, want 1", result.InteractionRowsDeleted)
	}

	var remaining int64
	if err := gdb.Model(&types.DispatchLog{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("dispatch rows remaining = %d, want the recent row kept", remaining)
	}
}
