package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/capture"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

func newEventStoreFixture(t *testing.T) (EventStoreService, *gorm.DB, bus.Bus) {
	t.Helper()
	gdb := newTestDB(t)
	log := logger.NewNop()
	memBus := bus.NewMemoryBus()
	hooks := capture.NewHooks(log, memBus, repos.NewDispatchLogRepo(gdb, log))
	svc := NewEventStoreService(gdb, log, hooks,
		repos.NewTaskRepo(gdb, log),
		repos.NewJournalEntryRepo(gdb, log),
		repos.NewBehavioralEventRepo(gdb, log),
		repos.NewHRMPreferenceRepo(gdb, log))
	return svc, gdb, memBus
}

func dispatchChannels(t *testing.T, gdb *gorm.DB, recordID uuid.UUID) map[string]int64 {
	t.Helper()
	var rows []types.DispatchLog
	if err := gdb.Where("record_id = ?", recordID).Find(&rows).Error; err != nil {
		t.Fatalf("load dispatch rows: %v", err)
	}
	counts := map[string]int64{}
	for _, row := range rows {
		counts[row.WebhookType]++
	}
	return counts
}

func TestTaskCreateDispatchesOncePerChannel(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	task, err := svc.CreateTask(context.Background(), &types.Task{
		UserID:      uuid.New(),
		Name:        "write spec",
		Description: "capture the requirements",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	counts := dispatchChannels(t, gdb, task.ID)
	for _, channel := range []string{
		bus.ChannelAlignmentRecalc,
		bus.ChannelAnalyticsAggregate,
		bus.ChannelCacheInvalidate,
		bus.ChannelEmbeddingQueue,
	} {
		if counts[channel] != 1 {
			t.Fatalf("channel %s dispatched %d times, want exactly 1", channel, counts[channel])
		}
	}
}

func TestEmptyDescriptionSkipsEmbeddingQueue(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	task, err := svc.CreateTask(context.Background(), &types.Task{
		UserID: uuid.New(),
		Name:   "quick errand",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	counts := dispatchChannels(t, gdb, task.ID)
	if counts[bus.ChannelEmbeddingQueue] != 0 {
		t.Fatal("empty description still enqueued embedding work")
	}
	if counts[bus.ChannelAlignmentRecalc] != 1 {
		t.Fatal("alignment recalc dispatch missing")
	}
}

func TestJournalCreateDispatchesSentimentAndEmbedding(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	entry, err := svc.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID:  uuid.New(),
		Title:   "today",
		Content: "felt focused all morning",
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	counts := dispatchChannels(t, gdb, entry.ID)
	for _, channel := range []string{
		bus.ChannelSentiment,
		bus.ChannelEmbeddingQueue,
		bus.ChannelAnalyticsAggregate,
		bus.ChannelCacheInvalidate,
	} {
		if counts[channel] != 1 {
			t.Fatalf("channel %s dispatched %d times, want exactly 1", channel, counts[channel])
		}
	}
}

func TestEmptyJournalContentSkipsSentiment(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	entry, err := svc.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID: uuid.New(),
		Title:  "placeholder",
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	counts := dispatchChannels(t, gdb, entry.ID)
	if counts[bus.ChannelSentiment] != 0 || counts[bus.ChannelEmbeddingQueue] != 0 {
		t.Fatal("empty journal content still dispatched content enrichment")
	}
}

func TestSignificantBehavioralEventTriggersInsight(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	userID := uuid.New()

	plain, err := svc.TrackBehavioralEvent(context.Background(), &types.BehavioralEvent{
		UserID:    userID,
		EventType: "page_view",
	})
	if err != nil {
		t.Fatalf("TrackBehavioralEvent: %v", err)
	}
	if counts := dispatchChannels(t, gdb, plain.ID); counts[bus.ChannelInsightTrigger] != 0 {
		t.Fatal("ordinary event triggered insight generation")
	}

	milestone, err := svc.TrackBehavioralEvent(context.Background(), &types.BehavioralEvent{
		UserID:    userID,
		EventType: "goal_achieved",
	})
	if err != nil {
		t.Fatalf("TrackBehavioralEvent: %v", err)
	}
	counts := dispatchChannels(t, gdb, milestone.ID)
	if counts[bus.ChannelInsightTrigger] != 1 || counts[bus.ChannelAnalyticsAggregate] != 1 {
		t.Fatalf("milestone dispatches = %v, want insight-trigger and analytics-aggregate once each", counts)
	}
}

func TestBehavioralTrackingConsent(t *testing.T) {
	gdb := newTestDB(t)
	log := logger.NewNop()
	prefRepo := repos.NewHRMPreferenceRepo(gdb, log)
	hooks := capture.NewHooks(log, bus.NewMemoryBus(), repos.NewDispatchLogRepo(gdb, log))
	svc := NewEventStoreService(gdb, log, hooks,
		repos.NewTaskRepo(gdb, log),
		repos.NewJournalEntryRepo(gdb, log),
		repos.NewBehavioralEventRepo(gdb, log),
		prefRepo)

	userID := uuid.New()
	if _, err := prefRepo.Upsert(context.Background(), nil, &types.HRMUserPreference{
		UserID:                userID,
		EmbedJournalContent:   true,
		EmbedTaskContent:      true,
		TrackBehavioralEvents: false,
		EnableAILearning:      true,
	}); err != nil {
		t.Fatalf("Upsert pref: %v", err)
	}

	if _, err := svc.TrackBehavioralEvent(context.Background(), &types.BehavioralEvent{
		UserID:    userID,
		EventType: "page_view",
	}); err == nil {
		t.Fatal("tracking accepted for a user who opted out")
	}

	var count int64
	if err := gdb.Model(&types.BehavioralEvent{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("stored events = %d, want 0 after consent refusal", count)
	}
}

func TestTaskDeleteStillAudited(t *testing.T) {
	svc, gdb, _ := newEventStoreFixture(t)
	userID := uuid.New()
	task, err := svc.CreateTask(context.Background(), &types.Task{
		UserID: userID,
		Name:   "temporary",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := svc.DeleteTask(context.Background(), userID, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	var rows []types.DispatchLog
	if err := gdb.Where("record_id = ? AND webhook_type = ?", task.ID, bus.ChannelCacheInvalidate).
		Find(&rows).Error; err != nil {
		t.Fatalf("load dispatch rows: %v", err)
	}
	// One for create, one for delete.
	if len(rows) != 2 {
		t.Fatalf("cache-invalidate dispatches = %d, want 2 (insert and delete)", len(rows))
	}
}

func TestUpdateForeignTaskRejected(t *testing.T) {
	svc, _, _ := newEventStoreFixture(t)
	owner := uuid.New()
	task, err := svc.CreateTask(context.Background(), &types.Task{
		UserID: owner,
		Name:   "mine",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	task.UserID = uuid.New()
	task.Name = "stolen"
	if _, err := svc.UpdateTask(context.Background(), task); err == nil {
		t.Fatal("update accepted for a foreign user")
	}
}
