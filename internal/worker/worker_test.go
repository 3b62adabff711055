package worker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/cache"
	"github.com/aurumlife/enrichment-backend/internal/capture"
	"github.com/aurumlife/enrichment-backend/internal/db"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/services"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type pipelineFixture struct {
	gdb    *gorm.DB
	bus    bus.Bus
	cache  cache.Cache
	store  services.EventStoreService
	worker *Worker
}

// newPipelineFixture wires the full pipeline in one process: event store with
// capture hooks publishing to a memory bus, and a worker subscribed to it
// with the deterministic stub enricher.
func newPipelineFixture(t *testing.T, quotaLimit int) *pipelineFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	svc, err := db.NewSQLiteService("file:"+path+"?_busy_timeout=5000&_txlock=immediate", logger.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gdb := svc.DB()
	log := logger.NewNop()
	memBus := bus.NewMemoryBus()
	memCache := cache.NewMemoryCache()

	dispatches := repos.NewDispatchLogRepo(gdb, log)
	tasks := repos.NewTaskRepo(gdb, log)
	journal := repos.NewJournalEntryRepo(gdb, log)
	events := repos.NewBehavioralEventRepo(gdb, log)
	prefs := repos.NewHRMPreferenceRepo(gdb, log)
	rules := repos.NewHRMRuleRepo(gdb, log)
	interactions := repos.NewAIInteractionRepo(gdb, log)
	embeddings := repos.NewEmbeddingRepo(gdb, log)
	insights := repos.NewInsightRepo(gdb, log)
	feedback := repos.NewHRMFeedbackRepo(gdb, log)

	if err := db.SeedHRMRules(context.Background(), rules); err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	hooks := capture.NewHooks(log, memBus, dispatches)
	store := services.NewEventStoreService(gdb, log, hooks, tasks, journal, events, prefs)

	w := New(Deps{
		Log:        log,
		Bus:        memBus,
		Enricher:   NewStubEnricher(),
		Cache:      memCache,
		Quota:      services.NewQuotaService(gdb, log, interactions, dispatches, memBus, quotaLimit),
		Insights:   services.NewInsightService(gdb, log, insights, feedback),
		Retrieval:  services.NewRetrievalService(log, embeddings, prefs),
		Engine:     services.NewRuleEngine(log),
		Rules:      rules,
		Prefs:      prefs,
		Tasks:      tasks,
		Journal:    journal,
		Dispatches: dispatches,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("worker start: %v", err)
	}
	return &pipelineFixture{gdb: gdb, bus: memBus, cache: memCache, store: store, worker: w}
}

func (f *pipelineFixture) dispatchRows(t *testing.T, recordID uuid.UUID) []types.DispatchLog {
	t.Helper()
	var rows []types.DispatchLog
	if err := f.gdb.Where("record_id = ?", recordID).Find(&rows).Error; err != nil {
		t.Fatalf("load dispatch rows: %v", err)
	}
	return rows
}

func (f *pipelineFixture) interactionCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := f.gdb.Model(&types.AIInteraction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count interactions: %v", err)
	}
	return count
}

func TestJournalEntryEnrichedEndToEnd(t *testing.T) {
	f := newPipelineFixture(t, 100)
	userID := uuid.New()

	entry, err := f.store.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID:  userID,
		Title:   "morning",
		Content: "deep focus on the hard problem and it finally cracked",
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	var reloaded types.JournalEntry
	if err := f.gdb.Where("id = ?", entry.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if reloaded.SentimentScore == nil {
		t.Fatal("sentiment score not written back")
	}
	if *reloaded.SentimentScore < -1 || *reloaded.SentimentScore > 1 {
		t.Fatalf("sentiment score = %v, want within [-1, 1]", *reloaded.SentimentScore)
	}

	var emb types.Embedding
	if err := f.gdb.Where("entity_id = ?", entry.ID).First(&emb).Error; err != nil {
		t.Fatalf("embedding not indexed: %v", err)
	}
	if emb.EntityType != types.EmbeddingEntityJournalEntry {
		t.Fatalf("embedding entity type = %s, want journal entry", emb.EntityType)
	}

	for _, row := range f.dispatchRows(t, entry.ID) {
		if row.Status != types.DispatchStatusCompleted {
			t.Fatalf("dispatch %s status = %s, want completed", row.WebhookType, row.Status)
		}
		if row.ProcessedAt == nil || row.ProcessingDurationMS == nil {
			t.Fatalf("dispatch %s settled without timing fields", row.WebhookType)
		}
	}

	// Sentiment is the only quota-consuming step for a journal entry.
	if got := f.interactionCount(t, userID); got != 1 {
		t.Fatalf("interactions = %d, want 1", got)
	}
	if got := cache.Invalidations(f.cache, userID.String()); got != 1 {
		t.Fatalf("cache invalidations = %d, want 1", got)
	}
}

func TestTaskAlignmentRecalcWritesPriorityScore(t *testing.T) {
	f := newPipelineFixture(t, 100)
	userID := uuid.New()
	due := time.Now().UTC().Add(20 * time.Hour)

	task, err := f.store.CreateTask(context.Background(), &types.Task{
		UserID:      userID,
		Name:        "finish proposal",
		Description: "final review and send",
		Status:      "todo",
		DueDate:     &due,
		EnergyLevel: "high",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var reloaded types.Task
	if err := f.gdb.Where("id = ?", task.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if reloaded.PriorityScore <= 0 {
		t.Fatalf("priority score = %v, want positive for an urgent actionable task", reloaded.PriorityScore)
	}

	// Rule evaluation consumes no quota.
	if got := f.interactionCount(t, userID); got != 0 {
		t.Fatalf("interactions = %d, want 0 for rule-only enrichment", got)
	}
}

func TestSignificantEventProducesVersionedInsight(t *testing.T) {
	f := newPipelineFixture(t, 100)
	userID := uuid.New()

	ev, err := f.store.TrackBehavioralEvent(context.Background(), &types.BehavioralEvent{
		UserID:    userID,
		EventType: "goal_achieved",
	})
	if err != nil {
		t.Fatalf("TrackBehavioralEvent: %v", err)
	}

	var insights []types.Insight
	if err := f.gdb.Where("user_id = ?", userID).Find(&insights).Error; err != nil {
		t.Fatalf("load insights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(insights))
	}
	if insights[0].Version != 1 || !insights[0].IsActive {
		t.Fatalf("insight = v%d active=%v, want v1 active", insights[0].Version, insights[0].IsActive)
	}
	if insights[0].EntityID == nil || *insights[0].EntityID != ev.ID {
		t.Fatal("insight not linked to the triggering event")
	}
	if got := f.interactionCount(t, userID); got != 1 {
		t.Fatalf("interactions = %d, want 1 for the narration call", got)
	}
}

func TestQuotaExhaustionSkipsEnrichmentButSettlesAudit(t *testing.T) {
	f := newPipelineFixture(t, 1)
	userID := uuid.New()

	// First entry consumes the whole window.
	if _, err := f.store.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID:  userID,
		Content: "first entry uses the quota",
	}); err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}
	if got := f.interactionCount(t, userID); got != 1 {
		t.Fatalf("interactions after first entry = %d, want 1", got)
	}

	second, err := f.store.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID:  userID,
		Content: "second entry finds the window full",
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	var reloaded types.JournalEntry
	if err := f.gdb.Where("id = ?", second.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if reloaded.SentimentScore != nil {
		t.Fatal("sentiment written despite an exhausted quota")
	}
	// The failed pre-check records nothing against the window.
	if got := f.interactionCount(t, userID); got != 1 {
		t.Fatalf("interactions = %d, want still 1 after the refused attempt", got)
	}

	var found bool
	for _, row := range f.dispatchRows(t, second.ID) {
		if row.WebhookType != bus.ChannelSentiment {
			continue
		}
		found = true
		if row.Status != types.DispatchStatusError {
			t.Fatalf("sentiment dispatch status = %s, want error", row.Status)
		}
		if !strings.Contains(row.ErrorMessage, "quota") {
			t.Fatalf("error message = %q, want the quota refusal recorded", row.ErrorMessage)
		}
	}
	if !found {
		t.Fatal("no sentiment dispatch row for the second entry")
	}
}

func TestEmbeddingConsentRefusalRecordedAsError(t *testing.T) {
	f := newPipelineFixture(t, 100)
	userID := uuid.New()

	prefs := repos.NewHRMPreferenceRepo(f.gdb, logger.NewNop())
	if _, err := prefs.Upsert(context.Background(), nil, &types.HRMUserPreference{
		UserID:                userID,
		EmbedJournalContent:   false,
		EmbedTaskContent:      true,
		TrackBehavioralEvents: true,
		EnableAILearning:      true,
	}); err != nil {
		t.Fatalf("Upsert pref: %v", err)
	}

	entry, err := f.store.CreateJournalEntry(context.Background(), &types.JournalEntry{
		UserID:  userID,
		Content: "private content that must not be embedded",
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	var count int64
	if err := f.gdb.Model(&types.Embedding{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count embeddings: %v", err)
	}
	if count != 0 {
		t.Fatal("embedding stored despite withdrawn consent")
	}
	for _, row := range f.dispatchRows(t, entry.ID) {
		if row.WebhookType == bus.ChannelEmbeddingQueue && row.Status != types.DispatchStatusError {
			t.Fatalf("embedding dispatch status = %s, want error for the consent refusal", row.Status)
		}
	}
}

func TestReconcileRecoversStalePendingDispatch(t *testing.T) {
	f := newPipelineFixture(t, 100)
	userID := uuid.New()

	journal := repos.NewJournalEntryRepo(f.gdb, logger.NewNop())
	entry, err := journal.Create(context.Background(), nil, &types.JournalEntry{
		UserID:  userID,
		Content: "written while no worker was listening",
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	stale := &types.DispatchLog{
		ID:          uuid.New(),
		WebhookType: bus.ChannelSentiment,
		UserID:      userID,
		SourceTable: capture.TableJournalEntry,
		RecordID:    entry.ID,
		TriggeredAt: time.Now().UTC().Add(-time.Hour),
		Status:      types.DispatchStatusPending,
	}
	if err := f.gdb.Create(stale).Error; err != nil {
		t.Fatalf("seed stale dispatch: %v", err)
	}

	if err := f.worker.Reconcile(context.Background(), DefaultStaleAfter); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	var row types.DispatchLog
	if err := f.gdb.Where("id = ?", stale.ID).First(&row).Error; err != nil {
		t.Fatalf("reload dispatch: %v", err)
	}
	if row.Status != types.DispatchStatusCompleted {
		t.Fatalf("reconciled dispatch status = %s, want completed", row.Status)
	}
	var reloaded types.JournalEntry
	if err := f.gdb.Where("id = ?", entry.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if reloaded.SentimentScore == nil {
		t.Fatal("reconciliation did not run the sentiment enrichment")
	}
}

func TestStubEnricherIsDeterministic(t *testing.T) {
	e := NewStubEnricher()
	ctx := context.Background()

	s1, _, err := e.ScoreSentiment(ctx, "same input")
	if err != nil {
		t.Fatalf("ScoreSentiment: %v", err)
	}
	s2, _, _ := e.ScoreSentiment(ctx, "same input")
	if s1 != s2 {
		t.Fatalf("sentiment not deterministic: %v then %v", s1, s2)
	}
	if s1 < -1 || s1 > 1 {
		t.Fatalf("sentiment = %v, want within [-1, 1]", s1)
	}

	v1, _, err := e.Embed(ctx, "same input")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, _, _ := e.Embed(ctx, "same input")
	if len(v1) != 8 || len(v2) != 8 {
		t.Fatalf("vector dims = %d/%d, want 8", len(v1), len(v2))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("vector not deterministic at dim %d", i)
		}
	}
}
