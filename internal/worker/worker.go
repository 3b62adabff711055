package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/cache"
	"github.com/aurumlife/enrichment-backend/internal/capture"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/services"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// DefaultStaleAfter is how long a dispatch may sit pending before the
// startup reconciliation pass picks it up. Messages published while no
// worker was connected are recovered this way; the bus itself never replays.
const DefaultStaleAfter = 30 * time.Second

// Worker consumes the dispatch channels, runs the quota-gated enrichment
// steps and writes results back to the event store and the insight store.
// Safe to run concurrently across users and feature types; the quota
// governor serializes its own check-and-increment.
type Worker struct {
	log        *logger.Logger
	bus        bus.Bus
	enricher   Enricher
	cache      cache.Cache
	quota      services.QuotaService
	insights   services.InsightService
	retrieval  services.RetrievalService
	engine     *services.RuleEngine
	rules      repos.HRMRuleRepo
	prefs      repos.HRMPreferenceRepo
	tasks      repos.TaskRepo
	journal    repos.JournalEntryRepo
	dispatches repos.DispatchLogRepo
	now        func() time.Time
}

type Deps struct {
	Log        *logger.Logger
	Bus        bus.Bus
	Enricher   Enricher
	Cache      cache.Cache
	Quota      services.QuotaService
	Insights   services.InsightService
	Retrieval  services.RetrievalService
	Engine     *services.RuleEngine
	Rules      repos.HRMRuleRepo
	Prefs      repos.HRMPreferenceRepo
	Tasks      repos.TaskRepo
	Journal    repos.JournalEntryRepo
	Dispatches repos.DispatchLogRepo
}

func New(d Deps) *Worker {
	return &Worker{
		log:        d.Log.With("service", "EnrichmentWorker"),
		bus:        d.Bus,
		enricher:   d.Enricher,
		cache:      d.Cache,
		quota:      d.Quota,
		insights:   d.Insights,
		retrieval:  d.Retrieval,
		engine:     d.Engine,
		rules:      d.Rules,
		prefs:      d.Prefs,
		tasks:      d.Tasks,
		journal:    d.Journal,
		dispatches: d.Dispatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// enrichmentChannels are the topics this worker consumes. quota-warning and
// quota-limit are notification channels for a different collaborator (the
// notification sender) and are not consumed here.
var enrichmentChannels = []string{
	bus.ChannelSentiment,
	bus.ChannelAlignmentRecalc,
	bus.ChannelInsightTrigger,
	bus.ChannelAnalyticsAggregate,
	bus.ChannelCacheInvalidate,
	bus.ChannelEmbeddingQueue,
}

// Start subscribes every enrichment channel, then reconciles audit rows that
// went stale while no worker was listening.
func (w *Worker) Start(ctx context.Context) error {
	for _, channel := range enrichmentChannels {
		ch := channel
		err := w.bus.Subscribe(ctx, ch, func(m bus.DispatchMessage) {
			w.Handle(ctx, ch, m)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	return w.Reconcile(ctx, DefaultStaleAfter)
}

// Reconcile re-processes dispatches that sat pending longer than staleAfter.
// The audit log, not bus delivery, is the source of truth for what still
// needs processing.
func (w *Worker) Reconcile(ctx context.Context, staleAfter time.Duration) error {
	stale, err := w.dispatches.ListPendingOlderThan(ctx, nil, w.now().Add(-staleAfter), 0)
	if err != nil {
		return fmt.Errorf("list stale pending: %w", err)
	}
	for _, entry := range stale {
		if !isEnrichmentChannel(entry.WebhookType) {
			continue
		}
		w.log.Info("reconciling stale dispatch",
			"channel", entry.WebhookType, "dispatch_log_id", entry.ID, "triggered_at", entry.TriggeredAt)
		w.Handle(ctx, entry.WebhookType, bus.DispatchMessage{
			Table:  entry.SourceTable,
			Action: bus.ActionUpdate,
			Record: bus.DispatchRecord{
				UserID:  entry.UserID,
				ID:      entry.RecordID,
				Context: map[string]any{"dispatch_log_id": entry.ID.String()},
			},
		})
	}
	return nil
}

// Handle processes one dispatch message and settles its audit row. Errors
// never propagate to the bus; they land in the audit row's error status.
func (w *Worker) Handle(ctx context.Context, channel string, msg bus.DispatchMessage) {
	started := w.now()
	logID, ok := dispatchLogID(msg)
	if !ok {
		w.log.Warn("dispatch message without audit reference dropped", "channel", channel)
		return
	}

	var err error
	switch channel {
	case bus.ChannelSentiment:
		err = w.handleSentiment(ctx, msg)
	case bus.ChannelAlignmentRecalc:
		err = w.handleAlignmentRecalc(ctx, msg)
	case bus.ChannelInsightTrigger:
		err = w.handleInsightTrigger(ctx, msg)
	case bus.ChannelEmbeddingQueue:
		err = w.handleEmbedding(ctx, msg)
	case bus.ChannelCacheInvalidate:
		err = w.cache.InvalidateUser(ctx, msg.Record.UserID.String())
	case bus.ChannelAnalyticsAggregate:
		// Rollups are recomputed by the scheduled refresher from raw events;
		// the dispatch only needs acknowledging so the audit row settles.
		err = nil
	default:
		err = fmt.Errorf("no handler for channel %q", channel)
	}

	durationMS := w.now().Sub(started).Milliseconds()
	if err != nil {
		if markErr := w.dispatches.MarkError(ctx, nil, logID, err.Error(), durationMS); markErr != nil {
			w.log.Error("failed to mark dispatch error", "dispatch_log_id", logID, "error", markErr)
		}
		if errors.Is(err, services.ErrQuotaExceeded) || errors.Is(err, services.ErrConsentDenied) {
			w.log.Info("dispatch skipped", "channel", channel, "dispatch_log_id", logID, "reason", err)
		} else {
			w.log.Error("dispatch processing failed", "channel", channel, "dispatch_log_id", logID, "error", err)
		}
		return
	}
	if err := w.dispatches.MarkCompleted(ctx, nil, logID, durationMS); err != nil {
		w.log.Error("failed to mark dispatch completed", "dispatch_log_id", logID, "error", err)
	}
}

func (w *Worker) handleSentiment(ctx context.Context, msg bus.DispatchMessage) error {
	entry, err := w.journal.GetByID(ctx, nil, msg.Record.ID)
	if err != nil {
		return fmt.Errorf("load journal entry: %w", err)
	}
	if entry.Content == "" {
		return nil
	}
	if err := w.ensureQuota(ctx, entry.UserID); err != nil {
		return err
	}

	started := w.now()
	score, tokens, err := w.enricher.ScoreSentiment(ctx, entry.Content)
	elapsed := w.now().Sub(started).Milliseconds()
	if _, recordErr := w.quota.Record(ctx, nil, entry.UserID, types.FeatureSentimentAnalysis, err == nil, tokens, elapsed, errText(err)); recordErr != nil {
		return fmt.Errorf("record interaction: %w", recordErr)
	}
	if err != nil {
		return fmt.Errorf("sentiment enrichment: %w", err)
	}
	return w.journal.SetSentimentScore(ctx, nil, entry.ID, score)
}

// handleAlignmentRecalc rescores a task against the rule set. Pure rule
// evaluation, no LLM call, so no quota is consumed.
func (w *Worker) handleAlignmentRecalc(ctx context.Context, msg bus.DispatchMessage) error {
	task, err := w.tasks.GetByID(ctx, nil, msg.Record.ID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	result, err := w.scoreTask(ctx, task)
	if err != nil {
		return err
	}
	if result.Filtered {
		return w.tasks.SetPriorityScore(ctx, nil, task.ID, 0)
	}
	return w.tasks.SetPriorityScore(ctx, nil, task.ID, result.Normalized)
}

func (w *Worker) handleInsightTrigger(ctx context.Context, msg bus.DispatchMessage) error {
	userID := msg.Record.UserID
	if err := w.ensureQuota(ctx, userID); err != nil {
		return err
	}

	subject := fmt.Sprintf("%s activity", msg.Table)
	score := 0.5
	var reasoningPath []services.RuleFiring
	if msg.Table == capture.TableTask {
		task, err := w.tasks.GetByID(ctx, nil, msg.Record.ID)
		if err == nil {
			if result, scoreErr := w.scoreTask(ctx, task); scoreErr == nil {
				score = result.Normalized
				reasoningPath = result.Path
				subject = task.Name
			}
		}
	}

	started := w.now()
	title, summary, tokens, err := w.enricher.Narrate(ctx, subject, score)
	elapsed := w.now().Sub(started).Milliseconds()
	if _, recordErr := w.quota.Record(ctx, nil, userID, types.FeatureHRMAnalysis, err == nil, tokens, elapsed, errText(err)); recordErr != nil {
		return fmt.Errorf("record interaction: %w", recordErr)
	}
	if err != nil {
		return fmt.Errorf("insight narration: %w", err)
	}

	pathJSON, err := json.Marshal(reasoningPath)
	if err != nil {
		return err
	}
	recordID := msg.Record.ID
	_, err = w.insights.Record(ctx, &types.Insight{
		UserID:          userID,
		EntityType:      msg.Table,
		EntityID:        &recordID,
		InsightType:     "behavioral_pattern",
		Title:           title,
		Summary:         summary,
		ConfidenceScore: score,
		ImpactScore:     score,
		ReasoningPath:   pathJSON,
	})
	return err
}

func (w *Worker) handleEmbedding(ctx context.Context, msg bus.DispatchMessage) error {
	var req services.IndexRequest
	switch msg.Table {
	case capture.TableJournalEntry:
		entry, err := w.journal.GetByID(ctx, nil, msg.Record.ID)
		if err != nil {
			return fmt.Errorf("load journal entry: %w", err)
		}
		req = services.IndexRequest{
			UserID:     entry.UserID,
			EntityType: types.EmbeddingEntityJournalEntry,
			EntityID:   entry.ID,
			Title:      entry.Title,
			Content:    entry.Content,
		}
	case capture.TableTask:
		task, err := w.tasks.GetByID(ctx, nil, msg.Record.ID)
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		req = services.IndexRequest{
			UserID:     task.UserID,
			EntityType: types.EmbeddingEntityTask,
			EntityID:   task.ID,
			Title:      task.Name,
			Content:    task.Description,
		}
	default:
		return fmt.Errorf("embedding not supported for table %q", msg.Table)
	}
	if req.Content == "" {
		return nil
	}

	// Consent is checked before spending any embedding tokens.
	allowed, err := w.retrieval.Allowed(ctx, req.UserID, req.EntityType)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", services.ErrConsentDenied, req.EntityType)
	}

	vec, _, err := w.enricher.Embed(ctx, req.Title+"\n"+req.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	req.Vector = vec
	_, err = w.retrieval.Index(ctx, req)
	return err
}

// ensureQuota is the enforcement point: it runs before the enrichment call,
// and a failed check records nothing.
func (w *Worker) ensureQuota(ctx context.Context, userID uuid.UUID) error {
	check, err := w.quota.CheckQuota(ctx, userID, 0)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	if !check.HasQuota {
		return fmt.Errorf("%w: %d/%d used", services.ErrQuotaExceeded, check.Used, check.Limit)
	}
	return nil
}

func (w *Worker) scoreTask(ctx context.Context, task *types.Task) (*services.ScoreResult, error) {
	rules, err := w.rules.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}
	pref, err := w.prefs.GetByUserID(ctx, nil, task.UserID)
	if err != nil {
		return nil, err
	}
	entity := services.EntityContext{
		EntityType: capture.TableTask,
		EntityID:   task.ID,
		Status:     task.Status,
		DueDate:    task.DueDate,
		Factors:    taskFactors(task, pref),
		Now:        w.now(),
	}
	return w.engine.Score(entity, rules, pref)
}

// taskFactors derives the named scoring inputs in [0,1] that scoring rules
// blend.
func taskFactors(task *types.Task, pref *types.HRMUserPreference) map[string]float64 {
	factors := map[string]float64{}
	if task.Description != "" {
		factors["has_context"] = 1
	} else {
		factors["has_context"] = 0
	}
	if task.ProjectID != nil {
		factors["in_project"] = 1
	} else {
		factors["in_project"] = 0
	}
	switch task.EnergyLevel {
	case "high":
		factors["energy_demand"] = 1
	case "medium":
		factors["energy_demand"] = 0.5
	case "low":
		factors["energy_demand"] = 0.2
	}
	if pref != nil && pref.EnergyPattern != "" && task.EnergyLevel != "" {
		if pref.EnergyPattern == task.EnergyLevel {
			factors["energy_match"] = 1
		} else {
			factors["energy_match"] = 0.3
		}
	}
	return factors
}

func dispatchLogID(msg bus.DispatchMessage) (uuid.UUID, bool) {
	raw, _ := msg.Record.Context["dispatch_log_id"].(string)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func isEnrichmentChannel(channel string) bool {
	for _, ch := range enrichmentChannels {
		if ch == channel {
			return true
		}
	}
	return false
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
