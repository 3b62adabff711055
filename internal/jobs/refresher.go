package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

const (
	// DefaultLookbackDays bounds how much raw history each refresh reads.
	DefaultLookbackDays = 90

	defaultUserConcurrency = 4
)

// RollupFunc recomputes one named rollup for one user strictly from the raw
// event store. It returns the full set of rows for the new snapshot; the
// refresher swaps them in atomically.
type RollupFunc func(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.AggregateMetric, error)

// RollupStatus reports one rollup's outcome within a refresh cycle.
type RollupStatus struct {
	Rollup string `json:"rollup"`
	UserID string `json:"user_id"`
	Rows   int    `json:"rows"`
	Err    error  `json:"-"`
}

// Refresher recomputes the materialized rollups on a schedule. Each rollup
// is recomputed from raw behavioral events and tasks, never from a previous
// rollup, so a refresh is idempotent and self-correcting. One rollup's
// failure is logged and does not stop the others.
type Refresher struct {
	log          *logger.Logger
	events       repos.BehavioralEventRepo
	tasks        repos.TaskRepo
	metrics      repos.AggregateMetricRepo
	cron         *cron.Cron
	lookbackDays int
	concurrency  int
	now          func() time.Time
	rollups      map[string]RollupFunc
}

func NewRefresher(baseLog *logger.Logger, events repos.BehavioralEventRepo, tasks repos.TaskRepo, metrics repos.AggregateMetricRepo, lookbackDays int) *Refresher {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	r := &Refresher{
		log:          baseLog.With("job", "AggregationRefresher"),
		events:       events,
		tasks:        tasks,
		metrics:      metrics,
		cron:         cron.New(),
		lookbackDays: lookbackDays,
		concurrency:  defaultUserConcurrency,
		now:          func() time.Time { return time.Now().UTC() },
	}
	r.rollups = map[string]RollupFunc{
		types.RollupPillarAlignmentWeekly: r.pillarAlignmentWeekly,
		types.RollupAreaHabitStrength:     r.areaHabitStrength,
		types.RollupDailyFlow:             r.dailyFlow,
		types.RollupCompletionByLoad:      r.completionByCognitiveLoad,
	}
	return r
}

// Register adds or replaces a named rollup. Call before Start.
func (r *Refresher) Register(name string, fn RollupFunc) {
	r.rollups[name] = fn
}

// Start schedules RunAll on the given cron spec and begins the timer.
func (r *Refresher) Start(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		if _, err := r.RunAll(ctx); err != nil {
			r.log.Error("scheduled refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bad refresh schedule %q: %w", spec, err)
	}
	r.cron.Start()
	return nil
}

func (r *Refresher) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
}

// RunAll refreshes every rollup for every user with recent events. The
// returned statuses include per-rollup failures; the error is reserved for
// not being able to enumerate users at all.
func (r *Refresher) RunAll(ctx context.Context) ([]*RollupStatus, error) {
	since := r.now().AddDate(0, 0, -r.lookbackDays)
	userIDs, err := r.events.ListUserIDsWithEventsSince(ctx, nil, since)
	if err != nil {
		return nil, fmt.Errorf("list users for refresh: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	results := make([][]*RollupStatus, len(userIDs))
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			results[i] = r.RunForUser(gctx, userID, since)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var statuses []*RollupStatus
	for _, rs := range results {
		statuses = append(statuses, rs...)
	}
	return statuses, nil
}

// RunForUser refreshes all rollups for one user. Failures are isolated per
// rollup: each is logged with its error and the loop continues.
func (r *Refresher) RunForUser(ctx context.Context, userID uuid.UUID, since time.Time) []*RollupStatus {
	names := make([]string, 0, len(r.rollups))
	for name := range r.rollups {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]*RollupStatus, 0, len(names))
	for _, name := range names {
		status := &RollupStatus{Rollup: name, UserID: userID.String()}
		rows, err := r.rollups[name](ctx, userID, since)
		if err == nil {
			err = r.metrics.ReplaceSnapshot(ctx, nil, userID, name, rows)
		}
		if err != nil {
			status.Err = err
			r.log.Error("rollup refresh failed", "rollup", name, "user_id", userID, "error", err)
		} else {
			status.Rows = len(rows)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// pillarAlignmentWeekly averages the alignment score reported by task and
// goal events per pillar per ISO week.
func (r *Refresher) pillarAlignmentWeekly(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.AggregateMetric, error) {
	events, err := r.events.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		return nil, err
	}
	type key struct {
		pillar uuid.UUID
		week   time.Time
	}
	sums := map[key]float64{}
	counts := map[key]int{}
	for _, ev := range events {
		data, err := eventData(ev)
		if err != nil {
			continue
		}
		pillarID, ok := dataUUID(data, "pillar_id")
		if !ok {
			continue
		}
		alignment, ok := dataFloat(data, "alignment")
		if !ok {
			continue
		}
		k := key{pillar: pillarID, week: weekStart(ev.Timestamp)}
		sums[k] += alignment
		counts[k]++
	}

	computedAt := r.now()
	rows := make([]*types.AggregateMetric, 0, len(sums))
	for k, sum := range sums {
		pillar := k.pillar
		values, err := json.Marshal(map[string]any{
			"avg_alignment": sum / float64(counts[k]),
			"sample_count":  counts[k],
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.AggregateMetric{
			UserID:       userID,
			Rollup:       types.RollupPillarAlignmentWeekly,
			SubjectID:    &pillar,
			PeriodStart:  k.week,
			MetricValues: datatypes.JSON(values),
			ComputedAt:   computedAt,
		})
	}
	sortMetrics(rows)
	return rows, nil
}

// areaHabitStrength scores each area by the share of days in the lookback
// window with at least one event for that area.
func (r *Refresher) areaHabitStrength(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.AggregateMetric, error) {
	events, err := r.events.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		return nil, err
	}
	activeDays := map[uuid.UUID]map[time.Time]bool{}
	totals := map[uuid.UUID]int{}
	for _, ev := range events {
		data, err := eventData(ev)
		if err != nil {
			continue
		}
		areaID, ok := dataUUID(data, "area_id")
		if !ok {
			continue
		}
		day := dayStart(ev.Timestamp)
		if activeDays[areaID] == nil {
			activeDays[areaID] = map[time.Time]bool{}
		}
		activeDays[areaID][day] = true
		totals[areaID]++
	}

	windowDays := int(r.now().Sub(since).Hours() / 24)
	if windowDays < 1 {
		windowDays = 1
	}
	computedAt := r.now()
	periodStart := dayStart(since)
	rows := make([]*types.AggregateMetric, 0, len(activeDays))
	for areaID, days := range activeDays {
		area := areaID
		strength := float64(len(days)) / float64(windowDays)
		if strength > 1 {
			strength = 1
		}
		values, err := json.Marshal(map[string]any{
			"habit_strength": strength,
			"active_days":    len(days),
			"event_count":    totals[areaID],
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.AggregateMetric{
			UserID:       userID,
			Rollup:       types.RollupAreaHabitStrength,
			SubjectID:    &area,
			PeriodStart:  periodStart,
			MetricValues: datatypes.JSON(values),
			ComputedAt:   computedAt,
		})
	}
	sortMetrics(rows)
	return rows, nil
}

// dailyFlow counts flow-state minutes and interruptions per day.
func (r *Refresher) dailyFlow(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.AggregateMetric, error) {
	events, err := r.events.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		return nil, err
	}
	flowMinutes := map[time.Time]float64{}
	interruptions := map[time.Time]int{}
	for _, ev := range events {
		day := dayStart(ev.Timestamp)
		if ev.FlowStateEvent {
			minutes := 0.0
			if data, err := eventData(ev); err == nil {
				if m, ok := dataFloat(data, "duration_minutes"); ok {
					minutes = m
				}
			}
			flowMinutes[day] += minutes
		}
		if ev.EventType == "interruption" {
			interruptions[day]++
		}
	}

	days := map[time.Time]bool{}
	for d := range flowMinutes {
		days[d] = true
	}
	for d := range interruptions {
		days[d] = true
	}
	computedAt := r.now()
	rows := make([]*types.AggregateMetric, 0, len(days))
	for day := range days {
		values, err := json.Marshal(map[string]any{
			"flow_minutes":  flowMinutes[day],
			"interruptions": interruptions[day],
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.AggregateMetric{
			UserID:       userID,
			Rollup:       types.RollupDailyFlow,
			PeriodStart:  day,
			MetricValues: datatypes.JSON(values),
			ComputedAt:   computedAt,
		})
	}
	sortMetrics(rows)
	return rows, nil
}

// completionByCognitiveLoad buckets the user's tasks by cognitive load and
// reports the completion rate per bucket.
func (r *Refresher) completionByCognitiveLoad(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.AggregateMetric, error) {
	tasks, err := r.tasks.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	totals := map[string]int{}
	completed := map[string]int{}
	for _, task := range tasks {
		if task.CreatedAt.Before(since) {
			continue
		}
		bucket := task.CognitiveLoad
		if bucket == "" {
			bucket = "unspecified"
		}
		totals[bucket]++
		if task.CompletedAt != nil {
			completed[bucket]++
		}
	}

	buckets := make([]string, 0, len(totals))
	for b := range totals {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	computedAt := r.now()
	periodStart := dayStart(since)
	rows := make([]*types.AggregateMetric, 0, len(buckets))
	for _, bucket := range buckets {
		values, err := json.Marshal(map[string]any{
			"cognitive_load":  bucket,
			"total_tasks":     totals[bucket],
			"completed_tasks": completed[bucket],
			"completion_rate": float64(completed[bucket]) / float64(totals[bucket]),
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.AggregateMetric{
			UserID:       userID,
			Rollup:       types.RollupCompletionByLoad,
			PeriodStart:  periodStart,
			MetricValues: datatypes.JSON(values),
			ComputedAt:   computedAt,
		})
	}
	return rows, nil
}

func eventData(ev *types.BehavioralEvent) (map[string]any, error) {
	if len(ev.EventData) == 0 {
		return nil, fmt.Errorf("no event data")
	}
	var data map[string]any
	if err := json.Unmarshal(ev.EventData, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func dataUUID(data map[string]any, key string) (uuid.UUID, bool) {
	raw, _ := data[key].(string)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func dataFloat(data map[string]any, key string) (float64, bool) {
	v, ok := data[key].(float64)
	return v, ok
}

func weekStart(t time.Time) time.Time {
	t = dayStart(t)
	// ISO weeks start on Monday.
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// sortMetrics orders snapshot rows deterministically so repeated refreshes
// over unchanged events produce identical output.
func sortMetrics(rows []*types.AggregateMetric) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].PeriodStart.Equal(rows[j].PeriodStart) {
			return rows[i].PeriodStart.Before(rows[j].PeriodStart)
		}
		si, sj := "", ""
		if rows[i].SubjectID != nil {
			si = rows[i].SubjectID.String()
		}
		if rows[j].SubjectID != nil {
			sj = rows[j].SubjectID.String()
		}
		return si < sj
	})
}
