package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

const (
	TableTask            = "task"
	TableJournalEntry    = "journal_entry"
	TableBehavioralEvent = "behavioral_event"
)

// Behavioral event types significant enough to trigger insight generation.
var significantEventTypes = map[string]bool{
	"project_completed":           true,
	"goal_achieved":               true,
	"streak_milestone":            true,
	"productivity_pattern_change": true,
	"sentiment_trend_change":      true,
}

// Mutation is what a hook sees about one row change. Fields carries only
// allow-listed columns; unknown field names are rejected before any dispatch
// is built.
type Mutation struct {
	Table    string
	Action   string
	UserID   uuid.UUID
	RecordID uuid.UUID
	Fields   map[string]any
}

var allowedFields = map[string]map[string]bool{
	TableTask: {
		"name": true, "description": true, "status": true, "due_date": true,
		"project_id": true, "completed_at": true, "energy_level": true, "cognitive_load": true,
	},
	TableJournalEntry: {
		"title": true, "content": true, "mood": true,
	},
	TableBehavioralEvent: {
		"event_type": true, "session_id": true, "flow_state_event": true,
	},
}

// Pending is a dispatch whose audit row has been written but whose bus
// publish has not happened yet. Publishes are deferred until after the
// mutation's transaction commits, so a rollback leaves no message in flight
// and no visible audit row.
type Pending struct {
	LogID   uuid.UUID
	Channel string
	Message bus.DispatchMessage
}

// Hooks evaluates change-capture rules for watched tables and appends the
// dispatch audit rows inside the caller's transaction.
type Hooks struct {
	log          *logger.Logger
	bus          bus.Bus
	dispatchRepo repos.DispatchLogRepo
}

func NewHooks(baseLog *logger.Logger, b bus.Bus, dispatchRepo repos.DispatchLogRepo) *Hooks {
	return &Hooks{
		log:          baseLog.With("service", "CaptureHooks"),
		bus:          b,
		dispatchRepo: dispatchRepo,
	}
}

// Run validates the mutation, computes its dispatch channels and writes one
// DispatchLog row per channel in tx. The caller must invoke Publish with the
// returned slice only after the transaction commits. An audit insert failure
// fails the whole mutation.
func (h *Hooks) Run(ctx context.Context, tx *gorm.DB, m Mutation) ([]Pending, error) {
	if tx == nil {
		return nil, fmt.Errorf("capture hooks must run inside the mutation's transaction")
	}
	if m.UserID == uuid.Nil || m.RecordID == uuid.Nil {
		return nil, fmt.Errorf("mutation missing user_id or record id")
	}
	allowed, ok := allowedFields[m.Table]
	if !ok {
		return nil, fmt.Errorf("unwatched table %q", m.Table)
	}
	for field := range m.Fields {
		if !allowed[field] {
			return nil, fmt.Errorf("field %q not allow-listed for table %q", field, m.Table)
		}
	}

	channels := h.channelsFor(m)
	if len(channels) == 0 {
		return nil, nil
	}

	entries := make([]*types.DispatchLog, 0, len(channels))
	for _, ch := range channels {
		entries = append(entries, &types.DispatchLog{
			WebhookType: ch,
			UserID:      m.UserID,
			SourceTable: m.Table,
			RecordID:    m.RecordID,
			TriggeredAt: time.Now().UTC(),
			Status:      types.DispatchStatusPending,
		})
	}
	entries, err := h.dispatchRepo.Create(ctx, tx, entries)
	if err != nil {
		return nil, fmt.Errorf("dispatch audit insert: %w", err)
	}

	pending := make([]Pending, 0, len(entries))
	for _, e := range entries {
		pending = append(pending, Pending{
			LogID:   e.ID,
			Channel: e.WebhookType,
			Message: bus.DispatchMessage{
				Table:  m.Table,
				Action: m.Action,
				Record: bus.DispatchRecord{
					UserID: m.UserID,
					ID:     m.RecordID,
					Context: map[string]any{
						"dispatch_log_id": e.ID.String(),
					},
				},
			},
		})
	}
	return pending, nil
}

// Publish is fire-and-forget: a publish error is logged, never returned.
// Listeners that missed the message recover it from the pending audit rows.
func (h *Hooks) Publish(ctx context.Context, pending []Pending) {
	for _, p := range pending {
		if err := h.bus.Publish(ctx, p.Channel, p.Message); err != nil {
			h.log.Warn("dispatch publish failed, audit row left pending",
				"channel", p.Channel, "dispatch_log_id", p.LogID, "error", err)
		}
	}
}

func (h *Hooks) channelsFor(m Mutation) []string {
	var channels []string
	switch m.Table {
	case TableJournalEntry:
		if m.Action == bus.ActionInsert || m.Action == bus.ActionUpdate {
			if hasText(m.Fields, "content") {
				channels = append(channels, bus.ChannelSentiment, bus.ChannelEmbeddingQueue)
			}
			channels = append(channels, bus.ChannelAnalyticsAggregate, bus.ChannelCacheInvalidate)
		}
	case TableTask:
		channels = append(channels, bus.ChannelAlignmentRecalc, bus.ChannelAnalyticsAggregate, bus.ChannelCacheInvalidate)
		if m.Action != bus.ActionDelete && hasText(m.Fields, "description") {
			channels = append(channels, bus.ChannelEmbeddingQueue)
		}
	case TableBehavioralEvent:
		if m.Action == bus.ActionInsert {
			channels = append(channels, bus.ChannelAnalyticsAggregate)
			if et, _ := m.Fields["event_type"].(string); significantEventTypes[et] {
				channels = append(channels, bus.ChannelInsightTrigger)
			}
		}
	}
	return channels
}

func hasText(fields map[string]any, key string) bool {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s) != ""
}
