package bus

import (
	"context"

	"github.com/google/uuid"
)

// Dispatch channel names. These are logical topics on the pub/sub bus; one
// worker subscription per channel.
const (
	ChannelSentiment          = "sentiment"
	ChannelAlignmentRecalc    = "alignment-recalc"
	ChannelInsightTrigger     = "insight-trigger"
	ChannelAnalyticsAggregate = "analytics-aggregate"
	ChannelCacheInvalidate    = "cache-invalidate"
	ChannelEmbeddingQueue     = "embedding-queue"
	ChannelQuotaWarning       = "quota-warning"
	ChannelQuotaLimit         = "quota-limit"
)

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// DispatchMessage is the payload published on every channel:
// {table, action, record: {user_id, id, ...context}}.
type DispatchMessage struct {
	Table  string         `json:"table"`
	Action string         `json:"action"`
	Record DispatchRecord `json:"record"`
}

type DispatchRecord struct {
	UserID  uuid.UUID      `json:"user_id"`
	ID      uuid.UUID      `json:"id"`
	Context map[string]any `json:"context,omitempty"`
}

// Bus is a transient publish/subscribe primitive. Delivery is
// fire-and-forget: a message published with no connected subscriber is lost.
// Durability comes from the dispatch audit log, not from the bus.
type Bus interface {
	Publish(ctx context.Context, channel string, msg DispatchMessage) error
	Subscribe(ctx context.Context, channel string, onMsg func(m DispatchMessage)) error
	Close() error
}
