package bus

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var first, second []DispatchMessage
	if err := b.Subscribe(ctx, ChannelSentiment, func(m DispatchMessage) { first = append(first, m) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe(ctx, ChannelSentiment, func(m DispatchMessage) { second = append(second, m) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msg := DispatchMessage{
		Table:  "journal_entry",
		Action: ActionInsert,
		Record: DispatchRecord{UserID: uuid.New(), ID: uuid.New()},
	}
	if err := b.Publish(ctx, ChannelSentiment, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1 each", len(first), len(second))
	}
	if first[0].Record.ID != msg.Record.ID {
		t.Fatal("delivered message does not match published message")
	}
}

func TestMemoryBusDropsWithoutSubscriber(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	// Publishing with nobody listening is not an error; the message is lost.
	if err := b.Publish(ctx, ChannelEmbeddingQueue, DispatchMessage{}); err != nil {
		t.Fatalf("publish without subscriber: %v", err)
	}

	var late []DispatchMessage
	if err := b.Subscribe(ctx, ChannelEmbeddingQueue, func(m DispatchMessage) { late = append(late, m) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(late) != 0 {
		t.Fatal("late subscriber received a message published before it attached")
	}
}

func TestMemoryBusScopesByChannel(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var got []DispatchMessage
	if err := b.Subscribe(ctx, ChannelAlignmentRecalc, func(m DispatchMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, ChannelCacheInvalidate, DispatchMessage{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("message crossed channels")
	}
}

func TestMemoryBusCloseDetachesSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var got []DispatchMessage
	if err := b.Subscribe(ctx, ChannelSentiment, func(m DispatchMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Publish(ctx, ChannelSentiment, DispatchMessage{}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("closed bus still delivered")
	}
}
