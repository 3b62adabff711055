package capture

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/db"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

func newHooksFixture(t *testing.T) (*Hooks, *gorm.DB, bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	svc, err := db.NewSQLiteService("file:"+path+"?_busy_timeout=5000", logger.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	memBus := bus.NewMemoryBus()
	hooks := NewHooks(logger.NewNop(), memBus, repos.NewDispatchLogRepo(svc.DB(), logger.NewNop()))
	return hooks, svc.DB(), memBus
}

func TestRunRejectsUnknownField(t *testing.T) {
	hooks, gdb, _ := newHooksFixture(t)
	_, err := hooks.Run(context.Background(), gdb, Mutation{
		Table:    TableTask,
		Action:   bus.ActionUpdate,
		UserID:   uuid.New(),
		RecordID: uuid.New(),
		Fields:   map[string]any{"password_hash": "x"},
	})
	if err == nil {
		t.Fatal("unknown field accepted; the allow-list must reject before any side effect")
	}

	var count int64
	if err := gdb.Model(&types.DispatchLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("audit rows = %d, want 0 after validation failure", count)
	}
}

func TestRunRejectsUnwatchedTable(t *testing.T) {
	hooks, gdb, _ := newHooksFixture(t)
	_, err := hooks.Run(context.Background(), gdb, Mutation{
		Table:    "user_credentials",
		Action:   bus.ActionInsert,
		UserID:   uuid.New(),
		RecordID: uuid.New(),
	})
	if err == nil {
		t.Fatal("unwatched table accepted")
	}
}

func TestRunRequiresTransaction(t *testing.T) {
	hooks, _, _ := newHooksFixture(t)
	_, err := hooks.Run(context.Background(), nil, Mutation{
		Table:    TableTask,
		Action:   bus.ActionInsert,
		UserID:   uuid.New(),
		RecordID: uuid.New(),
	})
	if err == nil {
		t.Fatal("hook ran outside a transaction")
	}
}

func TestPublishHappensAfterRun(t *testing.T) {
	hooks, gdb, memBus := newHooksFixture(t)
	received := 0
	if err := memBus.Subscribe(context.Background(), bus.ChannelAlignmentRecalc, func(m bus.DispatchMessage) {
		received++
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pending, err := hooks.Run(context.Background(), gdb, Mutation{
		Table:    TableTask,
		Action:   bus.ActionUpdate,
		UserID:   uuid.New(),
		RecordID: uuid.New(),
		Fields:   map[string]any{"status": "done"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if received != 0 {
		t.Fatal("message published before the caller committed")
	}

	hooks.Publish(context.Background(), pending)
	if received != 1 {
		t.Fatalf("received = %d, want 1 after Publish", received)
	}
}

func TestEveryPendingCarriesAuditReference(t *testing.T) {
	hooks, gdb, _ := newHooksFixture(t)
	pending, err := hooks.Run(context.Background(), gdb, Mutation{
		Table:    TableJournalEntry,
		Action:   bus.ActionInsert,
		UserID:   uuid.New(),
		RecordID: uuid.New(),
		Fields:   map[string]any{"content": "a full entry"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pending) == 0 {
		t.Fatal("no dispatches for a journal insert with content")
	}
	for _, p := range pending {
		ref, _ := p.Message.Record.Context["dispatch_log_id"].(string)
		if ref == "" {
			t.Fatalf("dispatch on %s missing dispatch_log_id", p.Channel)
		}
		var row types.DispatchLog
		if err := gdb.Where("id = ?", ref).First(&row).Error; err != nil {
			t.Fatalf("audit row for %s not found: %v", p.Channel, err)
		}
		if row.Status != types.DispatchStatusPending {
			t.Fatalf("audit row status = %q, want pending at publish time", row.Status)
		}
	}
}
