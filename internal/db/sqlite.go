package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// Models is the full migration set, shared by the postgres and sqlite
// services so tests migrate exactly what production migrates.
func Models() []any {
	return []any{
		&types.Task{},
		&types.JournalEntry{},
		&types.BehavioralEvent{},
		&types.DispatchLog{},
		&types.AIInteraction{},
		&types.Insight{},
		&types.HRMRule{},
		&types.HRMUserPreference{},
		&types.HRMFeedback{},
		&types.Embedding{},
		&types.AggregateMetric{},
	}
}

// SQLiteService backs local runs and tests. Use ":memory:" for a throwaway
// database.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(path string, log *logger.Logger) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}
	return &SQLiteService{db: gdb, log: serviceLog}, nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		s.log.Error("Auto migration failed for sqlite tables", "error", err)
		return err
	}
	return nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
