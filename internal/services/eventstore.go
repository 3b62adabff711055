package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/capture"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

// EventStoreService owns the watched-entity write paths. Every mutation runs
// the entity write and the change-capture hook in one transaction: if the
// dispatch audit insert fails, the whole write fails. Bus publishes happen
// only after the transaction commits, so a rollback leaves neither an audit
// row nor an in-flight message.
type EventStoreService interface {
	CreateTask(ctx context.Context, task *types.Task) (*types.Task, error)
	UpdateTask(ctx context.Context, task *types.Task) (*types.Task, error)
	DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error
	CreateJournalEntry(ctx context.Context, entry *types.JournalEntry) (*types.JournalEntry, error)
	UpdateJournalEntry(ctx context.Context, entry *types.JournalEntry) (*types.JournalEntry, error)
	TrackBehavioralEvent(ctx context.Context, event *types.BehavioralEvent) (*types.BehavioralEvent, error)
}

type eventStoreService struct {
	db      *gorm.DB
	log     *logger.Logger
	hooks   *capture.Hooks
	tasks   repos.TaskRepo
	journal repos.JournalEntryRepo
	events  repos.BehavioralEventRepo
	prefs   repos.HRMPreferenceRepo
}

func NewEventStoreService(db *gorm.DB, baseLog *logger.Logger, hooks *capture.Hooks, tasks repos.TaskRepo, journal repos.JournalEntryRepo, events repos.BehavioralEventRepo, prefs repos.HRMPreferenceRepo) EventStoreService {
	return &eventStoreService{
		db:      db,
		log:     baseLog.With("service", "EventStoreService"),
		hooks:   hooks,
		tasks:   tasks,
		journal: journal,
		events:  events,
		prefs:   prefs,
	}
}

func (s *eventStoreService) CreateTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task == nil || task.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing task or user_id")
	}
	if task.Name == "" {
		return nil, fmt.Errorf("missing task name")
	}
	if task.Status == "" {
		task.Status = "todo"
	}
	var pending []capture.Pending
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.tasks.Create(ctx, tx, task); err != nil {
			return err
		}
		var err error
		pending, err = s.hooks.Run(ctx, tx, taskMutation(task, bus.ActionInsert))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Publish(ctx, pending)
	return task, nil
}

func (s *eventStoreService) UpdateTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task == nil || task.ID == uuid.Nil || task.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing task id or user_id")
	}
	var pending []capture.Pending
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.tasks.GetByID(ctx, tx, task.ID)
		if err != nil {
			return err
		}
		if existing.UserID != task.UserID {
			return fmt.Errorf("task %s does not belong to user", task.ID)
		}
		if _, err := s.tasks.Update(ctx, tx, task); err != nil {
			return err
		}
		pending, err = s.hooks.Run(ctx, tx, taskMutation(task, bus.ActionUpdate))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Publish(ctx, pending)
	return task, nil
}

func (s *eventStoreService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	if userID == uuid.Nil || taskID == uuid.Nil {
		return fmt.Errorf("missing user_id or task id")
	}
	var pending []capture.Pending
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.tasks.GetByID(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if existing.UserID != userID {
			return fmt.Errorf("task %s does not belong to user", taskID)
		}
		if err := s.tasks.SoftDeleteByID(ctx, tx, taskID); err != nil {
			return err
		}
		pending, err = s.hooks.Run(ctx, tx, capture.Mutation{
			Table:    capture.TableTask,
			Action:   bus.ActionDelete,
			UserID:   userID,
			RecordID: taskID,
			Fields:   map[string]any{"status": existing.Status},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.hooks.Publish(ctx, pending)
	return nil
}

func (s *eventStoreService) CreateJournalEntry(ctx context.Context, entry *types.JournalEntry) (*types.JournalEntry, error) {
	if entry == nil || entry.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing entry or user_id")
	}
	var pending []capture.Pending
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.journal.Create(ctx, tx, entry); err != nil {
			return err
		}
		var err error
		pending, err = s.hooks.Run(ctx, tx, journalMutation(entry, bus.ActionInsert))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Publish(ctx, pending)
	return entry, nil
}

func (s *eventStoreService) UpdateJournalEntry(ctx context.Context, entry *types.JournalEntry) (*types.JournalEntry, error) {
	if entry == nil || entry.ID == uuid.Nil || entry.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing entry id or user_id")
	}
	var pending []capture.Pending
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.journal.GetByID(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if existing.UserID != entry.UserID {
			return fmt.Errorf("journal entry %s does not belong to user", entry.ID)
		}
		if _, err := s.journal.Update(ctx, tx, entry); err != nil {
			return err
		}
		pending, err = s.hooks.Run(ctx, tx, journalMutation(entry, bus.ActionUpdate))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Publish(ctx, pending)
	return entry, nil
}

func (s *eventStoreService) TrackBehavioralEvent(ctx context.Context, event *types.BehavioralEvent) (*types.BehavioralEvent, error) {
	if event == nil || event.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing event or user_id")
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("missing event_type")
	}
	pref, err := s.prefs.GetByUserID(ctx, nil, event.UserID)
	if err != nil {
		return nil, err
	}
	if pref != nil && !pref.TrackBehavioralEvents {
		return nil, fmt.Errorf("%w: behavioral_event", ErrConsentDenied)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	var pending []capture.Pending
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.events.Create(ctx, tx, []*types.BehavioralEvent{event}); err != nil {
			return err
		}
		var err error
		pending, err = s.hooks.Run(ctx, tx, capture.Mutation{
			Table:    capture.TableBehavioralEvent,
			Action:   bus.ActionInsert,
			UserID:   event.UserID,
			RecordID: event.ID,
			Fields: map[string]any{
				"event_type":       event.EventType,
				"flow_state_event": event.FlowStateEvent,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.Publish(ctx, pending)
	return event, nil
}

func taskMutation(task *types.Task, action string) capture.Mutation {
	fields := map[string]any{
		"name":        task.Name,
		"description": task.Description,
		"status":      task.Status,
	}
	if task.DueDate != nil {
		fields["due_date"] = *task.DueDate
	}
	if task.CompletedAt != nil {
		fields["completed_at"] = *task.CompletedAt
	}
	return capture.Mutation{
		Table:    capture.TableTask,
		Action:   action,
		UserID:   task.UserID,
		RecordID: task.ID,
		Fields:   fields,
	}
}

func journalMutation(entry *types.JournalEntry, action string) capture.Mutation {
	return capture.Mutation{
		Table:    capture.TableJournalEntry,
		Action:   action,
		UserID:   entry.UserID,
		RecordID: entry.ID,
		Fields: map[string]any{
			"title":   entry.Title,
			"content": entry.Content,
			"mood":    entry.Mood,
		},
	}
}
