package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
	"github.com/aurumlife/enrichment-backend/internal/services"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

type EventStoreHandler struct {
	log      *logger.Logger
	storeSvc services.EventStoreService
}

func NewEventStoreHandler(log *logger.Logger, storeSvc services.EventStoreService) *EventStoreHandler {
	return &EventStoreHandler{
		log:      log.With("handler", "EventStoreHandler"),
		storeSvc: storeSvc,
	}
}

type taskRequest struct {
	ProjectID     *uuid.UUID `json:"project_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	DueDate       *time.Time `json:"due_date"`
	EnergyLevel   string     `json:"energy_level"`
	CognitiveLoad string     `json:"cognitive_load"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// POST /api/tasks
func (h *EventStoreHandler) CreateTask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := h.storeSvc.CreateTask(c.Request.Context(), &types.Task{
		UserID:        userID,
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		Description:   req.Description,
		Status:        req.Status,
		DueDate:       req.DueDate,
		EnergyLevel:   req.EnergyLevel,
		CognitiveLoad: req.CognitiveLoad,
		CompletedAt:   req.CompletedAt,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// PATCH /api/tasks/:id
func (h *EventStoreHandler) UpdateTask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", fmt.Errorf("invalid task id"))
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := h.storeSvc.UpdateTask(c.Request.Context(), &types.Task{
		ID:            taskID,
		UserID:        userID,
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		Description:   req.Description,
		Status:        req.Status,
		DueDate:       req.DueDate,
		EnergyLevel:   req.EnergyLevel,
		CognitiveLoad: req.CognitiveLoad,
		CompletedAt:   req.CompletedAt,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("task not found"))
			return
		}
		RespondError(c, http.StatusBadRequest, "update_failed", err)
		return
	}
	RespondOK(c, task)
}

// DELETE /api/tasks/:id
func (h *EventStoreHandler) DeleteTask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", fmt.Errorf("invalid task id"))
		return
	}
	if err := h.storeSvc.DeleteTask(c.Request.Context(), userID, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("task not found"))
			return
		}
		RespondError(c, http.StatusBadRequest, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type journalRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Mood    string `json:"mood"`
}

// POST /api/journal
func (h *EventStoreHandler) CreateJournalEntry(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	entry, err := h.storeSvc.CreateJournalEntry(c.Request.Context(), &types.JournalEntry{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Mood:    req.Mood,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// PATCH /api/journal/:id
func (h *EventStoreHandler) UpdateJournalEntry(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", fmt.Errorf("invalid journal entry id"))
		return
	}
	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	entry, err := h.storeSvc.UpdateJournalEntry(c.Request.Context(), &types.JournalEntry{
		ID:      entryID,
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Mood:    req.Mood,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("journal entry not found"))
			return
		}
		RespondError(c, http.StatusBadRequest, "update_failed", err)
		return
	}
	RespondOK(c, entry)
}

type behavioralEventRequest struct {
	EventType      string         `json:"event_type" binding:"required"`
	EventData      map[string]any `json:"event_data"`
	SessionID      *uuid.UUID     `json:"session_id"`
	FlowStateEvent bool           `json:"flow_state_event"`
	Timestamp      *time.Time     `json:"timestamp"`
}

// POST /api/events
func (h *EventStoreHandler) TrackBehavioralEvent(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	var req behavioralEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	event := &types.BehavioralEvent{
		UserID:         userID,
		EventType:      req.EventType,
		SessionID:      req.SessionID,
		FlowStateEvent: req.FlowStateEvent,
	}
	if req.Timestamp != nil {
		event.Timestamp = *req.Timestamp
	}
	if req.EventData != nil {
		raw, err := json.Marshal(req.EventData)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_event_data", err)
			return
		}
		event.EventData = datatypes.JSON(raw)
	}
	event, err := h.storeSvc.TrackBehavioralEvent(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, services.ErrConsentDenied) {
			RespondError(c, http.StatusForbidden, "consent_denied", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "track_failed", err)
		return
	}
	c.JSON(http.StatusCreated, event)
}
