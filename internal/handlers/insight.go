package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
	"github.com/aurumlife/enrichment-backend/internal/services"
)

type InsightHandler struct {
	log        *logger.Logger
	insightSvc services.InsightService
}

func NewInsightHandler(log *logger.Logger, insightSvc services.InsightService) *InsightHandler {
	return &InsightHandler{
		log:        log.With("handler", "InsightHandler"),
		insightSvc: insightSvc,
	}
}

// GET /api/insights/active
// Active, unexpired insights for the caller, newest first.
func (h *InsightHandler) GetActive(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	insights, err := h.insightSvc.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"insights": insights})
}

type feedbackRequest struct {
	FeedbackType  string   `json:"feedback_type" binding:"required"`
	AdjustedScore *float64 `json:"user_adjusted_score"`
}

// POST /api/insights/:id/feedback
// Append a correction to the feedback log and stamp the insight.
func (h *InsightHandler) SubmitFeedback(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	insightID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", fmt.Errorf("invalid insight id"))
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	fb, err := h.insightSvc.SubmitFeedback(c.Request.Context(), userID, insightID, req.FeedbackType, req.AdjustedScore)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("insight not found"))
			return
		}
		RespondError(c, http.StatusBadRequest, "feedback_failed", err)
		return
	}
	RespondOK(c, fb)
}
