package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
	"github.com/aurumlife/enrichment-backend/internal/services"
)

type QuotaHandler struct {
	log      *logger.Logger
	quotaSvc services.QuotaService
}

func NewQuotaHandler(log *logger.Logger, quotaSvc services.QuotaService) *QuotaHandler {
	return &QuotaHandler{
		log:      log.With("handler", "QuotaHandler"),
		quotaSvc: quotaSvc,
	}
}

// GET /api/quota/usage
// Current calendar-month usage with per-feature breakdown.
func (h *QuotaHandler) GetUsage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	usage, err := h.quotaSvc.GetUsage(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "usage_failed", err)
		return
	}
	RespondOK(c, usage)
}

// GET /api/quota/check?limit=250
// Atomic snapshot of remaining quota for the window.
func (h *QuotaHandler) CheckQuota(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "bad_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	check, err := h.quotaSvc.CheckQuota(c.Request.Context(), userID, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "check_failed", err)
		return
	}
	RespondOK(c, check)
}
