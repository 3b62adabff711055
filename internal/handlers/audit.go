package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/services"
)

type AuditHandler struct {
	log      *logger.Logger
	auditSvc services.AuditService
}

func NewAuditHandler(log *logger.Logger, auditSvc services.AuditService) *AuditHandler {
	return &AuditHandler{
		log:      log.With("handler", "AuditHandler"),
		auditSvc: auditSvc,
	}
}

// GET /api/webhooks/stats?window_days=7
// Per-webhook-type trigger counts, timing and success rate.
func (h *AuditHandler) GetStats(c *gin.Context) {
	windowDays := 0
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "bad_window", fmt.Errorf("window_days must be a positive integer"))
			return
		}
		windowDays = parsed
	}
	stats, err := h.auditSvc.Stats(c.Request.Context(), windowDays)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, gin.H{"stats": stats})
}
