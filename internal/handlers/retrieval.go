package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
	"github.com/aurumlife/enrichment-backend/internal/services"
)

type RetrievalHandler struct {
	log          *logger.Logger
	retrievalSvc services.RetrievalService
}

func NewRetrievalHandler(log *logger.Logger, retrievalSvc services.RetrievalService) *RetrievalHandler {
	return &RetrievalHandler{
		log:          log.With("handler", "RetrievalHandler"),
		retrievalSvc: retrievalSvc,
	}
}

type searchRequest struct {
	QueryVector   []float32 `json:"query_vector" binding:"required"`
	Limit         int       `json:"limit"`
	DateRangeDays int       `json:"date_range_days"`
}

// POST /api/search
// Ranked nearest-neighbor search over the caller's consented embeddings.
func (h *RetrievalHandler) Search(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("no user in context"))
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	hits, err := h.retrievalSvc.Search(c.Request.Context(), req.QueryVector, userID, req.Limit, req.DateRangeDays)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"results": hits})
}
