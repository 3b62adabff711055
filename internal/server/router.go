package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aurumlife/enrichment-backend/internal/handlers"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
)

type RouterConfig struct {
	UserMiddleware    *middleware.UserMiddleware
	QuotaHandler      *handlers.QuotaHandler
	RetrievalHandler  *handlers.RetrievalHandler
	InsightHandler    *handlers.InsightHandler
	AuditHandler      *handlers.AuditHandler
	EventStoreHandler *handlers.EventStoreHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.UserMiddleware.RequireUser())
	// Quota
	api.GET("/quota/usage", cfg.QuotaHandler.GetUsage)
	api.GET("/quota/check", cfg.QuotaHandler.CheckQuota)
	// Retrieval
	api.POST("/search", cfg.RetrievalHandler.Search)
	// Insights
	api.GET("/insights/active", cfg.InsightHandler.GetActive)
	api.POST("/insights/:id/feedback", cfg.InsightHandler.SubmitFeedback)
	// Audit
	api.GET("/webhooks/stats", cfg.AuditHandler.GetStats)
	// Event store
	api.POST("/tasks", cfg.EventStoreHandler.CreateTask)
	api.PATCH("/tasks/:id", cfg.EventStoreHandler.UpdateTask)
	api.DELETE("/tasks/:id", cfg.EventStoreHandler.DeleteTask)
	api.POST("/journal", cfg.EventStoreHandler.CreateJournalEntry)
	api.PATCH("/journal/:id", cfg.EventStoreHandler.UpdateJournalEntry)
	api.POST("/events", cfg.EventStoreHandler.TrackBehavioralEvent)

	return router
}
