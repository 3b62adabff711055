package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aurumlife/enrichment-backend/internal/bus"
	"github.com/aurumlife/enrichment-backend/internal/cache"
	"github.com/aurumlife/enrichment-backend/internal/capture"
	"github.com/aurumlife/enrichment-backend/internal/db"
	"github.com/aurumlife/enrichment-backend/internal/handlers"
	"github.com/aurumlife/enrichment-backend/internal/jobs"
	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/middleware"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/server"
	"github.com/aurumlife/enrichment-backend/internal/services"
	"github.com/aurumlife/enrichment-backend/internal/utils"
	"github.com/aurumlife/enrichment-backend/internal/worker"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	httpPort := utils.GetEnv("HTTP_PORT", "8080", log)
	redisAddr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log)
	monthlyQuota := utils.GetEnvAsInt("MONTHLY_AI_QUOTA", services.DefaultMonthlyQuota, log)
	dispatchRetention := utils.GetEnvAsInt("DISPATCH_RETENTION_DAYS", services.DefaultDispatchRetentionDays, log)
	interactionRetention := utils.GetEnvAsInt("INTERACTION_RETENTION_DAYS", services.DefaultInteractionRetentionDays, log)
	refreshSpec := utils.GetEnv("REFRESH_CRON", "*/30 * * * *", log)
	sweepSpec := utils.GetEnv("SWEEP_CRON", "15 3 * * *", log)
	runWorker := utils.GetEnvAsBool("RUN_ENRICHMENT_WORKER", true, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	taskRepo := repos.NewTaskRepo(thePG, log)
	journalRepo := repos.NewJournalEntryRepo(thePG, log)
	eventRepo := repos.NewBehavioralEventRepo(thePG, log)
	dispatchRepo := repos.NewDispatchLogRepo(thePG, log)
	interactionRepo := repos.NewAIInteractionRepo(thePG, log)
	insightRepo := repos.NewInsightRepo(thePG, log)
	ruleRepo := repos.NewHRMRuleRepo(thePG, log)
	prefRepo := repos.NewHRMPreferenceRepo(thePG, log)
	feedbackRepo := repos.NewHRMFeedbackRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)
	metricRepo := repos.NewAggregateMetricRepo(thePG, log)

	// Rule seed
	ctx := context.Background()
	if err := db.SeedHRMRules(ctx, ruleRepo); err != nil {
		log.Error("HRM rule seed failed", "error", err)
		os.Exit(1)
	}

	// Bus
	log.Info("Setting up dispatch bus now...")
	dispatchBus, err := bus.NewRedisBus(log)
	if err != nil {
		log.Error("Could not init dispatch bus", "error", err)
		os.Exit(1)
	}
	defer dispatchBus.Close()

	// Cache
	userCache, err := cache.NewRedisCache(redisAddr, log)
	if err != nil {
		log.Error("Could not init cache", "error", err)
		os.Exit(1)
	}
	defer userCache.Close()

	// Services
	log.Info("Setting up Services from main...")
	hooks := capture.NewHooks(log, dispatchBus, dispatchRepo)
	quotaService := services.NewQuotaService(thePG, log, interactionRepo, dispatchRepo, dispatchBus, monthlyQuota)
	insightService := services.NewInsightService(thePG, log, insightRepo, feedbackRepo)
	retrievalService := services.NewRetrievalService(log, embeddingRepo, prefRepo)
	auditService := services.NewAuditService(log, dispatchRepo, interactionRepo, dispatchRetention, interactionRetention)
	eventStoreService := services.NewEventStoreService(thePG, log, hooks, taskRepo, journalRepo, eventRepo, prefRepo)
	ruleEngine := services.NewRuleEngine(log)

	// Enrichment worker
	if runWorker {
		log.Info("Starting enrichment worker now...")
		enrichmentWorker := worker.New(worker.Deps{
			Log:        log,
			Bus:        dispatchBus,
			Enricher:   worker.NewStubEnricher(),
			Cache:      userCache,
			Quota:      quotaService,
			Insights:   insightService,
			Retrieval:  retrievalService,
			Engine:     ruleEngine,
			Rules:      ruleRepo,
			Prefs:      prefRepo,
			Tasks:      taskRepo,
			Journal:    journalRepo,
			Dispatches: dispatchRepo,
		})
		if err := enrichmentWorker.Start(ctx); err != nil {
			log.Error("Could not start enrichment worker", "error", err)
			os.Exit(1)
		}
	}

	// Jobs
	log.Info("Starting scheduled jobs now...")
	refresher := jobs.NewRefresher(log, eventRepo, taskRepo, metricRepo, jobs.DefaultLookbackDays)
	if err := refresher.Start(ctx, refreshSpec); err != nil {
		log.Error("Could not start aggregation refresher", "error", err)
		os.Exit(1)
	}
	defer refresher.Stop()
	sweeper := jobs.NewSweeper(log, auditService)
	if err := sweeper.Start(ctx, sweepSpec); err != nil {
		log.Error("Could not start retention sweeper", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	// Handlers
	log.Info("Setting up Handlers from main...")
	userMiddleware := middleware.NewUserMiddleware(log)
	quotaHandler := handlers.NewQuotaHandler(log, quotaService)
	retrievalHandler := handlers.NewRetrievalHandler(log, retrievalService)
	insightHandler := handlers.NewInsightHandler(log, insightService)
	auditHandler := handlers.NewAuditHandler(log, auditService)
	eventStoreHandler := handlers.NewEventStoreHandler(log, eventStoreService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		UserMiddleware:    userMiddleware,
		QuotaHandler:      quotaHandler,
		RetrievalHandler:  retrievalHandler,
		InsightHandler:    insightHandler,
		AuditHandler:      auditHandler,
		EventStoreHandler: eventStoreHandler,
	})

	log.Info("Starting HTTP server", "port", httpPort)
	if err := router.Run(":" + httpPort); err != nil {
		log.Error("HTTP server exited", "error", err)
		os.Exit(1)
	}
}
