package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/cache"
	"github.com/audeo-edu/intelligrade-api/internal/config"
	"github.com/audeo-edu/intelligrade-api/internal/database"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/handler"
	"github.com/audeo-edu/intelligrade-api/internal/middleware"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
	"github.com/audeo-edu/intelligrade-api/internal/router"
	"github.com/audeo-edu/intelligrade-api/internal/service"
	"github.com/audeo-edu/intelligrade-api/pkg/ai"
	"github.com/audeo-edu/intelligrade-api/pkg/breaker"
	"github.com/audeo-edu/intelligrade-api/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.GradingJob{}, &models.GradingResult{}, &models.GradingCacheEntry{}, &models.EscalationOutcome{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	jobRepo := repository.NewGradingJobRepository(db)
	resultRepo := repository.NewGradingResultRepository(db)
	cacheRepo := repository.NewGradingCacheRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)

	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai grader: %v", err)
	}

	remoteBreaker := breaker.New(breaker.Config{
		Name:             "remote-grader",
		FailureThreshold: cfg.Grading.BreakerThreshold,
		RecoveryTimeout:  cfg.Grading.BreakerRecovery,
		Logger:           logger,
	})
	retryPolicy := retry.Policy{
		MaxAttempts:  cfg.Grading.RetryMaxAttempts,
		InitialDelay: cfg.Grading.RetryInitialDelay,
	}

	tiered := cache.NewTiered(cacheRepo, cfg.Grading.L1CacheCapacity, logger)
	remote := grading.NewRemoteBackend(grader, remoteBreaker, retryPolicy, cfg.Grading.RemoteTimeout, logger)

	gradingService := service.NewGradingService(resultRepo, escalationRepo, tiered, grading.NewRuleBackend(), grading.NewLocalBackend(), remote, cfg.Grading, validate, logger)
	defer gradingService.Close()

	jobService := service.NewJobService(jobRepo, gradingService, redisClient, natsConn, validate, logger)

	runCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	jobService.Start(runCtx)

	gradingHandler := handler.NewGradingHandler(gradingService, jobService, validate, logger)
	jobHandler := handler.NewJobHandler(jobService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
		JobHandler:     jobHandler,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
