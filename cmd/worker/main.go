package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/cache"
	"github.com/audeo-edu/intelligrade-api/internal/config"
	"github.com/audeo-edu/intelligrade-api/internal/database"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
	"github.com/audeo-edu/intelligrade-api/internal/service"
	"github.com/audeo-edu/intelligrade-api/internal/worker"
	"github.com/audeo-edu/intelligrade-api/pkg/ai"
	"github.com/audeo-edu/intelligrade-api/pkg/breaker"
	"github.com/audeo-edu/intelligrade-api/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "intelligrade-worker").Logger()

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

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobService.Start(runCtx)

	pool := worker.New(jobRepo, jobService, cfg.Queue, logger)
	pool.Run(runCtx)

	log.Println("worker stopped")
}
