package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/dupcheck/internal/api"
	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/config"
	"github.com/RishiKendai/dupcheck/internal/configs/env"
	"github.com/RishiKendai/dupcheck/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/dupcheck/internal/infra/redis"
	"github.com/RishiKendai/dupcheck/internal/logger"
	"github.com/RishiKendai/dupcheck/internal/metrics"
	"github.com/RishiKendai/dupcheck/internal/notify"
	"github.com/RishiKendai/dupcheck/internal/plagiarism"
	"github.com/RishiKendai/dupcheck/internal/report"
	"github.com/RishiKendai/dupcheck/internal/repository"
	"github.com/RishiKendai/dupcheck/internal/stream"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log.Info().Msg("Starting dupcheck server")

	metrics.InitPrometheus()
	metricsServer := api.StartMetricsServer(cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	submissionsRepo := repository.NewSubmissionsRepository(mongoRepo)
	usersRepo := repository.NewUsersRepository(mongoRepo)
	problemsRepo := repository.NewProblemsRepository(mongoRepo)
	findingsRepo := repository.NewFindingsRepository(mongoRepo)
	if err := findingsRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create finding indexes")
	}

	workerPool := plagiarism.NewWorkerPool(ctx, 0)
	defer workerPool.Close()

	scanService := plagiarism.NewService(
		plagiarism.NewEngine(workerPool, cfg.BatchSize),
		submissionsRepo,
		findingsRepo,
		plagiarism.WithStatusTracker(plagiarism.NewRedisStatusTracker(redisClient.Client)),
		plagiarism.WithDistributedLock(plagiarism.NewRedisLocker(redisClient.Client, cfg.ScanLockTTL)),
		plagiarism.WithConcurrency(cfg.MaxConcurrentScans),
		plagiarism.WithDefaultThreshold(cfg.DuplicationThreshold),
		plagiarism.WithTimeout(cfg.ScanTimeout),
	)

	renderer := report.NewRenderer(
		findingsRepo,
		submissionsRepo,
		usersRepo,
		problemsRepo,
		report.NewRedisNotifyGuard(redisClient.Client),
		newSender(cfg, mongoRepo, redisClient.Client),
	)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	if cfg.StreamEnabled {
		retryHandler := stream.NewRetryHandler(
			redisClient.Client,
			cfg.RedisDeadLetterKey,
			stream.WithPermanentErrors(isPermanent),
			stream.WithDeferredErrors(func(err error) bool {
				return errors.Is(err, apperr.ErrScanInProgress)
			}),
		)

		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}
		consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
		consumer := stream.NewConsumer(
			redisClient.Client,
			cfg.RedisStreamKey,
			cfg.RedisConsumerGroup,
			consumerName,
			scanService,
			retryHandler,
			cfg.StreamRetentionDuration,
		)

		go func() {
			defer close(consumerDone)
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Redis consumer error")
			}
		}()
		log.Info().Str("consumer_name", consumerName).Msg("Redis stream consumer started")
	} else {
		close(consumerDone)
	}

	router := api.SetupRoutes(cfg, scanService, renderer)
	srv := api.StartServer(router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	consumerCancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Consumer did not stop in time")
	}

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}

func newSender(cfg *config.Config, mongoRepo *repository.MongoRepository, client *redis.Client) notify.Sender {
	switch cfg.NotifyDriver {
	case config.NotifyDriverWebhook:
		return notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyAPIKey)
	case config.NotifyDriverStream:
		return notify.NewStreamSender(client, cfg.NotifyStreamKey)
	default:
		return notify.NewMongoSender(mongoRepo)
	}
}

// isPermanent reports scan request failures that retrying cannot fix.
func isPermanent(err error) bool {
	return apperr.IsNotFound(err) ||
		errors.Is(err, plagiarism.ErrInvalidThreshold) ||
		errors.Is(err, apperr.ErrStaleScan)
}
