package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/cache"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/workers"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, _, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	archiveRepo := database.NewArchiveRepository(db)
	activityRepo := database.NewActivityRepository(db)

	// Sweeps mutate tasks across owners, so the worker also needs cache
	// access to drop the affected owners' cached lists.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	taskCache := cache.New(redisClient, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduled archival sweep runs here so the API server is not the only
	// process responsible for it.
	archiver := workers.NewArchiver(archiveRepo, cfg.ArchiveInterval, time.Duration(cfg.ArchiveAfterDays)*24*time.Hour, zapLogger,
		workers.WithCacheInvalidation(taskCache))
	go archiver.Start(ctx)

	// Consume lifecycle events, reconnecting when the bus connection drops.
	go func() {
		for {
			if err := consumeOnce(ctx, cfg, activityRepo, zapLogger); err != nil {
				zapLogger.Warn("event_consumer_disconnected_retrying",
					zap.Error(err),
					zap.Duration("retry_delay", reconnectDelay),
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("worker_shutting_down")
	cancel()
	zapLogger.Info("worker_exited")
}

func consumeOnce(ctx context.Context, cfg *config.Config, activityRepo *database.ActivityRepository, zapLogger *zap.Logger) error {
	bus, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	consumer := workers.NewActivityConsumer(bus, activityRepo, cfg.RabbitMQPrefetch, zapLogger)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
