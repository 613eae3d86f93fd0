package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smart-tasks/internal/config"
	"github.com/benvon/smart-tasks/internal/consolidation"
	"github.com/benvon/smart-tasks/internal/database"
	"github.com/benvon/smart-tasks/internal/events"
	"github.com/benvon/smart-tasks/internal/handlers"
	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/middleware"
	"github.com/benvon/smart-tasks/internal/queue"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"github.com/benvon/smart-tasks/internal/taskstore"
	"github.com/benvon/smart-tasks/internal/telemetry"
	"github.com/benvon/smart-tasks/internal/workers"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag
	cfg.WorkerDebugMode = debugMode

	zapLogger, err := logger.New(debugMode, cfg.DevelopmentLogging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEnabled, telemetry.WorkerServiceName, cfg.OTELEndpoint)
	if err != nil {
		zapLogger.Fatal("tracer_init_failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Warn("tracer_shutdown_failed", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_starting",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("cluster_strategy", cfg.ClusterStrategy),
	)

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("database_connect_failed", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("database_close_failed", zap.Error(err))
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("database_migrate_failed", zap.Error(err))
	}
	zapLogger.Info("database_connected")

	store := taskstore.New(database.NewTaskRepository(db), zapLogger)

	// Redis is optional; without it comparisons are cached in memory per process
	var cache consolidation.SimilarityCache = consolidation.NewMemoryCache()
	var cacheCheck handlers.Checker
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisCache, client, err := consolidation.NewRedisCacheFromURL(ctx, cfg.RedisURL, cfg.RedisCacheKey, zapLogger)
		if err != nil {
			zapLogger.Warn("redis_unavailable_using_memory_cache", zap.Error(err))
		} else {
			defer func() { _ = client.Close() }()
			redisClient = client
			cache = redisCache
			cacheCheck = redisCache
			zapLogger.Info("redis_cache_enabled", zap.String("key", cfg.RedisCacheKey))
		}
	}

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("rabbitmq_connect_failed", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("rabbitmq_close_failed", zap.Error(err))
		}
	}()

	eventChannel, err := jobQueue.Channel()
	if err != nil {
		zapLogger.Fatal("rabbitmq_event_channel_failed", zap.Error(err))
	}
	publisher, err := queue.NewRabbitMQPublisher(eventChannel, zapLogger)
	if err != nil {
		zapLogger.Fatal("rabbitmq_event_exchange_failed", zap.Error(err))
	}
	zapLogger.Info("rabbitmq_connected", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	registry := ai.DefaultRegistry(ai.WithLogger(zapLogger))
	classifier, err := registry.GetProvider(cfg.AIProvider, cfg.ClassifierSettings())
	if err != nil {
		zapLogger.Fatal("classifier_init_failed", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}

	engine, err := consolidation.NewEngine(classifier, store, consolidation.Options{
		Config:    cfg.EngineConfig(),
		Cache:     cache,
		Publisher: events.NewDispatcher(zapLogger, events.NewLogSink(zapLogger), publisher),
		Logger:    zapLogger,
	})
	if err != nil {
		zapLogger.Fatal("engine_init_failed", zap.Error(err))
	}
	processor := workers.NewJobProcessor(engine, jobQueue, zapLogger)

	// Health and operator endpoints
	router := telemetry.NewRouter(telemetry.WorkerServiceName)
	router.Use(middleware.Recover(zapLogger), middleware.Logging(zapLogger))
	handlers.NewHealthChecker(map[string]handlers.Checker{
		"database": db,
		"queue":    jobQueue,
		"cache":    cacheCheck,
	}).RegisterRoutes(router)
	handlers.NewTaskHandler(store, engine).RegisterRoutes(router)

	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("rate_limiter_init_failed", zap.Error(err))
	}
	rateLimit, err := middleware.RateLimit(limiterStore, cfg.HTTPRateLimit)
	if err != nil {
		zapLogger.Fatal("rate_limiter_init_failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HealthPort,
		Handler:           middleware.Chain(router, middleware.SecurityHeaders, middleware.CORS(cfg.CORSAllowedOrigins), rateLimit),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		zapLogger.Info("health_server_starting", zap.String("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("health_server_failed", zap.Error(err))
		}
	}()

	dlqGC := queue.NewGarbageCollector(jobQueue, cfg.DLQGCInterval, cfg.DLQRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", cfg.DLQGCInterval),
		zap.Duration("retention", cfg.DLQRetention),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("consume_failed", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}
				if err := processor.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("job_processing_failed",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	select {
	case <-sigChan:
		zapLogger.Info("shutdown_signal_received")
	case <-done:
		zapLogger.Warn("consumer_stopped")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("health_server_shutdown_failed", zap.Error(err))
	}

	zapLogger.Info("worker_stopped")
}
