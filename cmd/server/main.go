package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/cache"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/handlers"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/middleware"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/ratelimit"
	"github.com/taskdeck/taskdeck-api/internal/services/session"
	"github.com/taskdeck/taskdeck-api/internal/telemetry"
	"github.com/taskdeck/taskdeck-api/internal/workers"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/gorilla/mux"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag
	cfg.ServerDebugMode = debugMode

	zapLogger, ring, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// OpenTelemetry is best-effort; a broken exporter must not block startup.
	tp, err := telemetry.Init(context.Background(), cfg, "taskdeck-api")
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
	} else if tp != nil {
		zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
				zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
			}
		}()
	}

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

	// One Redis client shared by the cache and both rate limiters. Redis
	// being down degrades the service (cache misses, limits fail open) but
	// never stops it, so a failed ping is not fatal.
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
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		zapLogger.Warn("redis_unreachable_at_startup_continuing_degraded", zap.Error(err))
	} else {
		zapLogger.Info("connected_to_redis")
	}
	pingCancel()

	// The event bus is optional: without it the API still serves requests,
	// it just stops emitting lifecycle events.
	var eventBus queue.EventQueue
	if cfg.RabbitMQURL != "" {
		bus, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
		if err != nil {
			zapLogger.Warn("failed_to_connect_to_rabbitmq_events_disabled", zap.Error(err))
		} else {
			eventBus = bus
			zapLogger.Info("connected_to_rabbitmq")
			defer func() {
				if err := bus.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
		}
	}

	taskRepo := database.NewTaskRepository(db)
	userRepo := database.NewUserRepository(db)
	archiveRepo := database.NewArchiveRepository(db)

	taskCache := cache.New(redisClient, zapLogger)
	limiter := ratelimit.NewService(redisClient, zapLogger)

	jwksManager := session.NewJWKSManager()
	verifier := session.NewVerifier(jwksManager, cfg.IdentityIssuer, cfg.IdentityJWKSURL)
	oauthClient := session.NewClient(cfg)

	taskHandlerOpts := []handlers.TaskHandlerOption{}
	if eventBus != nil {
		taskHandlerOpts = append(taskHandlerOpts, handlers.WithTaskEvents(eventBus))
	}
	taskHandler := handlers.NewTaskHandler(taskRepo, taskCache, zapLogger, taskHandlerOpts...)
	authHandler := handlers.NewAuthHandler(oauthClient, cfg, zapLogger)
	adminHandler := handlers.NewAdminHandler(archiveRepo, ring, cfg, zapLogger,
		handlers.WithSweepCacheInvalidation(taskCache))

	healthChecks := map[string]handlers.DependencyChecker{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
		"cache":    taskCache.Ping,
	}
	if eventBus != nil {
		healthChecks["queue"] = eventBus.HealthCheck
	}
	healthHandler := handlers.NewHealthHandler(zapLogger, healthChecks)

	r := mux.NewRouter()

	zapLogger.Info("setting_up_middleware")

	if cfg.OTELEnabled && tp != nil {
		r.Use(otelmux.Middleware("taskdeck-api"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.Origins(), zapLogger))

	// Coarse per-IP perimeter limit in front of the per-identity limits.
	perimeterStore, err := middleware.NewPerimeterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_perimeter_store", zap.Error(err))
	}
	perimeter, err := middleware.PerimeterRateLimit(perimeterStore, "300-M", cfg.TrustProxyHeaders)
	if err != nil {
		zapLogger.Fatal("failed_to_create_perimeter_rate_limiter", zap.Error(err))
	}
	r.Use(perimeter)

	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.Recover(zapLogger))
	r.Use(middleware.Audit(zapLogger, cfg.TrustProxyHeaders))
	r.Use(middleware.Logging(zapLogger, cfg.TrustProxyHeaders))

	// Public routes.
	healthHandler.RegisterRoutes(r)

	authMW := middleware.Auth(cfg, userRepo, verifier, zapLogger)

	// Auth routes use the strictest rate class with the client IP as the
	// identity since no session exists yet.
	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.Use(middleware.RateLimitAuth(limiter, cfg.TrustProxyHeaders, zapLogger))
	authHandler.RegisterRoutes(authRouter)

	protectedAuthRouter := r.PathPrefix("/api/auth").Subrouter()
	protectedAuthRouter.Use(authMW)
	protectedAuthRouter.Use(middleware.RateLimit(limiter, cfg.TrustProxyHeaders, zapLogger))
	authHandler.RegisterProtectedRoutes(protectedAuthRouter)

	// Task routes run the full pipeline: auth, rate limit, then handler.
	tasksRouter := r.PathPrefix("/api/tasks").Subrouter()
	tasksRouter.Use(authMW)
	tasksRouter.Use(middleware.RateLimit(limiter, cfg.TrustProxyHeaders, zapLogger))
	taskHandler.RegisterRoutes(tasksRouter)

	// Admin routes carry their own service-token gate.
	adminRouter := r.PathPrefix("/api/admin").Subrouter()
	adminHandler.RegisterRoutes(adminRouter)

	// Catch-all OPTIONS so preflight succeeds on every route; CORS headers
	// are already set by the middleware.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	archiver := workers.NewArchiver(archiveRepo, cfg.ArchiveInterval, time.Duration(cfg.ArchiveAfterDays)*24*time.Hour, zapLogger,
		workers.WithCacheInvalidation(taskCache))
	go archiver.Start(bgCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
