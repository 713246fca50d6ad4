package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benvon/nextstep/internal/config"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/handlers"
	"github.com/benvon/nextstep/internal/logger"
	"github.com/benvon/nextstep/internal/middleware"
	"github.com/benvon/nextstep/internal/services/ai"
	"github.com/benvon/nextstep/internal/services/calendar"
	"github.com/benvon/nextstep/internal/services/goals"
	"github.com/benvon/nextstep/internal/services/session"
	"github.com/benvon/nextstep/internal/services/tts"
	"github.com/benvon/nextstep/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("calendar_enabled", cfg.CalendarEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.Options{
			Endpoint: cfg.OTELEndpoint,
			Insecure: cfg.OTELInsecure,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	healthChecker := handlers.NewHealthChecker()

	// Storage
	var (
		goalStore  database.GoalStore
		tokenStore database.CalendarTokenStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		goalStore = database.NewMemoryGoalStore()
		tokenStore = database.NewMemoryCalendarTokenStore()
		zapLogger.Warn("using_memory_store_data_is_not_persisted")
	default:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(migrateCtx)
		migrateCancel()
		if err != nil {
			zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
		}
		zapLogger.Info("connected_to_database")

		goalStore = database.NewGoalRepository(db)
		tokenStore = database.NewCalendarTokenRepository(db)
		healthChecker.AddCheck("database", handlers.DatabaseCheck(db))
	}

	// Redis backs the goal cache and shared rate-limit counters when configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")

		goalStore = database.NewCachedGoalStore(goalStore, redisClient, cfg.GoalsCacheTTL, zapLogger)
		healthChecker.AddCheck("redis", handlers.RedisCheck(redisClient))
	}

	// Calendar
	var (
		bridge      calendar.Bridge = calendar.NoopBridge{}
		calendarCfg = handlers.CalendarHandlerConfig{
			Tokens:       tokenStore,
			FrontendURL:  cfg.FrontendURL,
			SecureCookie: cfg.EnableHSTS,
			Logger:       zapLogger,
		}
	)
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		calendarCfg.FrontendURL = origins[0]
	}
	if cfg.CalendarEnabled() {
		oauthCfg := calendar.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
		tokenSource := calendar.NewOAuthTokenSource(oauthCfg, tokenStore, zapLogger)
		bridge = calendar.NewGoogleBridge(cfg.CalendarAPIBaseURL, tokenSource, cfg.CalendarSyncTimeout, zapLogger)
		calendarCfg.Connector = calendar.NewConnector(oauthCfg, tokenStore)
		calendarCfg.Syncer = calendar.NewSyncer(goalStore, bridge)
	} else {
		zapLogger.Info("calendar_sync_disabled")
	}

	goalService := goals.NewService(goalStore, bridge, zapLogger, cfg.CalendarSyncTimeout)

	var planGenerator ai.PlanGenerator = ai.DisabledGenerator{}
	if cfg.OpenAIKey != "" {
		planGenerator = ai.NewOpenAIProviderWithLogger(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, zapLogger, debugMode)
	} else {
		zapLogger.Info("plan_generation_disabled")
	}

	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)

	calendarHandler := handlers.NewCalendarHandler(calendarCfg)
	goalHandler := handlers.NewGoalHandler(goalService, zapLogger, handlers.WithCalendarStatus(calendarHandler.Connected))
	planHandler := handlers.NewPlanHandler(planGenerator, zapLogger)
	speechHandler := handlers.NewSpeechHandler(
		tts.NewClient(cfg.ElevenLabsKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel),
		zapLogger,
	)

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	authMW := middleware.Auth(sessions, cfg.SessionCookie, zapLogger)

	r := mux.NewRouter()

	// Middleware runs in registration order, the first registered is outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml")).RegisterRoutes(r)

	// Authenticated API. Auth runs before the limiter so limits are keyed per owner.
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)
	apiRouter.Use(rateLimitMW)

	goalHandler.RegisterRoutes(apiRouter.PathPrefix("/goals").Subrouter())
	calendarHandler.RegisterRoutes(apiRouter.PathPrefix("/calendar").Subrouter())
	planHandler.RegisterRoutes(apiRouter)
	speechHandler.RegisterRoutes(apiRouter)

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        middleware.CORS(cfg.AllowedOrigins())(r),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	// Let in-flight calendar syncs finish before closing the stores
	goalService.Wait()
	zapLogger.Info("server_exited")
}
