package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/estateflow/internal/api"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/billing"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/database"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/documents"
	"github.com/hugh/estateflow/internal/email"
	"github.com/hugh/estateflow/internal/metrics"
	"github.com/hugh/estateflow/internal/migration"
	"github.com/hugh/estateflow/internal/organization"
	"github.com/hugh/estateflow/internal/signature"
	"github.com/hugh/estateflow/internal/storage"
	"github.com/hugh/estateflow/internal/tasks"
	"github.com/hugh/estateflow/pkg/config"
	"github.com/hugh/estateflow/pkg/queue"
	"github.com/hugh/estateflow/pkg/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting EstateFlow server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("failed to get database handle", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(sqlDB); err != nil {
			logger.Error("failed to apply schema migrations", "error", err)
			os.Exit(1)
		}
	}
	applied, err := migration.NewRunner(db, logger, migration.Default()...).Run(ctx)
	if err != nil {
		logger.Error("failed to apply data migrations", "error", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("data migrations applied", "names", applied)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to Redis, using in-memory rate limits", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	templates, err := email.LoadTemplates()
	if err != nil {
		logger.Error("failed to load email templates", "error", err)
		os.Exit(1)
	}
	sender, err := email.NewSender(ctx, &cfg.Email, logger)
	if err != nil {
		logger.Error("failed to create email sender", "error", err)
		os.Exit(1)
	}
	var transport email.Transport = email.Direct{Sender: sender, Metrics: appMetrics}
	if cfg.Email.Async {
		if asynqClient == nil {
			logger.Warn("EMAIL_ASYNC set but Redis is unavailable, sending inline")
		} else {
			transport = tasks.NewEmailQueue(asynqClient)
		}
	}
	notifier := email.NewNotifier(templates, transport, logger)

	store, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to create document store", "error", err)
		os.Exit(1)
	}

	var provider billing.Provider
	if cfg.Billing.SecretKey != "" {
		provider = billing.NewStripeClient(&cfg.Billing, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, billing is disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, notifier, auth.ServiceOptions{
		FrontendURL:     cfg.App.FrontendURL,
		MagicLinkExpiry: cfg.App.MagicLinkExpiry(),
		Logger:          logger,
	})
	dealService := deals.NewService(db, notifier, store, deals.ServiceOptions{
		FrontendURL:    cfg.App.FrontendURL,
		TrialDealLimit: cfg.App.TrialDealLimit,
		Logger:         logger,
	})
	documentService := documents.NewService(db, dealService, store, signature.New(&cfg.Signature), notifier, documents.ServiceOptions{
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Logger:         logger,
	})
	seats := billing.NewSeatReconciler(db, provider, billing.SeatOptions{
		SeatPriceID: cfg.Billing.SeatPriceID,
		Enabled:     cfg.Billing.Enabled(),
		Logger:      logger,
		Metrics:     appMetrics,
	})
	orgService := organization.NewService(db, seats, authService, notifier, organization.ServiceOptions{
		FrontendURL:      cfg.App.FrontendURL,
		InvitationExpiry: cfg.App.InvitationExpiry(),
		Logger:           logger,
	})
	billingService := billing.NewService(db, provider, cfg.Billing, billing.ServiceOptions{
		FrontendURL: cfg.App.FrontendURL,
		Logger:      logger,
		Metrics:     appMetrics,
	})

	apiWindow := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	authWindow := time.Duration(cfg.RateLimit.AuthWindowSeconds) * time.Second
	apiMemory := middleware.NewSlidingWindow(cfg.RateLimit.Requests, apiWindow)
	authMemory := middleware.NewSlidingWindow(cfg.RateLimit.AuthRequests, authWindow)
	go apiMemory.Run(ctx, time.Minute)
	go authMemory.Run(ctx, time.Minute)

	var apiLimiter, authLimiter middleware.Limiter = apiMemory, authMemory
	if redisClient != nil {
		apiLimiter = middleware.NewFallback(
			middleware.NewRedisBucket(redisClient, "ratelimit:api:", cfg.RateLimit.Requests, apiWindow),
			apiMemory, logger)
		authLimiter = middleware.NewFallback(
			middleware.NewRedisBucket(redisClient, "ratelimit:auth:", cfg.RateLimit.AuthRequests, authWindow),
			authMemory, logger)
	}

	router := api.NewRouter(api.RouterConfig{
		DB:            db,
		Redis:         redisClient,
		Logger:        logger,
		Metrics:       appMetrics,
		Gatherer:      registry,
		JWTService:    jwtService,
		AuthService:   authService,
		Deals:         dealService,
		Documents:     documentService,
		Organizations: orgService,
		Dashboard:     dashboard.NewService(db, nil),
		Billing:       billingService,

		AllowedOrigins: []string{cfg.App.FrontendURL},
		APILimiter:     apiLimiter,
		AuthLimiter:    authLimiter,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	sqlDB.Close()

	logger.Info("server stopped")
}
