package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/insanelabs/witchcraft/internal/accounts"
	"github.com/insanelabs/witchcraft/internal/alerts"
	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
	"github.com/insanelabs/witchcraft/internal/config"
	"github.com/insanelabs/witchcraft/internal/database"
	"github.com/insanelabs/witchcraft/internal/middleware"
	inats "github.com/insanelabs/witchcraft/internal/nats"
	"github.com/insanelabs/witchcraft/internal/notifications"
	"github.com/insanelabs/witchcraft/internal/quota"
	iredis "github.com/insanelabs/witchcraft/internal/redis"
	"github.com/insanelabs/witchcraft/internal/rollover"
	"github.com/insanelabs/witchcraft/internal/server"
	"github.com/insanelabs/witchcraft/internal/sessions"
	"github.com/insanelabs/witchcraft/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to nats", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	// Auth
	tokenValidator := auth.NewTokenValidator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	apiKeys := auth.NewAPIKeyStore(pool)

	// Quota gate and alerts
	quotaRepo := quota.NewRepository(pool)
	alertRepo := alerts.NewRepository(pool)
	alertMonitor := alerts.NewMonitor(alertRepo, publisher, logger)
	quotaLimiter := quota.NewRateLimiter(redisClient, cfg.Quota.MaxRequestsPerMinute)
	quotaSvc := quota.NewService(pool, quotaRepo, quotaLimiter, alertMonitor)
	quotaHandler := quota.NewHandler(quotaSvc)
	alertHandler := alerts.NewHandler(alertRepo)

	// Accounts
	accountRepo := accounts.NewRepository(pool)
	accountSvc := accounts.NewService(accountRepo, quotaRepo, cfg.Quota.DefaultTier, logger)
	accountHandler := accounts.NewHandler(accountSvc, apiKeys)

	// Sessions and usage metering
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo)
	usageRepo := usage.NewRepository(pool)
	usageSvc := usage.NewService(pool, usageRepo, sessionRepo, publisher, logger)
	usageHandler := usage.NewHandler(usageSvc)

	// Period rollover
	rolloverSvc := rollover.NewService(pool, logger)
	rolloverHandler := rollover.NewHandler(rolloverSvc)
	rolloverSched := rollover.NewScheduler(rolloverSvc, cfg.Rollover.Schedule, logger)
	if err := rolloverSched.Start(ctx); err != nil {
		slog.Error("starting rollover scheduler", "error", err)
		os.Exit(1)
	}
	defer rolloverSched.Stop()

	// Alert notification dispatcher
	dispatcher := notifications.NewDispatcher(
		notifications.NewLogNotifier(logger), consumerMgr, logger)
	go func() {
		if err := dispatcher.Start(ctx); err != nil {
			slog.Error("notification dispatcher stopped", "error", err)
		}
	}()

	// Router
	apiLimiter := middleware.NewRateLimiter(redisClient,
		cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		APIRateLimiter:     apiLimiter.Middleware,
	}, api.HandlerSet{
		ConsumeQuota: quotaHandler.Consume,
		GetQuota:     quotaHandler.GetQuota,

		RecordUsage:  usageHandler.Record,
		UsageSummary: usageHandler.Summary,
		UsageDaily:   usageHandler.Daily,

		ListAlerts:    alertHandler.List,
		UnreadAlerts:  alertHandler.UnreadCount,
		MarkAlertRead: alertHandler.MarkRead,
		DismissAlert:  alertHandler.Dismiss,

		CreateSession: sessionHandler.Create,
		ListSessions:  sessionHandler.List,
		GetSession:    sessionHandler.Get,
		EndSession:    sessionHandler.End,
		AppendMessage: sessionHandler.AppendMessage,
		ListMessages:  sessionHandler.ListMessages,

		GetAccount:  accountHandler.Me,
		IssueAPIKey: accountHandler.IssueKey,

		EnsureAccount: accountHandler.Ensure,
		RunRollover:   rolloverHandler.Run,

		AuthMiddleware:  auth.Middleware(tokenValidator, apiKeys),
		AdminMiddleware: auth.AdminMiddleware(cfg.Admin.APIKey),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
