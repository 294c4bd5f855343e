package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/snaplist-app/snaplist/internal/api"
	"github.com/snaplist-app/snaplist/internal/auth"
	"github.com/snaplist-app/snaplist/internal/billing"
	"github.com/snaplist-app/snaplist/internal/config"
	"github.com/snaplist-app/snaplist/internal/database"
	"github.com/snaplist-app/snaplist/internal/generation"
	"github.com/snaplist-app/snaplist/internal/governance"
	"github.com/snaplist-app/snaplist/internal/listings"
	mw "github.com/snaplist-app/snaplist/internal/middleware"
	inats "github.com/snaplist-app/snaplist/internal/nats"
	"github.com/snaplist-app/snaplist/internal/quota"
	"github.com/snaplist-app/snaplist/internal/ratelimit"
	iredis "github.com/snaplist-app/snaplist/internal/redis"
	"github.com/snaplist-app/snaplist/internal/server"
	"github.com/snaplist-app/snaplist/internal/usage"
	"github.com/snaplist-app/snaplist/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations
	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
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

	// NATS (optional)
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Metering core
	counterStore := ratelimit.NewPostgresStore(pool)
	limiter := ratelimit.NewLimiter(counterStore)
	quotaRepo := quota.NewRepository(pool)
	quotaSvc := quota.NewService(quotaRepo, cfg.Limits)
	anonLimiter := quota.NewAnonymousLimiter(limiter, cfg.Limits.AnonymousDailyLimit)
	govSvc := governance.NewService(limiter, anonLimiter, quotaSvc, cfg.Limits)
	govHandler := governance.NewHandler(govSvc)

	// Expired counter rows accumulate one per window; prune hourly.
	go pruneCounters(ctx, counterStore)

	// Billing
	paymentRepo := billing.NewRepository(pool)
	pricing := billing.Pricing{CreditsPerDollar: cfg.Billing.CreditsPerDollar}
	reconciler := billing.NewReconciler(paymentRepo, pricing)
	billingHandler := billing.NewHandler(paymentRepo, reconciler, cfg.Billing.WebhookSecret)

	// Listings
	listingRepo := listings.NewRepository(pool)
	listingSvc := listings.NewService(listingRepo)
	listingHandler := listings.NewHandler(listingSvc)

	// Generation
	generator := generation.NewStubGenerator()
	generationHandler := generation.NewHandler(govSvc, generator, listingSvc, publisher)

	// Usage log
	usageRepo := usage.NewRepository(pool)
	usageHandler := usage.NewHandler(usageRepo)
	if natsClient != nil {
		consumerMgr := inats.NewConsumerManager(natsClient.JetStream())
		usageConsumer := usage.NewConsumer(usageRepo, consumerMgr)
		go func() {
			if err := usageConsumer.Start(ctx); err != nil {
				slog.Error("usage consumer stopped", "error", err)
			}
		}()
	}

	// Burst protection on the auth surface
	authBurst := mw.NewBurstLimiter(redisClient, "auth", cfg.Limits.AuthBurstMax, cfg.Limits.AuthBurstWindowSec)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthBurstLimiter:   authBurst.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		CreateListing:       listingHandler.Create,
		ListListings:        listingHandler.List,
		GetListing:          listingHandler.Get,
		UpdateListing:       listingHandler.Update,
		DeleteListing:       listingHandler.Delete,
		OwnershipMiddleware: listingHandler.OwnershipMiddleware,

		AddFeedback:  listingHandler.AddFeedback,
		ListFeedback: listingHandler.ListFeedback,

		Generate: generationHandler.Generate,

		GetUserQuota: govHandler.GetQuota,
		ListUsage:    usageHandler.List,

		PaymentWebhook: billingHandler.Webhook,
		Reconcile:      billingHandler.Reconcile,
		ReconcileAll:   billingHandler.ReconcileAll,
		SetPlan:        govHandler.SetPlan,

		AuthMiddleware:         auth.Middleware(authSvc),
		OptionalAuthMiddleware: auth.OptionalMiddleware(authSvc),
		OperatorMiddleware:     billingHandler.OperatorMiddleware,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// pruneCounters deletes rate-limit counter rows whose window closed more
// than a day ago.
func pruneCounters(ctx context.Context, store *ratelimit.PostgresStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.PruneBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
			if err != nil {
				slog.Warn("pruning rate limit counters", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Debug("pruned rate limit counters", "deleted", deleted)
			}
		}
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
