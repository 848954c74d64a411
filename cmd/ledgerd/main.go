// Package main is the entry point for the credit ledger server.
// Note: User identity, OAuth, and sessions are handled by the external
// auth provider; signups arrive over its webhook.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/stripe/stripe-go/v78"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/database"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/handlers"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/mw"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/routes"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/logging"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/version"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/worker"
)

func main() {
	// Initialize logger with TTY detection and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting ledgerd",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	schemaVersion, err := database.SchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		count, _ := database.MigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", count)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Attach the Stripe payment client for auto-renewal charges. Without
	// a key, renewal threshold checks become no-ops but the rest of the
	// ledger still works (useful for local runs).
	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
		services.Renewal.SetPaymentClient(service.NewStripePaymentClient())
		logger.Info("stripe payment client enabled")
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set - auto-renewal charges disabled")
	}

	// Background passes: referral qualification, renewal sweeps,
	// automation bonuses, bucket compaction.
	bgWorker := worker.New(services, worker.Config{
		ReferralQualifyInterval: cfg.ReferralQualifyInterval,
		RenewalCheckInterval:    cfg.RenewalCheckInterval,
		BonusGrantInterval:      cfg.BonusGrantInterval,
		CompactionInterval:      cfg.CompactionInterval,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	bgWorker.Start(ctx)

	// Create router
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Rate limit by IP; webhook endpoints share the budget, which Stripe
	// and Svix retry schedules stay well under.
	router.Use(httprate.LimitByIP(100, time.Minute))

	humaConfig := huma.DefaultConfig("Prompt Marketplace Credits API", version.Get().Short())
	humaConfig.Info.Description = "Credit ledger for the prompt marketplace: bucketed balances, metered burns, bonuses, referrals, and auto-renewal."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "JWT issued by the auth provider. Include it as `Bearer <token>`.",
		},
	}

	api := humachi.New(router, humaConfig)
	api.UseMiddleware(mw.HumaAuth(api, cfg.JWTSecret))

	h := handlers.NewHandlers(services, logger)
	routes.Register(api, h)

	// Webhooks verify their own signatures; they bypass bearer auth.
	if cfg.StripeWebhookSecret != "" {
		stripeWebhook := handlers.NewStripeWebhookHandler(cfg, services.Ledger, services.Renewal, logger)
		router.Post("/api/v1/webhooks/stripe", stripeWebhook.HandleWebhook)
		logger.Info("stripe webhook endpoint enabled")
	}
	if cfg.SignupWebhookSecret != "" {
		signupWebhook := handlers.NewSignupWebhookHandler(cfg, services.Referral, logger)
		router.Post("/api/v1/webhooks/signup", signupWebhook.HandleWebhook)
		logger.Info("signup webhook endpoint enabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	bgWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("stopped")
}
