package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	httpapi "rentcar-backend/internal/api/http"
	"rentcar-backend/internal/cache"
	"rentcar-backend/internal/config"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/payment"
	"rentcar-backend/internal/pricing"
	"rentcar-backend/internal/repository/postgres"
	"rentcar-backend/internal/security"
	"rentcar-backend/internal/service"
)

const bookingLockTTL = 30 * time.Second

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Rentcar Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	logger.Info("Payment configuration", "provider", cfg.Payment.Provider, "currency", cfg.Payment.Currency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)

	// Initialize Redis
	rdb, err := cache.NewClient(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()
	logger.Info("Redis connection established", "addr", cfg.Redis.Addr)

	draftTTL := time.Duration(cfg.Session.DraftTTLMinutes) * time.Minute
	drafts := cache.NewDraftStore(rdb, draftTTL)
	locker := cache.NewLocker(rdb, bookingLockTTL)
	responses := cache.NewResponseStore(rdb)

	// Initialize Payment Provider
	provider, err := payment.NewProvider(payment.Config{
		Provider:      cfg.Payment.Provider,
		SecretKey:     cfg.Payment.SecretKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		AutoSucceed:   cfg.Payment.AutoSucceed,
	})
	if err != nil {
		logger.Error("Failed to initialize payment provider", "error", err)
		log.Fatalf("Failed to initialize payment provider: %v", err)
	}

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.Session.Secret, draftTTL)

	catalog := service.Catalog{
		Engine:    pricing.NewEngine(cfg.PricingPolicy()),
		Insurance: cfg.InsuranceCatalog(),
		Extras:    cfg.ExtrasCatalog(),
		Currency:  cfg.Payment.Currency,
	}

	// Initialize Services
	docSvc := service.NewDocumentService()
	emailSvc := service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	bookingSvc := service.NewBookingService(store.BookingRepository, store.VehicleRepository, catalog)
	paymentSvc := service.NewPaymentService(
		store.BookingRepository,
		store.PaymentIntentRepository,
		store.VehicleRepository,
		provider,
		locker,
		docSvc,
		emailSvc,
		catalog,
	)
	checkoutSvc := service.NewCheckoutService(
		drafts,
		tokenManager,
		store.VehicleRepository,
		bookingSvc,
		paymentSvc,
		catalog,
	)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Checkout:    checkoutSvc,
		Bookings:    bookingSvc,
		Payments:    paymentSvc,
		Tokens:      tokenManager,
		Idempotency: responses,
		HealthChecks: map[string]httpapi.HealthCheck{
			"postgres": store.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped. Goodbye!")
}
