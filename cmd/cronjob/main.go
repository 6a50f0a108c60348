package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"rentcar-backend/internal/cache"
	"rentcar-backend/internal/config"
	"rentcar-backend/internal/jobs"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/payment"
	"rentcar-backend/internal/pricing"
	"rentcar-backend/internal/repository/postgres"
	"rentcar-backend/internal/scheduler"
	"rentcar-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'release-stale-pending-bookings', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Rentcar Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)

	// The release job shares the per-booking lock with payment confirmation
	rdb, err := cache.NewClient(context.Background(), cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

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

	catalog := service.Catalog{
		Engine:    pricing.NewEngine(cfg.PricingPolicy()),
		Insurance: cfg.InsuranceCatalog(),
		Extras:    cfg.ExtrasCatalog(),
		Currency:  cfg.Payment.Currency,
	}

	// Initialize Services
	paymentService := service.NewPaymentService(
		store.BookingRepository,
		store.PaymentIntentRepository,
		store.VehicleRepository,
		provider,
		cache.NewLocker(rdb, 30*time.Second),
		service.NewDocumentService(),
		service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName),
		catalog,
	)

	jobServices := &jobs.Services{
		Payment: paymentService,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "release-stale-pending-bookings":
		jobRunner.ReleaseStalePendingBookings()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - release-stale-pending-bookings\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
