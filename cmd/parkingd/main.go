package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"parking-access-backend/config"
	"parking-access-backend/internal/api"
	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/db"
	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/parking"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/pricing"
	"parking-access-backend/internal/settlement"
	"parking-access-backend/internal/store"
	"parking-access-backend/internal/ticket"
)

func main() {
	logger := log.New(os.Stdout, "parkingd ", log.LstdFlags)

	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	flags := pflag.NewFlagSet("parkingd", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to the YAML configuration file (default $CONFIG_PATH or ./config/config.yaml)")
	flags.Parse(os.Args[1:])

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath == "" {
		*configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", *configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	clk := clock.Real()

	gateway, err := payment.New(&cfg.Payment)
	if err != nil {
		logger.Fatalf("failed to initialize payment provider: %v", err)
	}
	logger.Printf("payment provider %q ready", cfg.Payment.Provider)

	slots := parking.NewAllocator(appStore)
	contracts := ledger.New(appStore)
	prices := pricing.NewService(appStore)

	var seasonOpts []ticket.SeasonFlowOption
	if cfg.Notification.Enabled {
		if cfg.Notification.SendGridAPIKey == "" || cfg.Notification.FromEmail == "" {
			logger.Fatalf("notification is enabled but sendgrid_api_key or from_email is not configured")
		}
		pool := notification.NewWorkerPool(&cfg.Notification, appStore)
		pool.Start(ctx)
		seasonOpts = append(seasonOpts, ticket.WithReceipts(pool))
		logger.Printf("receipt workers started (%d)", cfg.Notification.WorkerPoolSize)
	}

	season := ticket.NewSeasonFlow(appStore, slots, contracts, prices, gateway, clk, seasonOpts...)
	occasional := ticket.NewOccasionalFlow(appStore, slots, prices, gateway, clk,
		ticket.WithGracePeriod(cfg.Occasional.GracePeriod))

	var stopSettlement func()
	if cfg.Settlement.Enabled {
		job := settlement.NewJob(contracts, clk, cfg.Settlement.BatchSize)
		scheduler, err := job.Schedule(ctx, cfg.Settlement.Schedule)
		if err != nil {
			logger.Fatalf("failed to schedule settlement: %v", err)
		}
		scheduler.Start()
		stopSettlement = func() { <-scheduler.Stop().Done() }
		logger.Printf("settlement scheduled %q", cfg.Settlement.Schedule)
	}

	handler := api.NewHandler(season, occasional, slots, contracts, appStore, clk)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	if stopSettlement != nil {
		stopSettlement()
	}
	cancel()

	logger.Println("Server gracefully stopped")
}
