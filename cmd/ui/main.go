package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/dashboard"
	"trading-agent-ledger/internal/database"
	"trading-agent-ledger/internal/ledger"
	"trading-agent-ledger/internal/logger"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/trace"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := trace.Init(cfg.Tracing.Enabled, "dashboard"); err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Connect to the database. Reads degrade to empty payloads when it is missing.
	var store ledger.Store
	if cfg.Database.DSN == "" {
		store = ledger.NewUnconfiguredStore(log)
	} else {
		db, err := database.NewDatabase(cfg.Database.DSN)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		store = ledger.NewGormStore(db)
	}

	svc := dashboard.NewService(store, market.NewClient(&cfg.Market, log), cfg.Dashboard, log).
		WithDustThreshold(decimal.NewFromFloat(cfg.Trading.DustThreshold))
	apiHandler := NewAPIHandler(log, svc, cfg.Account.ID)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           apiHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting web server", zap.String("address", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
	_ = trace.Shutdown(ctx)
}
