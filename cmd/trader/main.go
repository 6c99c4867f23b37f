package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-agent-ledger/internal/agent"
	"trading-agent-ledger/internal/chain"
	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/database"
	"trading-agent-ledger/internal/events"
	"trading-agent-ledger/internal/ledger"
	"trading-agent-ledger/internal/logger"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/trace"
	"trading-agent-ledger/internal/trader"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("account_id", cfg.Account.ID), zap.Bool("dry_run", cfg.Trading.DryRun))

	if cfg.Account.ID == "" {
		log.Fatal("account.id is required")
	}

	if err := trace.Init(cfg.Tracing.Enabled, "trader"); err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	store := openStore(ctx, cfg, log)

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NatsURL != "" {
		nats, err := events.NewNATSPublisher(cfg.Events.NatsURL, cfg.Events.Subject, log)
		if err != nil {
			log.Warn("Trade events disabled, could not connect to NATS", zap.Error(err))
		} else {
			publisher = nats
		}
	}
	defer publisher.Close()

	var decider agent.Agent
	if cfg.Agent.URL == "" {
		log.Warn("No agent url configured, every cycle will hold")
		decider = agent.NewNop(log)
	} else if decider, err = agent.NewHTTPAgent(&cfg.Agent, log); err != nil {
		log.Fatal("Failed to create agent client", zap.Error(err))
	}

	var chainClient chain.Client = chain.NewRPCClient(&cfg.Chain, log)
	if cfg.Trading.DryRun {
		log.Warn("Dry run enabled. No real trade will be executed.")
		chainClient = chain.NewDryRun(chainClient, log)
	}

	book := ledger.NewLedger(store, publisher, log).
		WithDustThreshold(decimal.NewFromFloat(cfg.Trading.DustThreshold))

	tradeEngine := trader.NewEngine(log, &cfg, trader.Deps{
		Ledger:   book,
		Recorder: ledger.NewRecorder(store, log),
		Agent:    decider,
		Chain:    chainClient,
		Prices:   market.NewClient(&cfg.Market, log),
	})

	api := trader.NewAPIServer(tradeEngine, cfg.API.Port, cfg.API.CronSecret, log)
	if !cfg.Trading.RunOnce {
		api.Start()
	}

	tradeEngine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if !cfg.Trading.RunOnce {
		if err := api.Stop(shutdownCtx); err != nil {
			log.Error("API server shutdown failed", zap.Error(err))
		}
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Error("Trace shutdown failed", zap.Error(err))
	}

	log.Info("Trader has been shut down.")
}

// openStore connects the ledger database. Without a DSN the trader runs unpersisted.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) ledger.Store {
	if cfg.Database.DSN == "" {
		return ledger.NewUnconfiguredStore(log)
	}

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal("Failed to create ledger schema", zap.Error(&ledger.SchemaError{Err: err}))
	}
	log.Info("Database connection successful and schema ensured.")
	return ledger.NewGormStore(db)
}
