package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-agent-ledger/internal/agent"
	"trading-agent-ledger/internal/chain"
	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/ledger"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/metrics"
	"trading-agent-ledger/internal/portfolio"
	"trading-agent-ledger/internal/trace"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTickInterval = 15 * time.Minute
	bookkeepingTimeout  = time.Minute
)

// ErrCycleInProgress is returned when a cycle is requested while another one runs.
var ErrCycleInProgress = errors.New("trading cycle already in progress")

// Deps are the collaborators a trading cycle needs.
type Deps struct {
	Ledger   *ledger.Ledger
	Recorder *ledger.Recorder
	Agent    agent.Agent
	Chain    chain.Client
	Prices   market.PriceSource
}

// CycleResult summarizes one completed trading cycle.
type CycleResult struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	TradeID    uint      `json:"trade_id,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	SnapshotID uint      `json:"snapshot_id,omitempty"`
	TotalUSD   float64   `json:"total_usd"`
}

// Engine runs the agent-driven trading cycle for one account.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger   *zap.Logger
	cfg      *config.Config
	ledger   *ledger.Ledger
	recorder *ledger.Recorder
	agent    agent.Agent
	chain    chain.Client
	prices   market.PriceSource
	wait     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	stateMu sync.RWMutex
	last    *CycleResult
	lastErr error
	cycles  int
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		UUID:      uuid.NewString(),
		Name:      "trading-agent",
		StartTime: time.Now().UTC(),
		logger:    logger.Named("engine"),
		cfg:       cfg,
		ledger:    deps.Ledger,
		recorder:  deps.Recorder,
		agent:     deps.Agent,
		chain:     deps.Chain,
		prices:    deps.Prices,
		wait:      sleepCtx,
	}
}

// Run starts the trading engine's main loop.
func (e *Engine) Run(ctx context.Context) {
	if e.cfg.Trading.RunOnce {
		e.logger.Info("Running a single trading cycle")
		if _, err := e.RunCycle(ctx); err != nil {
			e.logger.Error("Trading cycle failed", zap.Error(err))
		}
		return
	}

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			if _, err := e.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
				e.logger.Error("Trading cycle failed", zap.Error(err))
			}
		}
	}
}

// cycleContext is everything the agent sees for one decision.
type cycleContext struct {
	valuation portfolio.Valuation
	overview  string
	prompt    string
}

// RunCycle performs one decide, execute, record pass. A failure to record an
// executed trade fails the cycle; a failed snapshot write does not.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.mu.Unlock()

	result := &CycleResult{CycleID: uuid.NewString(), StartedAt: time.Now().UTC()}
	accountID := e.cfg.Account.ID
	l := e.logger.With(zap.String("cycle_id", result.CycleID), zap.String("account_id", accountID))

	ctx, span := trace.StartSpan(ctx, "trading-cycle")
	defer span.End()

	start := time.Now()
	err := e.runCycle(ctx, l, accountID, result)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	e.stateMu.Lock()
	e.cycles++
	e.lastErr = err
	if err == nil {
		e.last = result
	}
	e.stateMu.Unlock()

	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		return nil, err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	l.Info("Trading cycle complete",
		zap.Float64("total_usd", result.TotalUSD),
		zap.Uint("trade_id", result.TradeID),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

func (e *Engine) runCycle(ctx context.Context, l *zap.Logger, accountID string, result *CycleResult) error {
	l.Info("Starting trading cycle")

	before, err := e.buildContext(ctx, l, accountID)
	if err != nil {
		return err
	}
	previousTotal := before.valuation.TotalUSD

	decision, err := e.agent.Decide(ctx, agent.Request{AccountID: accountID, Prompt: before.prompt})
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("agent").Inc()
		return fmt.Errorf("agent decision: %w", err)
	}

	if decision.Quote == nil {
		l.Info("No trade this cycle")
		result.TotalUSD = previousTotal
		result.SnapshotID = e.snapshot(ctx, accountID, before, previousTotal, decision.Content)
		return nil
	}

	if _, err := ledger.TradeFromQuote(*decision.Quote); err != nil {
		return fmt.Errorf("rejecting quote: %w", err)
	}

	receipt, err := e.chain.Transfer(ctx, *decision.Quote)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("chain").Inc()
		return fmt.Errorf("execute quote: %w", err)
	}
	result.TxHash = receipt.TxHash
	l.Info("Swap submitted",
		zap.String("tx_hash", receipt.TxHash),
		zap.Bool("simulated", receipt.Simulated),
		zap.String("origin_asset", decision.Quote.OriginAsset),
		zap.String("destination_asset", decision.Quote.DestinationAsset),
	)

	// The swap is on-chain from here on, so bookkeeping must outlive a cancelled cycle.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := e.wait(ctx, e.cfg.Trading.SettleDelay); err != nil {
		l.Warn("Settlement wait interrupted, recording trade now", zap.String("tx_hash", receipt.TxHash), zap.Error(err))
	}

	trade, err := e.ledger.RecordQuote(bookCtx, accountID, *decision.Quote)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", receipt.TxHash, err)
	}
	result.TradeID = trade.ID

	after, err := e.buildContext(bookCtx, l, accountID)
	if err != nil {
		// The trade is already recorded; keep the pre-trade view for the snapshot.
		l.Warn("Failed to rebuild context after trade", zap.Error(err))
		after = before
	}
	result.TotalUSD = after.valuation.TotalUSD
	result.SnapshotID = e.snapshot(bookCtx, accountID, after, previousTotal, decision.Content)
	return nil
}

// buildContext values the account and renders the agent prompt. Price and
// balance failures degrade to an empty view; only ledger errors are returned.
func (e *Engine) buildContext(ctx context.Context, l *zap.Logger, accountID string) (*cycleContext, error) {
	ctx, span := trace.StartSpan(ctx, "build-context")
	defer span.End()

	open, err := e.ledger.OpenPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	prices, err := e.prices.GetPrices(ctx, e.cfg.Market.Symbols)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("market").Inc()
		l.Warn("Price source unavailable, valuing positions at zero", zap.Error(err))
		prices = nil
	}

	balances, err := e.chain.Balances(ctx, accountID)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("chain").Inc()
		l.Warn("Failed to read balances", zap.Error(err))
		balances = nil
	}

	v := portfolio.Valuate(open, prices, balances)
	overview := market.Overview(prices)
	return &cycleContext{
		valuation: v,
		overview:  overview,
		prompt:    portfolio.BuildPrompt(v, overview, e.cfg.Strategy),
	}, nil
}

func (e *Engine) snapshot(ctx context.Context, accountID string, c *cycleContext, previousTotal float64, reasoning string) uint {
	s := e.recorder.Record(ctx, ledger.SnapshotInput{
		AccountID:      accountID,
		Positions:      c.valuation.Positions,
		TotalUSD:       c.valuation.TotalUSD,
		PreviousUSD:    previousTotal,
		Reasoning:      reasoning,
		MarketAnalysis: c.overview,
	})
	if s == nil {
		return 0
	}
	return s.ID
}

// Status is the engine state reported by the control API.
type Status struct {
	UUID      string       `json:"uuid"`
	Name      string       `json:"name"`
	AccountID string       `json:"account_id"`
	DryRun    bool         `json:"dry_run"`
	StartTime string       `json:"start_time"`
	Uptime    string       `json:"uptime"`
	Cycles    int          `json:"cycles"`
	LastCycle *CycleResult `json:"last_cycle,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() Status {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	s := Status{
		UUID:      e.UUID,
		Name:      e.Name,
		AccountID: e.cfg.Account.ID,
		DryRun:    e.cfg.Trading.DryRun,
		StartTime: e.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(e.StartTime).String(),
		Cycles:    e.cycles,
		LastCycle: e.last,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
