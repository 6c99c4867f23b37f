package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/ledger"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/models"
	"trading-agent-ledger/internal/portfolio"
	"trading-agent-ledger/internal/trace"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// NoDataReasoning marks a dashboard built without any snapshot.
	NoDataReasoning = "No data available"
	// NoTradeReasoning is shown when no snapshot follows a trade.
	NoTradeReasoning = "No reasoning data available for this trade."

	dashboardReasoningLen = 200
	detailReasoningLen    = 500
)

var hundred = decimal.NewFromInt(100)

// Dashboard is the chart-ready summary of an account.
type Dashboard struct {
	TotalValue        float64      `json:"totalValue"`
	StartingValue     float64      `json:"startingValue"`
	GoalValue         float64      `json:"goalValue"`
	AccruedYield      float64      `json:"accruedYield"`
	YieldPercent      float64      `json:"yieldPercent"`
	Trades            []TradeRow   `json:"trades"`
	AssetDistribution []AssetShare `json:"assetDistribution"`
	StatsChart        []ChartPoint `json:"statsChart"`
	LastReasoning     string       `json:"lastReasoning"`
	RequestCount      int          `json:"requestCount"`
	LastUpdate        *time.Time   `json:"lastUpdate"`
}

// TradeRow is a ledger row with its P&L recomputed against live prices.
type TradeRow struct {
	ID                uint      `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	Type              string    `json:"type"`
	Asset             string    `json:"asset"`
	Quantity          float64   `json:"quantity"`
	Price             float64   `json:"price"`
	Amount            float64   `json:"amount"`
	Pnl               float64   `json:"pnl"`
	PnlPercent        float64   `json:"pnlPercent"`
	PortfolioValue    float64   `json:"portfolioValue"`
	RemainingQuantity float64   `json:"remaining_quantity"`
	RealizedPnl       float64   `json:"realized_pnl"`
}

// AssetShare is one slice of the latest snapshot's asset distribution.
type AssetShare struct {
	Symbol     string  `json:"symbol"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	Change     float64 `json:"change"`
}

// ChartPoint is one snapshot on the portfolio value chart.
type ChartPoint struct {
	Date      string    `json:"date"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Pnl       float64   `json:"pnl"`
}

// TradeDetail is a single trade with the reasoning captured right after it.
type TradeDetail struct {
	ID               uint      `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Asset            string    `json:"asset"`
	Type             string    `json:"type"`
	Quantity         float64   `json:"quantity"`
	Price            float64   `json:"price"`
	Amount           float64   `json:"amount"`
	Pnl              float64   `json:"pnl"`
	Reasoning        string    `json:"reasoning"`
	MarketConditions string    `json:"marketConditions,omitempty"`
	PortfolioValue   float64   `json:"portfolioValue"`
}

// Service rebuilds dashboard views from the ledger, snapshot history and live prices.
type Service struct {
	store  ledger.Store
	prices market.PriceSource
	cfg    config.Dashboard
	logger *zap.Logger
	dust   decimal.Decimal
	now    func() time.Time
}

// NewService creates the read-side service.
func NewService(store ledger.Store, prices market.PriceSource, cfg config.Dashboard, logger *zap.Logger) *Service {
	if cfg.ChartPoints <= 0 {
		cfg.ChartPoints = 500
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 100
	}
	if cfg.ReasoningWindow <= 0 {
		cfg.ReasoningWindow = time.Hour
	}
	return &Service{
		store:  store,
		prices: prices,
		cfg:    cfg,
		logger: logger.Named("dashboard"),
		dust:   ledger.DefaultDustThreshold,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithDustThreshold overrides the quantity at or below which a position is hidden.
func (s *Service) WithDustThreshold(dust decimal.Decimal) *Service {
	s.dust = dust
	return s
}

func emptyDashboard() *Dashboard {
	return &Dashboard{
		Trades:            []TradeRow{},
		AssetDistribution: []AssetShare{},
		StatsChart:        []ChartPoint{},
		LastReasoning:     NoDataReasoning,
	}
}

// BuildDashboard assembles the account summary. Missing data and read failures
// produce a zeroed payload, never an error.
func (s *Service) BuildDashboard(ctx context.Context, accountID string) *Dashboard {
	ctx, span := trace.StartSpan(ctx, "build-dashboard")
	defer span.End()

	snapshots, err := s.store.QuerySnapshots(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to load snapshots", zap.String("account_id", accountID), zap.Error(err))
		return emptyDashboard()
	}
	if len(snapshots) == 0 {
		return emptyDashboard()
	}

	latest := snapshots[0]
	earliest := snapshots[len(snapshots)-1]
	total := latest.TotalUSDValue
	starting := earliest.TotalUSDValue
	accrued := total.Sub(starting)
	yieldPercent := decimal.Zero
	if starting.IsPositive() {
		yieldPercent = accrued.Div(starting).Mul(hundred)
	}

	lastUpdate := latest.CreatedAt
	return &Dashboard{
		TotalValue:        round2(total),
		StartingValue:     round2(starting),
		GoalValue:         round2(starting.Mul(decimal.NewFromInt(2))),
		AccruedYield:      round2(accrued),
		YieldPercent:      round2(yieldPercent),
		Trades:            s.tradeRows(ctx, accountID, snapshots),
		AssetDistribution: assetDistribution(latest),
		StatsChart:        chart(snapshots, s.cfg.ChartPoints),
		LastReasoning:     ledger.ReasoningText(latest.Data.Data(), NoDataReasoning, dashboardReasoningLen),
		RequestCount:      len(snapshots),
		LastUpdate:        &lastUpdate,
	}
}

func (s *Service) livePrices(ctx context.Context) []models.MarketPrice {
	if s.prices == nil {
		return nil
	}
	prices, err := s.prices.GetPrices(ctx, nil)
	if err != nil {
		s.logger.Warn("Failed to fetch market prices", zap.Error(err))
		return nil
	}
	return prices
}

func (s *Service) tradeRows(ctx context.Context, accountID string, snapshots []models.Snapshot) []TradeRow {
	trades, err := s.store.QueryTrades(ctx, accountID, s.cfg.TradeLimit)
	if err != nil {
		s.logger.Error("Failed to load trades", zap.String("account_id", accountID), zap.Error(err))
		return []TradeRow{}
	}
	if len(trades) == 0 {
		return []TradeRow{}
	}

	prices := s.livePrices(ctx)
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		pnl := TradePnL(t, decimal.NewFromFloat(market.PriceFor(prices, t.Asset)))
		pnlPercent := decimal.Zero
		if t.EntryPrice.IsPositive() && t.AmountUSD.IsPositive() {
			pnlPercent = pnl.Div(t.AmountUSD).Mul(hundred)
		}

		portfolioValue := 0.0
		if snap := firstSnapshotAfter(snapshots, t.Timestamp, s.cfg.ReasoningWindow); snap != nil {
			portfolioValue = round2(snap.TotalUSDValue)
		}

		rows = append(rows, TradeRow{
			ID:                t.ID,
			Timestamp:         t.Timestamp,
			Type:              string(t.Type),
			Asset:             market.NormalizeAsset(t.Asset),
			Quantity:          t.Quantity.InexactFloat64(),
			Price:             t.EntryPrice.InexactFloat64(),
			Amount:            t.AmountUSD.InexactFloat64(),
			Pnl:               round2(pnl),
			PnlPercent:        round2(pnlPercent),
			PortfolioValue:    portfolioValue,
			RemainingQuantity: t.RemainingQuantity.InexactFloat64(),
			RealizedPnl:       t.RealizedPnl.InexactFloat64(),
		})
	}
	return rows
}

// TradePnL is the realized P&L of a SELL, or the unrealized P&L of the open
// remainder of a BUY at price. A BUY without a price has no P&L.
func TradePnL(t models.Trade, price decimal.Decimal) decimal.Decimal {
	if !t.IsBuy() {
		return t.RealizedPnl
	}
	if !price.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(t.EntryPrice).Mul(t.RemainingQuantity)
}

// firstSnapshotAfter returns the earliest snapshot in [ts, ts+window].
// snapshots are ordered most recent first.
func firstSnapshotAfter(snapshots []models.Snapshot, ts time.Time, window time.Duration) *models.Snapshot {
	end := ts.Add(window)
	for i := len(snapshots) - 1; i >= 0; i-- {
		created := snapshots[i].CreatedAt
		if created.Before(ts) {
			continue
		}
		if created.After(end) {
			return nil
		}
		return &snapshots[i]
	}
	return nil
}

func assetDistribution(latest models.Snapshot) []AssetShare {
	positions := latest.Data.Data().Positions
	shares := make([]AssetShare, 0, len(positions))
	total := latest.TotalUSDValue
	for _, p := range positions {
		value := decimal.NewFromFloat(p.USDValue)
		percentage := decimal.Zero
		if total.IsPositive() {
			percentage = value.Div(total).Mul(hundred)
		}
		shares = append(shares, AssetShare{
			Symbol:     market.NormalizeAsset(p.Symbol),
			Value:      p.USDValue,
			Percentage: percentage.InexactFloat64(),
			Change:     p.PnlPercent,
		})
	}
	return shares
}

// chart projects the most recent n snapshots in chronological order.
func chart(snapshots []models.Snapshot, n int) []ChartPoint {
	if n > len(snapshots) {
		n = len(snapshots)
	}
	points := make([]ChartPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		snap := snapshots[i]
		created := snap.CreatedAt.UTC()
		points = append(points, ChartPoint{
			Date:      fmt.Sprintf("%d:%02d", created.Hour(), created.Minute()),
			Value:     round2(snap.TotalUSDValue),
			Timestamp: snap.CreatedAt,
			Pnl:       snap.PnlUSD.InexactFloat64(),
		})
	}
	return points
}

// GetTradeDetail resolves a trade and the reasoning recorded right after it.
// Every failure, including an unparsable id or an unreadable store, yields
// ledger.ErrNotFound.
func (s *Service) GetTradeDetail(ctx context.Context, rawID string) (*TradeDetail, error) {
	id, err := strconv.ParseUint(rawID, 10, 0)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("trade %q: %w", rawID, ledger.ErrNotFound)
	}

	trade, err := s.store.GetTrade(ctx, uint(id))
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			s.logger.Error("Failed to load trade", zap.Uint64("trade_id", id), zap.Error(err))
		}
		return nil, fmt.Errorf("trade %d: %w", id, ledger.ErrNotFound)
	}

	detail := &TradeDetail{
		ID:        trade.ID,
		Timestamp: trade.Timestamp,
		Asset:     market.NormalizeAsset(trade.Asset),
		Type:      string(trade.Type),
		Quantity:  trade.Quantity.InexactFloat64(),
		Price:     trade.EntryPrice.InexactFloat64(),
		Amount:    trade.AmountUSD.InexactFloat64(),
		Reasoning: NoTradeReasoning,
	}
	if !trade.IsBuy() {
		detail.Pnl = round2(trade.RealizedPnl)
	}

	snapshot, err := s.store.FirstSnapshotBetween(ctx, trade.AccountID, trade.Timestamp, trade.Timestamp.Add(s.cfg.ReasoningWindow))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return detail, nil
	case err != nil:
		s.logger.Warn("Failed to load snapshot for trade", zap.Uint("trade_id", trade.ID), zap.Error(err))
		return detail, nil
	}

	data := snapshot.Data.Data()
	detail.PortfolioValue = round2(snapshot.TotalUSDValue)
	detail.Reasoning = ledger.ReasoningText(data, NoTradeReasoning, detailReasoningLen)
	if data.MarketAnalysis != nil {
		detail.MarketConditions = *data.MarketAnalysis
	}
	return detail, nil
}

// PeriodStats summarizes realized P&L over the SELL rows of a period.
type PeriodStats struct {
	Trades      int     `json:"trades"`
	Profitable  int     `json:"profitable"`
	WinRate     float64 `json:"winRate"`
	RealizedPnl float64 `json:"realizedPnl"`
}

// Stats holds realized P&L statistics for the last day and all time.
type Stats struct {
	Last24h PeriodStats `json:"last24h"`
	AllTime PeriodStats `json:"allTime"`
}

// Stats computes realized-P&L statistics from the account's SELL rows.
func (s *Service) Stats(ctx context.Context, accountID string) Stats {
	trades, err := s.store.QueryTrades(ctx, accountID, 0)
	if err != nil {
		s.logger.Error("Failed to load trades", zap.String("account_id", accountID), zap.Error(err))
		return Stats{}
	}

	since := s.now().Add(-24 * time.Hour)
	var day, all periodAccumulator
	for _, t := range trades {
		if t.IsBuy() {
			continue
		}
		all.add(t.RealizedPnl)
		if !t.Timestamp.Before(since) {
			day.add(t.RealizedPnl)
		}
	}
	return Stats{Last24h: day.stats(), AllTime: all.stats()}
}

type periodAccumulator struct {
	trades     int
	profitable int
	pnl        decimal.Decimal
}

func (a *periodAccumulator) add(pnl decimal.Decimal) {
	a.trades++
	if pnl.IsPositive() {
		a.profitable++
	}
	a.pnl = a.pnl.Add(pnl)
}

func (a periodAccumulator) stats() PeriodStats {
	ps := PeriodStats{Trades: a.trades, Profitable: a.profitable, RealizedPnl: round2(a.pnl)}
	if a.trades > 0 {
		ps.WinRate = round2(decimal.NewFromInt(int64(a.profitable)).Div(decimal.NewFromInt(int64(a.trades))).Mul(hundred))
	}
	return ps
}

// OpenPositions values the account's open positions at live prices.
func (s *Service) OpenPositions(ctx context.Context, accountID string) []models.PositionWithPnL {
	lots, err := s.store.QueryAllOpenLots(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to load open lots", zap.String("account_id", accountID), zap.Error(err))
		return []models.PositionWithPnL{}
	}
	open := ledger.AggregatePositions(lots, s.dust)
	if len(open) == 0 {
		return []models.PositionWithPnL{}
	}
	return portfolio.Valuate(open, s.livePrices(ctx), nil).Positions
}

// Trades returns the most recent trades as dashboard rows.
func (s *Service) Trades(ctx context.Context, accountID string) []TradeRow {
	snapshots, err := s.store.QuerySnapshots(ctx, accountID)
	if err != nil {
		s.logger.Warn("Failed to load snapshots", zap.String("account_id", accountID), zap.Error(err))
	}
	return s.tradeRows(ctx, accountID, snapshots)
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
