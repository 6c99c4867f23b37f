package ledger

import (
	"context"
	"fmt"
	"time"

	"trading-agent-ledger/internal/events"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/metrics"
	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger records executed trades and answers position queries for the trading cycle.
type Ledger struct {
	store     Store
	publisher events.Publisher
	logger    *zap.Logger
	dust      decimal.Decimal
	now       func() time.Time
}

// NewLedger creates a Ledger over store. A nil publisher disables trade events.
func NewLedger(store Store, publisher events.Publisher, logger *zap.Logger) *Ledger {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    logger.Named("ledger"),
		dust:      DefaultDustThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithDustThreshold overrides the dust threshold used for open positions.
func (l *Ledger) WithDustThreshold(dust decimal.Decimal) *Ledger {
	l.dust = dust
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() Store {
	return l.store
}

// RecordBuy appends a new lot.
func (l *Ledger) RecordBuy(ctx context.Context, accountID, asset string, quantity, price, amountUSD decimal.Decimal) (*models.Trade, error) {
	asset = market.NormalizeAsset(asset)
	trade := &models.Trade{
		Timestamp:  l.now(),
		AccountID:  accountID,
		Asset:      asset,
		Type:       models.TradeTypeBuy,
		Quantity:   quantity.Round(8),
		EntryPrice: price.Round(8),
		AmountUSD:  amountUSD.Round(2),
	}

	if err := l.store.InsertBuy(ctx, trade); err != nil {
		return nil, fmt.Errorf("record buy of %s: %w", asset, err)
	}
	if !l.store.Available() {
		return trade, nil
	}

	l.logger.Info("Recorded buy",
		zap.String("account_id", accountID),
		zap.String("asset", asset),
		zap.Uint("trade_id", trade.ID),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("entry_price", trade.EntryPrice.String()),
		zap.String("amount_usd", trade.AmountUSD.StringFixed(2)),
	)
	l.committed(ctx, trade)
	return trade, nil
}

// RecordSell matches the sale FIFO against open lots and appends the SELL row.
// Selling more than is held is logged as a matching anomaly; the row is still written.
func (l *Ledger) RecordSell(ctx context.Context, accountID, asset string, quantity, exitPrice, amountUSD decimal.Decimal) (*models.Trade, MatchResult, error) {
	asset = market.NormalizeAsset(asset)
	trade := &models.Trade{
		Timestamp: l.now(),
		AccountID: accountID,
		Asset:     asset,
		Type:      models.TradeTypeSell,
		Quantity:  quantity.Round(8),
		AmountUSD: amountUSD.Round(2),
	}

	result, err := l.store.MatchAndRecordSell(ctx, trade, exitPrice.Round(8))
	if err != nil {
		return nil, MatchResult{}, fmt.Errorf("record sell of %s: %w", asset, err)
	}
	if !l.store.Available() {
		return trade, result, nil
	}

	log := l.logger.With(
		zap.String("account_id", accountID),
		zap.String("asset", asset),
		zap.Uint("trade_id", trade.ID),
	)

	if result.Short() {
		metrics.MatchingAnomalies.WithLabelValues(asset).Inc()
		log.Warn("Sell exceeds open lots, recording unmatched quantity",
			zap.String("quantity", trade.Quantity.String()),
			zap.String("matched", result.Matched.String()),
			zap.String("unmatched", result.Unmatched.String()),
		)
	}

	for _, fill := range result.Fills {
		log.Debug("Consumed lot",
			zap.Uint("lot_id", fill.LotID),
			zap.String("matched", fill.Quantity.String()),
			zap.String("remaining", fill.RemainingAfter.String()),
			zap.String("pnl", fill.RealizedPnl.StringFixed(2)),
		)
	}

	log.Info("Recorded sell",
		zap.String("quantity", trade.Quantity.String()),
		zap.String("exit_price", exitPrice.String()),
		zap.String("weighted_entry_price", trade.EntryPrice.String()),
		zap.String("realized_pnl", trade.RealizedPnl.StringFixed(2)),
		zap.Int("lots_consumed", len(result.Fills)),
	)
	l.committed(ctx, trade)
	return trade, result, nil
}

// RecordQuote records the trade implied by an executed swap quote.
func (l *Ledger) RecordQuote(ctx context.Context, accountID string, quote models.Quote) (*models.Trade, error) {
	qt, err := TradeFromQuote(quote)
	if err != nil {
		return nil, err
	}

	if qt.Type == models.TradeTypeBuy {
		return l.RecordBuy(ctx, accountID, qt.Asset, qt.Quantity, qt.Price, qt.AmountUSD)
	}
	trade, _, err := l.RecordSell(ctx, accountID, qt.Asset, qt.Quantity, qt.Price, qt.AmountUSD)
	return trade, err
}

// OpenPositions derives the account's open positions from its unconsumed lots.
func (l *Ledger) OpenPositions(ctx context.Context, accountID string) ([]Position, error) {
	lots, err := l.store.QueryAllOpenLots(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	positions := AggregatePositions(lots, l.dust)
	metrics.OpenPositions.Set(float64(len(positions)))
	return positions, nil
}

func (l *Ledger) committed(ctx context.Context, trade *models.Trade) {
	metrics.TradesRecorded.WithLabelValues(string(trade.Type)).Inc()
	if err := l.publisher.PublishTrade(ctx, trade); err != nil {
		l.logger.Warn("Failed to publish trade event", zap.Uint("trade_id", trade.ID), zap.Error(err))
	}
}
