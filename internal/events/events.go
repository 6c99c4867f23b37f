package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-agent-ledger/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher announces committed ledger trades to downstream consumers.
type Publisher interface {
	PublishTrade(ctx context.Context, trade *models.Trade) error
	Close()
}

// TradeEvent is the wire form of a committed trade.
type TradeEvent struct {
	ID          uint      `json:"id"`
	AccountID   string    `json:"account_id"`
	Asset       string    `json:"asset"`
	Type        string    `json:"type"`
	Quantity    string    `json:"quantity"`
	EntryPrice  string    `json:"entry_price"`
	AmountUSD   string    `json:"amount_usd"`
	RealizedPnl string    `json:"realized_pnl"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTradeEvent builds the event for a trade row.
func NewTradeEvent(trade *models.Trade) TradeEvent {
	return TradeEvent{
		ID:          trade.ID,
		AccountID:   trade.AccountID,
		Asset:       trade.Asset,
		Type:        string(trade.Type),
		Quantity:    trade.Quantity.String(),
		EntryPrice:  trade.EntryPrice.String(),
		AmountUSD:   trade.AmountUSD.StringFixed(2),
		RealizedPnl: trade.RealizedPnl.StringFixed(2),
		Timestamp:   trade.Timestamp,
	}
}

// Subject returns the per-account subject under the configured prefix.
func Subject(prefix, accountID string) string {
	return fmt.Sprintf("%s.%s", prefix, accountID)
}

// NATSPublisher publishes trade events on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	l := logger.Named("events")
	conn, err := nats.Connect(url,
		nats.Name("trading-agent-ledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{conn: conn, prefix: prefix, logger: l}, nil
}

// PublishTrade publishes the trade as JSON.
func (p *NATSPublisher) PublishTrade(_ context.Context, trade *models.Trade) error {
	data, err := json.Marshal(NewTradeEvent(trade))
	if err != nil {
		return fmt.Errorf("failed to encode trade event: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, trade.AccountID), data); err != nil {
		return fmt.Errorf("failed to publish trade event: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Failed to drain NATS connection", zap.Error(err))
	}
}

// Nop discards every event.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) PublishTrade(context.Context, *models.Trade) error { return nil }

func (Nop) Close() {}
