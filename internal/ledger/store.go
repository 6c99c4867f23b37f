package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"trading-agent-ledger/internal/database"
	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is durable storage for trades and portfolio snapshots.
type Store interface {
	// Available reports whether writes are persisted.
	Available() bool
	EnsureSchema(ctx context.Context) error

	InsertBuy(ctx context.Context, trade *models.Trade) error
	// MatchAndRecordSell matches sell against the open lots of its asset and
	// writes the lot updates and the SELL row atomically.
	MatchAndRecordSell(ctx context.Context, sell *models.Trade, exitPrice decimal.Decimal) (MatchResult, error)

	QueryOpenLots(ctx context.Context, accountID, asset string) ([]models.Trade, error)
	QueryAllOpenLots(ctx context.Context, accountID string) ([]models.Trade, error)
	// QueryTrades returns the most recent trades first; limit <= 0 means no limit.
	QueryTrades(ctx context.Context, accountID string, limit int) ([]models.Trade, error)
	GetTrade(ctx context.Context, id uint) (*models.Trade, error)

	InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	QuerySnapshots(ctx context.Context, accountID string) ([]models.Snapshot, error)
	// FirstSnapshotBetween returns the earliest snapshot created within [from, to].
	FirstSnapshotBetween(ctx context.Context, accountID string, from, to time.Time) (*models.Snapshot, error)
}

// GormStore is the gorm-backed Store.
type GormStore struct {
	db     *gorm.DB
	schema atomic.Bool
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store on db. The schema is created on first write.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Available() bool {
	return s != nil && s.db != nil
}

// EnsureSchema creates missing tables and indexes once per store.
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if s.schema.Load() {
		return nil
	}
	if err := database.EnsureSchema(ctx, s.db); err != nil {
		return &SchemaError{Err: err}
	}
	s.schema.Store(true)
	return nil
}

// InTx runs fn against a store bound to a single transaction.
func (s *GormStore) InTx(ctx context.Context, fn func(tx *GormStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &GormStore{db: tx}
		txStore.schema.Store(s.schema.Load())
		return fn(txStore)
	})
}

// InsertBuy appends a BUY row; its remaining quantity starts at the full quantity.
func (s *GormStore) InsertBuy(ctx context.Context, trade *models.Trade) error {
	if trade.Type != models.TradeTypeBuy {
		return fmt.Errorf("%w: insert buy with type %q", ErrInvalidTrade, trade.Type)
	}
	if !trade.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	trade.RemainingQuantity = trade.Quantity
	trade.RealizedPnl = decimal.Zero
	trade.Timestamp = stamp(trade.Timestamp)

	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to insert buy: %w", err)
	}
	return nil
}

// InsertSell appends a SELL row. Sells never hold inventory.
func (s *GormStore) InsertSell(ctx context.Context, trade *models.Trade) error {
	if trade.Type != models.TradeTypeSell {
		return fmt.Errorf("%w: insert sell with type %q", ErrInvalidTrade, trade.Type)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	trade.RemainingQuantity = decimal.Zero
	trade.Timestamp = stamp(trade.Timestamp)

	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to insert sell: %w", err)
	}
	return nil
}

// UpdateRemainingQuantity sets the open remainder of a BUY lot.
func (s *GormStore) UpdateRemainingQuantity(ctx context.Context, buyID uint, remaining decimal.Decimal) error {
	if remaining.IsNegative() {
		return ErrNegativeRemaining
	}

	res := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND type = ?", buyID, models.TradeTypeBuy).
		Update("remaining_quantity", remaining)
	if res.Error != nil {
		return fmt.Errorf("failed to update remaining quantity of lot %d: %w", buyID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lot %d: %w", buyID, ErrNotFound)
	}
	return nil
}

// MatchAndRecordSell locks the open lots of the sell's asset, consumes them FIFO
// and records the sell, all in one transaction.
func (s *GormStore) MatchAndRecordSell(ctx context.Context, sell *models.Trade, exitPrice decimal.Decimal) (MatchResult, error) {
	var result MatchResult
	if sell.Type != models.TradeTypeSell {
		return result, fmt.Errorf("%w: match sell with type %q", ErrInvalidTrade, sell.Type)
	}
	if !sell.Quantity.IsPositive() {
		return result, fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return result, err
	}

	err := s.InTx(ctx, func(tx *GormStore) error {
		lots, err := tx.openLots(ctx, sell.AccountID, sell.Asset, true)
		if err != nil {
			return err
		}

		result = MatchFIFO(LotsFromTrades(lots), sell.Quantity, exitPrice)

		// Lots are updated one at a time, oldest first.
		for _, fill := range result.Fills {
			if err := tx.UpdateRemainingQuantity(ctx, fill.LotID, fill.RemainingAfter); err != nil {
				return err
			}
		}

		sell.EntryPrice = result.WeightedEntryPrice.Round(8)
		sell.RealizedPnl = result.RealizedPnl.Round(2)
		return tx.InsertSell(ctx, sell)
	})
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

// stamp defaults t to now and normalizes it to UTC.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func (s *GormStore) openLots(ctx context.Context, accountID, asset string, lock bool) ([]models.Trade, error) {
	q := s.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var lots []models.Trade
	err := q.Where("account_id = ? AND asset = ? AND type = ? AND remaining_quantity > ?",
		accountID, asset, models.TradeTypeBuy, 0).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	return lots, nil
}

// QueryOpenLots returns the open BUY lots of an asset, oldest first.
func (s *GormStore) QueryOpenLots(ctx context.Context, accountID, asset string) ([]models.Trade, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s.openLots(ctx, accountID, asset, false)
}

// QueryAllOpenLots returns every open BUY lot of the account, oldest first.
func (s *GormStore) QueryAllOpenLots(ctx context.Context, accountID string) ([]models.Trade, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var lots []models.Trade
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND remaining_quantity > ?", accountID, models.TradeTypeBuy, 0).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	return lots, nil
}

func (s *GormStore) QueryTrades(ctx context.Context, accountID string, limit int) ([]models.Trade, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

func (s *GormStore) GetTrade(ctx context.Context, id uint) (*models.Trade, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var trade models.Trade
	err := s.db.WithContext(ctx).First(&trade, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trade %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %d: %w", id, err)
	}
	return &trade, nil
}

func (s *GormStore) InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	snapshot.CreatedAt = stamp(snapshot.CreatedAt)
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// QuerySnapshots returns every snapshot of the account, most recent first.
func (s *GormStore) QuerySnapshots(ctx context.Context, accountID string) ([]models.Snapshot, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var snapshots []models.Snapshot
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return snapshots, nil
}

func (s *GormStore) FirstSnapshotBetween(ctx context.Context, accountID string, from, to time.Time) (*models.Snapshot, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var snapshot models.Snapshot
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND created_at >= ? AND created_at <= ?", accountID, from.UTC(), to.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return &snapshot, nil
}
