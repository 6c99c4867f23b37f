package ledger

import (
	"context"
	"sync"
	"time"

	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UnconfiguredStore stands in when no database is configured.
// Writes are dropped with a one-time warning and reads return nothing,
// so the trading loop can still run without persistence.
type UnconfiguredStore struct {
	logger *zap.Logger
	once   sync.Once
}

var _ Store = (*UnconfiguredStore)(nil)

// NewUnconfiguredStore creates the no-op store.
func NewUnconfiguredStore(logger *zap.Logger) *UnconfiguredStore {
	return &UnconfiguredStore{logger: logger.Named("ledger")}
}

func (s *UnconfiguredStore) warn() {
	s.once.Do(func() {
		s.logger.Warn("No database configured, ledger writes are disabled", zap.Error(ErrStoreUnavailable))
	})
}

func (s *UnconfiguredStore) Available() bool { return false }

func (s *UnconfiguredStore) EnsureSchema(context.Context) error { return nil }

func (s *UnconfiguredStore) InsertBuy(context.Context, *models.Trade) error {
	s.warn()
	return nil
}

func (s *UnconfiguredStore) MatchAndRecordSell(context.Context, *models.Trade, decimal.Decimal) (MatchResult, error) {
	s.warn()
	return MatchResult{}, nil
}

func (s *UnconfiguredStore) QueryOpenLots(context.Context, string, string) ([]models.Trade, error) {
	return nil, nil
}

func (s *UnconfiguredStore) QueryAllOpenLots(context.Context, string) ([]models.Trade, error) {
	return nil, nil
}

func (s *UnconfiguredStore) QueryTrades(context.Context, string, int) ([]models.Trade, error) {
	return nil, nil
}

func (s *UnconfiguredStore) GetTrade(context.Context, uint) (*models.Trade, error) {
	return nil, ErrNotFound
}

func (s *UnconfiguredStore) InsertSnapshot(context.Context, *models.Snapshot) error {
	s.warn()
	return nil
}

func (s *UnconfiguredStore) QuerySnapshots(context.Context, string) ([]models.Snapshot, error) {
	return nil, nil
}

func (s *UnconfiguredStore) FirstSnapshotBetween(context.Context, string, time.Time, time.Time) (*models.Snapshot, error) {
	return nil, ErrNotFound
}
