package ledger

import (
	"context"
	"errors"
	"testing"

	"trading-agent-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	usdcAssetID = "nep141:17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1"
	solAssetID  = "nep141:sol.omft.near"
	nearAssetID = "nep141:wrap.near"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTrade(ctx context.Context, trade *models.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *mockPublisher) Close() {}

func TestLedger_FIFOAcrossTwoLots(t *testing.T) {
	// Arrange
	ctx := context.Background()
	l, _, logs := setupLedger(t)

	_, err := l.RecordBuy(ctx, testAccount, "SOL", d("10"), d("100"), d("1000"))
	require.NoError(t, err)
	_, err = l.RecordBuy(ctx, testAccount, "SOL", d("10"), d("120"), d("1200"))
	require.NoError(t, err)

	// Act
	sell, result, err := l.RecordSell(ctx, testAccount, "SOL", d("15"), d("150"), d("2250"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "650.00", sell.RealizedPnl.StringFixed(2))
	assert.Equal(t, "106.67", sell.EntryPrice.StringFixed(2))
	assert.Len(t, result.Fills, 2)
	assert.Zero(t, logs.FilterMessage("Sell exceeds open lots, recording unmatched quantity").Len())

	positions, err := l.OpenPositions(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SOL", positions[0].Asset)
	assert.True(t, positions[0].Quantity.Equal(d("5")))
	assert.True(t, positions[0].AvgEntryPrice.Equal(d("120")))
	assert.True(t, positions[0].TotalInvested.Equal(d("600")))
}

func TestLedger_SellWithoutLotsIsRecorded(t *testing.T) {
	// Arrange
	ctx := context.Background()
	l, store, logs := setupLedger(t)

	// Act
	sell, result, err := l.RecordSell(ctx, testAccount, "ETH", d("2"), d("3000"), d("6000"))

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Short())
	assert.True(t, sell.EntryPrice.IsZero())
	assert.True(t, sell.RealizedPnl.IsZero())

	warnings := logs.FilterMessage("Sell exceeds open lots, recording unmatched quantity").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "ETH", warnings[0].ContextMap()["asset"])
	assert.Equal(t, "2", warnings[0].ContextMap()["unmatched"])

	trades, err := store.QueryTrades(ctx, testAccount, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeTypeSell, trades[0].Type)
}

func TestLedger_RecordBuyNormalizesWrappedAsset(t *testing.T) {
	ctx := context.Background()
	l, _, _ := setupLedger(t)

	trade, err := l.RecordBuy(ctx, testAccount, "wNEAR", d("100"), d("2.5"), d("250"))

	require.NoError(t, err)
	assert.Equal(t, "NEAR", trade.Asset)
}

func TestLedger_RecordBuyRoundsValues(t *testing.T) {
	ctx := context.Background()
	l, _, _ := setupLedger(t)

	trade, err := l.RecordBuy(ctx, testAccount, "BTC", d("0.123456789"), d("60000.000000004"), d("7407.4074"))

	require.NoError(t, err)
	assert.Equal(t, "0.12345679", trade.Quantity.String())
	assert.Equal(t, "60000", trade.EntryPrice.String())
	assert.Equal(t, "7407.41", trade.AmountUSD.StringFixed(2))
}

func TestLedger_RecordQuote(t *testing.T) {
	ctx := context.Background()
	l, store, _ := setupLedger(t)

	buy, err := l.RecordQuote(ctx, testAccount, models.Quote{
		OriginAsset:        usdcAssetID,
		DestinationAsset:   solAssetID,
		AmountInFormatted:  "1000",
		AmountOutFormatted: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeTypeBuy, buy.Type)
	assert.Equal(t, "SOL", buy.Asset)
	assert.True(t, buy.EntryPrice.Equal(d("100")))

	sell, err := l.RecordQuote(ctx, testAccount, models.Quote{
		OriginAsset:        solAssetID,
		DestinationAsset:   usdcAssetID,
		AmountInFormatted:  "4",
		AmountOutFormatted: "600",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeTypeSell, sell.Type)
	assert.Equal(t, "200.00", sell.RealizedPnl.StringFixed(2))

	lots, err := store.QueryOpenLots(ctx, testAccount, "SOL")
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].RemainingQuantity.Equal(d("6")))
}

func TestLedger_RecordQuoteRejectsNonUSDCSwap(t *testing.T) {
	l, _, _ := setupLedger(t)

	_, err := l.RecordQuote(context.Background(), testAccount, models.Quote{
		OriginAsset:        solAssetID,
		DestinationAsset:   nearAssetID,
		AmountInFormatted:  "1",
		AmountOutFormatted: "50",
	})

	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestLedger_PublishesCommittedTrades(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, _ := setupStore(t)
	publisher := new(mockPublisher)
	publisher.On("PublishTrade", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool {
		return tr.Type == models.TradeTypeBuy && tr.Asset == "BTC"
	})).Return(nil).Once()
	publisher.On("PublishTrade", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool {
		return tr.Type == models.TradeTypeSell
	})).Return(errors.New("nats: connection closed")).Once()

	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLedger(store, publisher, zap.New(core))

	// Act
	_, err := l.RecordBuy(ctx, testAccount, "BTC", d("1"), d("100"), d("100"))
	require.NoError(t, err)
	_, _, err = l.RecordSell(ctx, testAccount, "BTC", d("1"), d("110"), d("110"))

	// Assert
	require.NoError(t, err, "publish failures do not fail the trade")
	publisher.AssertExpectations(t)
	assert.Equal(t, 1, logs.FilterMessage("Failed to publish trade event").Len())
}

func TestLedger_UnconfiguredStore(t *testing.T) {
	// Arrange
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	publisher := new(mockPublisher)
	l := NewLedger(NewUnconfiguredStore(logger), publisher, logger)

	// Act
	_, err := l.RecordBuy(ctx, testAccount, "SOL", d("1"), d("100"), d("100"))
	require.NoError(t, err)
	_, _, err = l.RecordSell(ctx, testAccount, "SOL", d("1"), d("100"), d("100"))
	require.NoError(t, err)
	positions, err := l.OpenPositions(ctx, testAccount)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 1, logs.FilterMessage("No database configured, ledger writes are disabled").Len())
	assert.Zero(t, logs.FilterMessage("Recorded buy").Len())
	assert.Zero(t, logs.FilterMessage("Recorded sell").Len())
	publisher.AssertNotCalled(t, "PublishTrade", mock.Anything, mock.Anything)
}
