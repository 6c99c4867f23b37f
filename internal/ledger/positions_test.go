package ledger

import (
	"testing"

	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lot(asset, remaining, price string) models.Trade {
	return models.Trade{
		AccountID:         testAccount,
		Asset:             asset,
		Type:              models.TradeTypeBuy,
		Quantity:          d(remaining),
		RemainingQuantity: d(remaining),
		EntryPrice:        d(price),
	}
}

func TestAggregatePositions(t *testing.T) {
	lots := []models.Trade{
		lot("ETH", "1", "2000"),
		lot("SOL", "10", "100"),
		lot("ETH", "1", "3000"),
		lot("BTC", "0.00005", "60000"),
		lot("ARB", "500", "1"),
	}

	positions := AggregatePositions(lots, DefaultDustThreshold)

	require.Len(t, positions, 3)
	assert.Equal(t, "ETH", positions[0].Asset)
	assert.True(t, positions[0].Quantity.Equal(d("2")))
	assert.True(t, positions[0].AvgEntryPrice.Equal(d("2500")))
	assert.True(t, positions[0].TotalInvested.Equal(d("5000")))
	assert.Equal(t, "SOL", positions[1].Asset)
	assert.Equal(t, "ARB", positions[2].Asset)
}

func TestAggregatePositions_DustBoundary(t *testing.T) {
	testCases := []struct {
		name      string
		remaining string
		included  bool
	}{
		{name: "below dust", remaining: "0.00009", included: false},
		{name: "exactly dust", remaining: "0.0001", included: false},
		{name: "above dust", remaining: "0.00011", included: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			positions := AggregatePositions([]models.Trade{lot("BTC", tc.remaining, "60000")}, DefaultDustThreshold)
			assert.Equal(t, tc.included, len(positions) == 1)
		})
	}
}

func TestAggregatePositions_IgnoresSellsAndClosedLots(t *testing.T) {
	sell := lot("SOL", "5", "100")
	sell.Type = models.TradeTypeSell
	closed := lot("SOL", "0", "100")

	positions := AggregatePositions([]models.Trade{sell, closed}, DefaultDustThreshold)

	assert.Empty(t, positions)
}

func TestAggregatePositions_TiesOrderedByAsset(t *testing.T) {
	positions := AggregatePositions([]models.Trade{lot("SUI", "10", "10"), lot("ARB", "100", "1")}, decimal.Zero)

	require.Len(t, positions, 2)
	assert.Equal(t, "ARB", positions[0].Asset)
	assert.Equal(t, "SUI", positions[1].Asset)
}

func TestPosition_PnL(t *testing.T) {
	testCases := []struct {
		name     string
		position Position
		price    string
		value    string
		pnl      string
		percent  string
	}{
		{
			name:     "gain",
			position: Position{Asset: "SOL", Quantity: d("5"), AvgEntryPrice: d("120"), TotalInvested: d("600")},
			price:    "150",
			value:    "750",
			pnl:      "150",
			percent:  "25",
		},
		{
			name:     "loss",
			position: Position{Asset: "ETH", Quantity: d("2"), AvgEntryPrice: d("2500"), TotalInvested: d("5000")},
			price:    "2000",
			value:    "4000",
			pnl:      "-1000",
			percent:  "-20",
		},
		{
			name:     "nothing invested",
			position: Position{Asset: "ARB", Quantity: d("10"), TotalInvested: decimal.Zero},
			price:    "1",
			value:    "10",
			pnl:      "10",
			percent:  "0",
		},
		{
			name:     "missing price",
			position: Position{Asset: "BTC", Quantity: d("1"), AvgEntryPrice: d("100"), TotalInvested: d("100")},
			price:    "0",
			value:    "0",
			pnl:      "-100",
			percent:  "-100",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			value, pnl, percent := tc.position.PnL(d(tc.price))

			assert.True(t, value.Equal(d(tc.value)), "value %s", value)
			assert.True(t, pnl.Equal(d(tc.pnl)), "pnl %s", pnl)
			assert.True(t, percent.Equal(d(tc.percent)), "percent %s", percent)
		})
	}
}
