package ledger

import (
	"slices"
	"strings"

	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultDustThreshold is the open quantity at or below which a position counts as closed.
var DefaultDustThreshold = decimal.RequireFromString("0.0001")

// Position is the open inventory of one asset, derived from unconsumed lots.
type Position struct {
	Asset         string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	TotalInvested decimal.Decimal
}

// AggregatePositions groups open BUY lots by asset. Assets whose open quantity does
// not exceed dust are dropped. The result is ordered by total invested, largest first.
func AggregatePositions(lots []models.Trade, dust decimal.Decimal) []Position {
	type totals struct {
		quantity decimal.Decimal
		invested decimal.Decimal
	}

	byAsset := make(map[string]*totals)
	var assets []string
	for _, lot := range lots {
		if !lot.IsBuy() || !lot.RemainingQuantity.IsPositive() {
			continue
		}
		t, ok := byAsset[lot.Asset]
		if !ok {
			t = &totals{quantity: decimal.Zero, invested: decimal.Zero}
			byAsset[lot.Asset] = t
			assets = append(assets, lot.Asset)
		}
		t.quantity = t.quantity.Add(lot.RemainingQuantity)
		t.invested = t.invested.Add(lot.RemainingQuantity.Mul(lot.EntryPrice))
	}

	positions := make([]Position, 0, len(assets))
	for _, asset := range assets {
		t := byAsset[asset]
		if t.quantity.LessThanOrEqual(dust) {
			continue
		}
		positions = append(positions, Position{
			Asset:         asset,
			Quantity:      t.quantity,
			AvgEntryPrice: t.invested.Div(t.quantity),
			TotalInvested: t.invested,
		})
	}

	slices.SortStableFunc(positions, func(a, b Position) int {
		if c := b.TotalInvested.Cmp(a.TotalInvested); c != 0 {
			return c
		}
		return strings.Compare(a.Asset, b.Asset)
	})
	return positions
}

// PnL values a position at price. The percentage is 0 when nothing is invested.
func (p Position) PnL(price decimal.Decimal) (currentValue, pnlUSD, pnlPercent decimal.Decimal) {
	currentValue = p.Quantity.Mul(price)
	pnlUSD = currentValue.Sub(p.TotalInvested)
	pnlPercent = decimal.Zero
	if p.TotalInvested.IsPositive() {
		pnlPercent = pnlUSD.Div(p.TotalInvested).Mul(decimal.NewFromInt(100))
	}
	return currentValue, pnlUSD, pnlPercent
}
