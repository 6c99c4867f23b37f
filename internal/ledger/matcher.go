package ledger

import (
	"cmp"
	"slices"
	"time"

	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Lot is an open BUY row as seen by the matcher.
type Lot struct {
	ID         uint
	Timestamp  time.Time
	EntryPrice decimal.Decimal
	Remaining  decimal.Decimal
}

// LotsFromTrades converts BUY rows into lots.
func LotsFromTrades(trades []models.Trade) []Lot {
	lots := make([]Lot, 0, len(trades))
	for _, t := range trades {
		lots = append(lots, Lot{
			ID:         t.ID,
			Timestamp:  t.Timestamp,
			EntryPrice: t.EntryPrice,
			Remaining:  t.RemainingQuantity,
		})
	}
	return lots
}

// Fill is the part of a sell matched against one lot.
type Fill struct {
	LotID          uint
	Quantity       decimal.Decimal
	EntryPrice     decimal.Decimal
	RemainingAfter decimal.Decimal
	RealizedPnl    decimal.Decimal
}

// MatchResult is the outcome of matching one sell against the open lots.
type MatchResult struct {
	Fills              []Fill
	Matched            decimal.Decimal
	Unmatched          decimal.Decimal
	RealizedPnl        decimal.Decimal
	WeightedEntryPrice decimal.Decimal
}

// Short reports whether the sell exceeded the open quantity.
func (r MatchResult) Short() bool {
	return r.Unmatched.IsPositive()
}

// MatchFIFO consumes lots oldest first until quantity is covered or the lots run out.
// Lots are ordered by timestamp, then id, regardless of the input order.
// Any quantity left over is reported as Unmatched.
func MatchFIFO(lots []Lot, quantity, exitPrice decimal.Decimal) MatchResult {
	ordered := slices.Clone(lots)
	slices.SortStableFunc(ordered, func(a, b Lot) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	result := MatchResult{
		Matched:            decimal.Zero,
		Unmatched:          decimal.Zero,
		RealizedPnl:        decimal.Zero,
		WeightedEntryPrice: decimal.Zero,
	}
	remaining := quantity
	numerator := decimal.Zero

	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}

		matched := decimal.Min(remaining, lot.Remaining)
		pnl := exitPrice.Sub(lot.EntryPrice).Mul(matched)

		result.Fills = append(result.Fills, Fill{
			LotID:          lot.ID,
			Quantity:       matched,
			EntryPrice:     lot.EntryPrice,
			RemainingAfter: lot.Remaining.Sub(matched),
			RealizedPnl:    pnl,
		})
		result.RealizedPnl = result.RealizedPnl.Add(pnl)
		result.Matched = result.Matched.Add(matched)
		numerator = numerator.Add(lot.EntryPrice.Mul(matched))
		remaining = remaining.Sub(matched)
	}

	if result.Matched.IsPositive() {
		result.WeightedEntryPrice = numerator.Div(result.Matched)
	}
	if remaining.IsPositive() {
		result.Unmatched = remaining
	}

	return result
}
