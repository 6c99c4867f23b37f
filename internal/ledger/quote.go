package ledger

import (
	"fmt"

	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// QuoteTrade is the ledger entry implied by an executed swap quote.
type QuoteTrade struct {
	Type      models.TradeType
	Asset     string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	AmountUSD decimal.Decimal
}

// TradeFromQuote derives the trade for a swap against USDC.
// Spending USDC is a BUY of the destination asset; receiving it is a SELL of the origin asset.
func TradeFromQuote(q models.Quote) (QuoteTrade, error) {
	origin, ok := market.LookupToken(q.OriginAsset)
	if !ok {
		return QuoteTrade{}, fmt.Errorf("%w: unknown origin asset %q", ErrInvalidTrade, q.OriginAsset)
	}
	destination, ok := market.LookupToken(q.DestinationAsset)
	if !ok {
		return QuoteTrade{}, fmt.Errorf("%w: unknown destination asset %q", ErrInvalidTrade, q.DestinationAsset)
	}

	amountIn, err := decimal.NewFromString(q.AmountInFormatted)
	if err != nil {
		return QuoteTrade{}, fmt.Errorf("%w: amount in %q: %v", ErrInvalidTrade, q.AmountInFormatted, err)
	}
	amountOut, err := decimal.NewFromString(q.AmountOutFormatted)
	if err != nil {
		return QuoteTrade{}, fmt.Errorf("%w: amount out %q: %v", ErrInvalidTrade, q.AmountOutFormatted, err)
	}
	if !amountIn.IsPositive() || !amountOut.IsPositive() {
		return QuoteTrade{}, fmt.Errorf("%w: quote amounts must be positive", ErrInvalidTrade)
	}

	if origin.Symbol == market.USDC {
		return QuoteTrade{
			Type:      models.TradeTypeBuy,
			Asset:     market.NormalizeAsset(destination.Symbol),
			Quantity:  amountOut,
			Price:     amountIn.Div(amountOut),
			AmountUSD: amountIn,
		}, nil
	}

	if destination.Symbol != market.USDC {
		return QuoteTrade{}, fmt.Errorf("%w: swap %s to %s is not against %s",
			ErrInvalidTrade, origin.Symbol, destination.Symbol, market.USDC)
	}

	return QuoteTrade{
		Type:      models.TradeTypeSell,
		Asset:     market.NormalizeAsset(origin.Symbol),
		Quantity:  amountIn,
		Price:     amountOut.Div(amountIn),
		AmountUSD: amountOut,
	}, nil
}
