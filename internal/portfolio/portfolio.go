package portfolio

import (
	"fmt"
	"strconv"
	"strings"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/ledger"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Valuation is the account's open positions marked to live prices.
type Valuation struct {
	Open         []ledger.Position
	Positions    []models.PositionWithPnL
	TradingValue float64
	USDCValue    float64
	TotalUSD     float64
	TotalPnl     float64
	PnlPercent   float64
}

// Valuate marks open positions to prices and adds the idle USDC balance.
// On-chain balances only supply the raw amounts quoted back to the agent.
func Valuate(open []ledger.Position, prices []models.MarketPrice, balances []models.TokenBalance) Valuation {
	v := Valuation{
		Open:      open,
		Positions: make([]models.PositionWithPnL, 0, len(open)+1),
	}

	trading := decimal.Zero
	pnl := decimal.Zero
	invested := decimal.Zero
	for _, p := range open {
		price := decimal.NewFromFloat(market.PriceFor(prices, p.Asset))
		value, pnlUSD, pnlPercent := p.PnL(price)

		trading = trading.Add(value)
		pnl = pnl.Add(pnlUSD)
		invested = invested.Add(p.TotalInvested)

		v.Positions = append(v.Positions, models.PositionWithPnL{
			Symbol:        p.Asset,
			Balance:       p.Quantity.StringFixed(6),
			RawBalance:    rawBalance(balances, p.Asset),
			Quantity:      p.Quantity.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  price.InexactFloat64(),
			TotalInvested: p.TotalInvested.InexactFloat64(),
			CurrentValue:  value.InexactFloat64(),
			Price:         price.InexactFloat64(),
			USDValue:      value.InexactFloat64(),
			PnlUSD:        pnlUSD.InexactFloat64(),
			PnlPercent:    pnlPercent.InexactFloat64(),
		})
	}

	if usdc, ok := findBalance(balances, market.USDC); ok && usdc.Formatted.IsPositive() {
		v.USDCValue = usdc.Formatted.InexactFloat64()
		v.Positions = append(v.Positions, usdcPosition(usdc))
	}

	v.TradingValue = trading.InexactFloat64()
	v.TotalUSD = trading.Add(decimal.NewFromFloat(v.USDCValue)).InexactFloat64()
	v.TotalPnl = pnl.InexactFloat64()
	if invested.IsPositive() {
		v.PnlPercent = pnl.Div(invested).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return v
}

func usdcPosition(b models.TokenBalance) models.PositionWithPnL {
	value := b.Formatted.InexactFloat64()
	return models.PositionWithPnL{
		Symbol:        market.USDC,
		Balance:       b.Formatted.StringFixed(6),
		RawBalance:    b.Balance,
		Quantity:      value,
		AvgEntryPrice: 1,
		CurrentPrice:  1,
		TotalInvested: value,
		CurrentValue:  value,
		Price:         1,
		USDValue:      value,
	}
}

func findBalance(balances []models.TokenBalance, asset string) (models.TokenBalance, bool) {
	for _, b := range balances {
		if market.NormalizeAsset(b.Symbol) == asset {
			return b, true
		}
	}
	return models.TokenBalance{}, false
}

func rawBalance(balances []models.TokenBalance, asset string) string {
	if b, ok := findBalance(balances, asset); ok {
		return b.Balance
	}
	return "0"
}

// minQuotedRawBalance hides positions too small to close through a quote.
const minQuotedRawBalance = 1000

// BuildPrompt renders the context the agent decides on.
func BuildPrompt(v Valuation, marketOverview string, strategy config.Strategy) string {
	var b strings.Builder

	b.WriteString("=== PORTFOLIO DATA ===\n")
	fmt.Fprintf(&b, "TOTAL VALUE: $%.2f | OVERALL PNL: %s$%.2f (%s%.2f%%)\n\n",
		v.TotalUSD, sign(v.TotalPnl), v.TotalPnl, sign(v.PnlPercent), v.PnlPercent)

	b.WriteString("OPEN POSITIONS:\n")
	usdcValue, usdcRaw := 0.0, "0"
	for _, p := range v.Positions {
		if p.Symbol == market.USDC {
			usdcValue, usdcRaw = p.USDValue, p.RawBalance
			continue
		}
		if raw, err := strconv.ParseFloat(p.RawBalance, 64); err != nil || raw < minQuotedRawBalance {
			continue
		}
		fmt.Fprintf(&b, "%s: %s tokens (RAW: %s) @ entry $%.4f | Current $%.4f | Value: $%.2f | PNL: %s$%.2f (%s%.1f%%)\n",
			p.Symbol, p.Balance, p.RawBalance, p.AvgEntryPrice, p.CurrentPrice, p.USDValue,
			sign(p.PnlUSD), p.PnlUSD, sign(p.PnlPercent), p.PnlPercent)
	}
	fmt.Fprintf(&b, "\nAVAILABLE USDC: $%.2f (RAW: %s)\n\n", usdcValue, usdcRaw)

	b.WriteString("=== MARKET DATA ===\n")
	b.WriteString(marketOverview)
	b.WriteString("\n\n=== NEP141 ASSET IDS ===\n")
	for _, t := range market.TokenList {
		fmt.Fprintf(&b, "%s: %q\n", t.Symbol, t.AssetID)
	}

	b.WriteString("\n=== TRADING STRATEGY: 3-STEP DECISION PROCESS ===\n")
	b.WriteString(strategy.Overview)
	b.WriteString("\n\nSTEP 1: PORTFOLIO RISK MANAGEMENT\n")
	b.WriteString(strategy.Step1Rules)
	fmt.Fprintf(&b, "\n- Profit target: +%g%%\n- Stop loss: %g%%\n", strategy.ProfitTarget, strategy.StopLoss)
	b.WriteString("- If exit criteria met, call the quote tool to sell for USDC\n")
	b.WriteString("\nSTEP 2: MARKET OPPORTUNITY ANALYSIS\n")
	b.WriteString(strategy.Step2Rules)
	b.WriteString("\n\nSTEP 3: POSITION SIZING & EXECUTION\n")
	b.WriteString(strategy.Step3Rules)
	fmt.Fprintf(&b, "\n- Position sizing: %s\n- Max positions: %d open at once\n", strategy.PositionSize, strategy.MaxPositions)

	b.WriteString("\n=== EXECUTION RULES ===\n")
	b.WriteString("- All trading goes through the USDC base pair\n")
	b.WriteString("- Quote amounts use the RAW balances above\n")
	b.WriteString("- SELLING raw balances:\n")
	for _, p := range v.Positions {
		fmt.Fprintf(&b, "  %s: %s\n", p.Symbol, p.RawBalance)
	}

	return b.String()
}

func sign(f float64) string {
	if f >= 0 {
		return "+"
	}
	return ""
}
