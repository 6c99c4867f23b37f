package models

import "github.com/shopspring/decimal"

// PositionWithPnL is a position valued at live prices, as shown to the agent
// and stored inside snapshots.
type PositionWithPnL struct {
	Symbol        string  `json:"symbol"`
	Balance       string  `json:"balance"`
	RawBalance    string  `json:"rawBalance"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	TotalInvested float64 `json:"totalInvested"`
	CurrentValue  float64 `json:"currentValue"`
	Price         float64 `json:"price"`
	USDValue      float64 `json:"usd_value"`
	PnlUSD        float64 `json:"pnl_usd"`
	PnlPercent    float64 `json:"pnl_percent"`
}

// MarketPrice is one ticker returned by the price source.
type MarketPrice struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	PriceChange        float64 `json:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quoteVolume"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	OpenPrice          float64 `json:"openPrice"`
	Trades             int64   `json:"trades"`
}

// TokenBalance is an on-chain holding of a catalogued token.
type TokenBalance struct {
	AssetID   string          `json:"assetId"`
	Symbol    string          `json:"symbol"`
	Balance   string          `json:"balance"`
	Decimals  int32           `json:"decimals"`
	Formatted decimal.Decimal `json:"balanceFormatted"`
}

// Quote is a swap quote returned by the agent's tooling and executed on-chain.
type Quote struct {
	OriginAsset        string `json:"originAsset"`
	DestinationAsset   string `json:"destinationAsset"`
	AmountIn           string `json:"amountIn"`
	AmountInFormatted  string `json:"amountInFormatted"`
	AmountOut          string `json:"amountOut"`
	AmountOutFormatted string `json:"amountOutFormatted"`
	MinAmountOut       string `json:"minAmountOut"`
	DepositAddress     string `json:"depositAddress"`
	Deadline           string `json:"deadline"`
	TimeEstimate       int64  `json:"timeEstimate"`
	Signature          string `json:"signature"`
	Timestamp          string `json:"timestamp"`
}
