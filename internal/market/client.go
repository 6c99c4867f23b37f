package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/httpx"
	"trading-agent-ledger/internal/models"

	"go.uber.org/zap"
)

// PriceSource returns live prices for ticker symbols.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) ([]models.MarketPrice, error)
}

// Client fetches prices from the market-overview API.
type Client struct {
	http     *httpx.Client
	logger   *zap.Logger
	endpoint string
	symbols  []string
}

// ensure Client implements the interface
var _ PriceSource = (*Client)(nil)

// NewClient creates a market-overview client.
func NewClient(cfg *config.Market, logger *zap.Logger) *Client {
	l := logger.Named("market")
	return &Client{
		http:     httpx.New("", cfg.RateLimit, cfg.RateLimitBurst, l),
		logger:   l,
		endpoint: cfg.BaseURL,
		symbols:  cfg.Symbols,
	}
}

type overviewResponse struct {
	Success bool                 `json:"success"`
	Data    []models.MarketPrice `json:"data"`
	Error   string               `json:"error,omitempty"`
}

// GetPrices fetches the tickers for symbols; an empty list requests the configured defaults.
func (c *Client) GetPrices(ctx context.Context, symbols []string) ([]models.MarketPrice, error) {
	if len(symbols) == 0 {
		symbols = c.symbols
	}

	var result overviewResponse
	req := c.http.R().
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetHeader("Accept", "application/json").
		SetResult(&result)

	if _, err := c.http.Do(ctx, http.MethodGet, c.endpoint, req); err != nil {
		return nil, fmt.Errorf("failed to get market prices: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("market overview unsuccessful: %s", result.Error)
	}

	return result.Data, nil
}

// Overview renders prices as the indented JSON block shown to the agent.
func Overview(prices []models.MarketPrice) string {
	if len(prices) == 0 {
		return "Market overview unavailable"
	}
	data, err := json.MarshalIndent(prices, "", "  ")
	if err != nil {
		return "Market overview unavailable"
	}
	return string(data)
}

// PriceFor returns the price of asset in prices, or 0 when it is not quoted.
func PriceFor(prices []models.MarketPrice, asset string) float64 {
	if NormalizeAsset(asset) == USDC {
		return 1
	}
	symbol := MarketSymbol(asset)
	if symbol == "" {
		return 0
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return p.Price
		}
	}
	return 0
}
