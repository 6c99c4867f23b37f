package market

import "strings"

// Token describes an asset tradable through the intents contract.
type Token struct {
	AssetID    string
	Symbol     string
	Decimals   int32
	Blockchain string
}

// USDC is the quote currency every position is valued against.
const USDC = "USDC"

// TokenList is the catalogue of assets the agent may hold.
var TokenList = []Token{
	{AssetID: "nep141:wrap.near", Symbol: "wNEAR", Decimals: 24, Blockchain: "near"},
	{AssetID: "nep141:eth.omft.near", Symbol: "ETH", Decimals: 18, Blockchain: "eth"},
	{AssetID: "nep141:sui.omft.near", Symbol: "SUI", Decimals: 9, Blockchain: "sui"},
	{AssetID: "nep141:btc.omft.near", Symbol: "BTC", Decimals: 8, Blockchain: "btc"},
	{AssetID: "nep141:sol.omft.near", Symbol: "SOL", Decimals: 9, Blockchain: "sol"},
	{AssetID: "nep141:arb-0x912ce59144191c1204e64559fe8253a0e49e6548.omft.near", Symbol: "ARB", Decimals: 18, Blockchain: "arb"},
	{AssetID: "nep141:base.omft.near", Symbol: "ETH", Decimals: 18, Blockchain: "base"},
	{AssetID: "nep245:v2_1.omni.hot.tg:43114_11111111111111111111", Symbol: "AVAX", Decimals: 18, Blockchain: "avax"},
	{AssetID: "nep141:nbtc.bridge.near", Symbol: "BTC", Decimals: 8, Blockchain: "near"},
	{AssetID: "nep245:v2_1.omni.hot.tg:10_11111111111111111111", Symbol: "ETH", Decimals: 18, Blockchain: "op"},
	{AssetID: "nep141:17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1", Symbol: USDC, Decimals: 6, Blockchain: "near"},
	{AssetID: "nep245:v2_1.omni.hot.tg:56_11111111111111111111", Symbol: "BNB", Decimals: 18, Blockchain: "bsc"},
	{AssetID: "nep245:v2_1.omni.hot.tg:56_12zbnsg6xndDVj25QyL82YMPudb", Symbol: "ASTER", Decimals: 18, Blockchain: "bsc"},
	{AssetID: "nep245:v2_1.omni.hot.tg:137_11111111111111111111", Symbol: "POL", Decimals: 18, Blockchain: "pol"},
}

var tokensByAssetID = func() map[string]Token {
	m := make(map[string]Token, len(TokenList))
	for _, t := range TokenList {
		m[t.AssetID] = t
	}
	return m
}()

// LookupToken returns the catalogued token for an asset id.
func LookupToken(assetID string) (Token, bool) {
	t, ok := tokensByAssetID[assetID]
	return t, ok
}

// wrappedAliases collapse wrapped tokens onto the asset they wrap.
var wrappedAliases = map[string]string{
	"wNEAR": "NEAR",
	"WNEAR": "NEAR",
}

// NormalizeAsset returns the canonical symbol for a token symbol.
func NormalizeAsset(symbol string) string {
	if canonical, ok := wrappedAliases[symbol]; ok {
		return canonical
	}
	return symbol
}

// symbolMap maps canonical assets to their USDT market.
var symbolMap = map[string]string{
	"BTC":   "BTCUSDT",
	"ETH":   "ETHUSDT",
	"SOL":   "SOLUSDT",
	"SUI":   "SUIUSDT",
	"ARB":   "ARBUSDT",
	"NEAR":  "NEARUSDT",
	"BNB":   "BNBUSDT",
	"OP":    "OPUSDT",
	"AVAX":  "AVAXUSDT",
	"POL":   "POLUSDT",
	"ASTER": "ASTERUSDT",
	"PEPE":  "PEPEUSDT",
	"WIF":   "WIFUSDT",
}

// MarketSymbol returns the ticker symbol quoting asset in USDT, or "" when unknown.
func MarketSymbol(asset string) string {
	canonical := NormalizeAsset(strings.TrimPrefix(asset, "$"))
	return symbolMap[canonical]
}

// MarketSymbols returns the distinct ticker symbols for assets, skipping unknown ones.
func MarketSymbols(assets []string) []string {
	seen := make(map[string]struct{}, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, asset := range assets {
		symbol := MarketSymbol(asset)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	return symbols
}
