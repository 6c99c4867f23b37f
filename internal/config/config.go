package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Account   Account   `mapstructure:"account"`
	Database  Database  `mapstructure:"database"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	API       API       `mapstructure:"api"`
	Trading   Trading   `mapstructure:"trading"`
	Market    Market    `mapstructure:"market"`
	Agent     Agent     `mapstructure:"agent"`
	Chain     Chain     `mapstructure:"chain"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	Events    Events    `mapstructure:"events"`
	Tracing   Tracing   `mapstructure:"tracing"`
	Strategy  Strategy  `mapstructure:"strategy"`
}

// Account identifies the trading account whose ledger is managed.
type Account struct {
	ID string `mapstructure:"id"`
}

// Database holds the configuration for the ledger store.
// An empty DSN runs the agent without persistence.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the dashboard web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// API holds the configuration for the trader's control API.
type API struct {
	Port       int    `mapstructure:"port"`
	CronSecret string `mapstructure:"cron_secret"`
}

// Trading holds the configuration for the trading cycle.
type Trading struct {
	DryRun        bool          `mapstructure:"dry_run"`
	RunOnce       bool          `mapstructure:"run_once"`
	TickInterval  int           `mapstructure:"tick_interval"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	DustThreshold float64       `mapstructure:"dust_threshold"`
}

// Market holds the configuration for the price source.
type Market struct {
	BaseURL        string   `mapstructure:"base_url"`
	Symbols        []string `mapstructure:"symbols"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// Agent holds the configuration for the decision agent.
type Agent struct {
	URL     string `mapstructure:"url"`
	ApiKey  string `mapstructure:"apiKey"`
	AgentID string `mapstructure:"agent_id"`
}

// Chain holds the configuration for the on-chain client.
type Chain struct {
	RPCURL     string `mapstructure:"rpc_url"`
	ContractID string `mapstructure:"contract_id"`
	SignerURL  string `mapstructure:"signer_url"`
}

// Dashboard holds the read-side reconstruction settings.
type Dashboard struct {
	ChartPoints     int           `mapstructure:"chart_points"`
	TradeLimit      int           `mapstructure:"trade_limit"`
	ReasoningWindow time.Duration `mapstructure:"reasoning_window"`
}

// Events holds the configuration for trade event publishing.
type Events struct {
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// Tracing toggles the stdout span exporter.
type Tracing struct {
	Enabled bool `mapstructure:"enabled"`
}

// Strategy is the rule set handed to the agent with every prompt.
type Strategy struct {
	Overview     string  `mapstructure:"overview"`
	ProfitTarget float64 `mapstructure:"profit_target"`
	StopLoss     float64 `mapstructure:"stop_loss"`
	MaxPositions int     `mapstructure:"max_positions"`
	PositionSize string  `mapstructure:"position_size"`
	Step1Rules   string  `mapstructure:"step1_rules"`
	Step2Rules   string  `mapstructure:"step2_rules"`
	Step3Rules   string  `mapstructure:"step3_rules"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account.id", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.cron_secret", "")

	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.run_once", false)
	v.SetDefault("trading.tick_interval", 900)
	v.SetDefault("trading.settle_delay", 20*time.Second)
	v.SetDefault("trading.dust_threshold", 0.0001)

	v.SetDefault("market.base_url", "https://trading-agent-kappa.vercel.app/api/tools/market-overview")
	v.SetDefault("market.symbols", []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "NEARUSDT",
		"ARBUSDT", "SUIUSDT", "PEPEUSDT", "WIFUSDT",
	})
	v.SetDefault("market.rate_limit", 5)       // requests per second
	v.SetDefault("market.rate_limit_burst", 2) // burst size

	v.SetDefault("agent.url", "")
	v.SetDefault("agent.apiKey", "")
	v.SetDefault("agent.agent_id", "trading-agent-kappa.vercel.app")

	v.SetDefault("chain.rpc_url", "https://free.rpc.fastnear.com")
	v.SetDefault("chain.contract_id", "intents.near")
	v.SetDefault("chain.signer_url", "")

	v.SetDefault("dashboard.chart_points", 500)
	v.SetDefault("dashboard.trade_limit", 100)
	v.SetDefault("dashboard.reasoning_window", time.Hour)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", "ledger.trades")

	v.SetDefault("tracing.enabled", false)

	v.SetDefault("strategy.overview", "Wall Street 3-Step: Data-driven day trading with clear profit/loss targets and risk management")
	v.SetDefault("strategy.profit_target", 2)
	v.SetDefault("strategy.stop_loss", -1.5)
	v.SetDefault("strategy.max_positions", 4)
	v.SetDefault("strategy.position_size", "5-15% of USDC")
	v.SetDefault("strategy.step1_rules", "Risk targets: SELL at +2% profit OR -1.5% loss. Close losing positions faster than winners. Don't close positions with raw balance below 1000.")
	v.SetDefault("strategy.step2_rules", "Screen for high-probability setups: price momentum >3% with volume confirmation, fear/greed extremes, order book imbalances. Only trade clear directional moves.")
	v.SetDefault("strategy.step3_rules", "Dynamic sizing: 5-15% per trade. Size calculation: Min($10, Max($5, USDC_balance * 0.10)). Minimum $8 positions. Max 3-4 open positions at once.")
}
