// Package config loads the engine configuration from YAML, a .env file and
// BOT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/usecase"
)

type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Trading   TradingConfig   `yaml:"trading"`
	Notify    NotifyConfig    `yaml:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Redis     RedisConfig     `yaml:"redis"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Reports   ReportsConfig   `yaml:"reports"`
	Logging   LoggingConfig   `yaml:"logging"`
	DryRun    bool            `yaml:"dry_run"`
}

type ExchangeConfig struct {
	APIKey       string              `yaml:"api_key"`
	APISecret    string              `yaml:"api_secret"`
	Testnet      bool                `yaml:"testnet"`
	RESTEndpoint string              `yaml:"rest_endpoint"`
	WSEndpoint   string              `yaml:"ws_endpoint"`
	Interval     string              `yaml:"interval"`
	QuoteAsset   string              `yaml:"quote_asset"`
	Instruments  []domain.Instrument `yaml:"instruments"`
}

type TradingConfig struct {
	Symbols          []string           `yaml:"symbols"`
	Leverage         int                `yaml:"leverage"`
	InitialBalance   float64            `yaml:"initial_balance"`
	UseLiveBalance   bool               `yaml:"use_live_balance"`
	MaxRetries       int                `yaml:"max_retries"`
	RetryBackoff     time.Duration      `yaml:"retry_backoff"`
	PollInterval     time.Duration      `yaml:"poll_interval"`
	ErrorBackoff     time.Duration      `yaml:"error_backoff"`
	ATRPeriod        int                `yaml:"atr_period"`
	HistoryCandles   int                `yaml:"history_candles"`
	MaxCandles       int                `yaml:"max_candles"`
	BreakevenTrigger float64            `yaml:"breakeven_trigger"`
	BreakevenRetries int                `yaml:"breakeven_retries"`
	BreakevenBackoff time.Duration      `yaml:"breakeven_backoff"`
	FeeRate          float64            `yaml:"fee_rate"`
	Timezone         string             `yaml:"timezone"`
	Risk             usecase.RiskParams `yaml:"risk"`
}

type NotifyConfig struct {
	DiscordWebhookURL string   `yaml:"discord_webhook_url"`
	TelegramToken     string   `yaml:"telegram_token"`
	TelegramChatID    string   `yaml:"telegram_chat_id"`
	Events            []string `yaml:"events"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ServerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type JournalConfig struct {
	// Path of the SQLite file. Empty keeps the journal in memory.
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockKey  string        `yaml:"lock_key"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type ReportsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Testnet:    true,
			Interval:   usecase.DefaultCandleInterval,
			QuoteAsset: "USDT",
		},
		Trading: TradingConfig{
			Symbols:          []string{"BTCUSDT"},
			Leverage:         usecase.DefaultLeverage,
			InitialBalance:   usecase.DefaultInitialBalance,
			MaxRetries:       usecase.DefaultMaxRetries,
			RetryBackoff:     usecase.DefaultRetryBackoff,
			PollInterval:     usecase.DefaultPollInterval,
			ErrorBackoff:     usecase.DefaultErrorBackoff,
			ATRPeriod:        usecase.DefaultATRPeriod,
			HistoryCandles:   usecase.DefaultHistoryCandles,
			MaxCandles:       usecase.DefaultMaxCandles,
			BreakevenTrigger: usecase.DefaultBreakevenTrigger,
			BreakevenRetries: usecase.DefaultBreakevenMaxAttempts,
			BreakevenBackoff: usecase.DefaultBreakevenRetryInterval,
			FeeRate:          usecase.DefaultFeeRate,
			Timezone:         "Asia/Jakarta",
			Risk:             usecase.DefaultRiskParams(),
		},
		Metrics: MetricsConfig{Enabled: true},
		Server:  ServerConfig{Enabled: true, Port: 8000},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			LockKey: "binance-algo",
			LockTTL: 30 * time.Second,
		},
		Reconcile: ReconcileConfig{Interval: usecase.DefaultReconcileInterval},
		Reports:   ReportsConfig{Enabled: true, CheckInterval: usecase.DefaultSummaryCheck},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Location resolves Trading.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Trading.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Trading.Timezone)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("unknown logging.level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}

	if !c.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		errs = append(errs, "exchange: api_key and api_secret are required unless dry_run is set")
	}
	if c.Exchange.Interval == "" {
		errs = append(errs, "exchange: interval must not be empty")
	}

	t := c.Trading
	if len(t.Symbols) == 0 {
		errs = append(errs, "trading: at least one symbol is required")
	}
	seen := make(map[string]bool, len(t.Symbols))
	for _, s := range t.Symbols {
		if s != strings.ToUpper(strings.TrimSpace(s)) || s == "" {
			errs = append(errs, fmt.Sprintf("trading: symbol %q must be upper case", s))
		}
		if seen[s] {
			errs = append(errs, fmt.Sprintf("trading: duplicate symbol %q", s))
		}
		seen[s] = true
	}
	if t.Leverage < 1 || t.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("trading: leverage must be 1-125, got %d", t.Leverage))
	}
	if !t.UseLiveBalance && t.InitialBalance <= 0 {
		errs = append(errs, "trading: initial_balance must be positive")
	}
	if t.MaxRetries < 1 {
		errs = append(errs, "trading: max_retries must be >= 1")
	}
	if t.PollInterval <= 0 {
		errs = append(errs, "trading: poll_interval must be positive")
	}
	if t.ATRPeriod < 1 {
		errs = append(errs, "trading: atr_period must be >= 1")
	}
	if t.HistoryCandles <= t.ATRPeriod {
		errs = append(errs, fmt.Sprintf("trading: history_candles (%d) must exceed atr_period (%d)", t.HistoryCandles, t.ATRPeriod))
	}
	if t.MaxCandles < t.HistoryCandles {
		errs = append(errs, "trading: max_candles must be >= history_candles")
	}
	if t.BreakevenTrigger <= 0 || t.BreakevenTrigger >= 1 {
		errs = append(errs, "trading: breakeven_trigger must be in (0, 1)")
	}
	if t.BreakevenRetries < 1 {
		errs = append(errs, "trading: breakeven_retries must be >= 1")
	}
	if t.BreakevenBackoff <= 0 {
		errs = append(errs, "trading: breakeven_backoff must be positive")
	}
	if t.FeeRate < 0 {
		errs = append(errs, "trading: fee_rate must not be negative")
	}
	if t.Risk.BaseRiskPercent <= 0 || t.Risk.BaseRiskPercent > 1 {
		errs = append(errs, "trading.risk: base_risk_percent must be in (0, 1]")
	}
	if t.Risk.VolatilityScale < 0 {
		errs = append(errs, "trading.risk: volatility_scale must not be negative")
	}
	if t.Risk.MinQuantity <= 0 {
		errs = append(errs, "trading.risk: min_quantity must be positive")
	}
	if t.Risk.StopATRMultiple <= 0 || t.Risk.TargetATRMultiple <= 0 {
		errs = append(errs, "trading.risk: stop and target ATR multiples must be positive")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("trading: timezone: %v", err))
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.LockTTL < 3*time.Second {
			errs = append(errs, "redis: lock_ttl must be at least 3s")
		}
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		errs = append(errs, "reconcile: interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	redact(&c.Exchange.APIKey)
	redact(&c.Exchange.APISecret)
	redact(&c.Notify.DiscordWebhookURL)
	redact(&c.Notify.TelegramToken)
	redact(&c.Redis.Password)
	return c
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
