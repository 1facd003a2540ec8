// Package config defines the top-level configuration for the trading bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIBOT_* environment variables.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Spot     SpotConfig     `toml:"spot"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Risk     RiskConfig     `toml:"risk"`
	Strategy StrategyConfig `toml:"strategy"`
	Executor ExecutorConfig `toml:"executor"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// KalshiConfig holds exchange API endpoints and credentials.
type KalshiConfig struct {
	ApiKeyID         string   `toml:"api_key_id"`
	BaseURL          string   `toml:"base_url"`
	WsURL            string   `toml:"ws_url"`
	PrivateKeyPath   string   `toml:"private_key_path"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Series           []string `toml:"series"`
}

// SpotConfig holds the spot price feed parameters.
type SpotConfig struct {
	WsURL      string   `toml:"ws_url"`
	Symbols    []string `toml:"symbols"`
	DefaultVol float64  `toml:"default_vol"`
	MaxStale   duration `toml:"max_stale"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for trade archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// RiskConfig holds the bankroll limit schedule. Every value is a fraction of
// the current bankroll.
type RiskConfig struct {
	PerTradePct   float64 `toml:"per_trade_pct"`
	PerStrikePct  float64 `toml:"per_strike_pct"`
	PerEventPct   float64 `toml:"per_event_pct"`
	TotalPct      float64 `toml:"total_pct"`
	CashBufferPct float64 `toml:"cash_buffer_pct"`
	DailyLossPct  float64 `toml:"daily_loss_pct"`
	WeeklyLossPct float64 `toml:"weekly_loss_pct"`
}

// StrategyConfig selects the strategies to run and their tuning.
type StrategyConfig struct {
	// Active is the list of strategy names to run concurrently.
	Active []string `toml:"active"`

	Momentum    MomentumConfig    `toml:"momentum"`
	FifteenMin  FifteenMinConfig  `toml:"fifteen_min"`
	MarketMaker MarketMakerConfig `toml:"market_maker"`
	Arbitrage   ArbitrageConfig   `toml:"arbitrage"`
}

// MomentumConfig holds config for the deep-ITM momentum scalp.
type MomentumConfig struct {
	Interval     duration `toml:"interval"`
	MinFair      float64  `toml:"min_fair"`
	MaxAskCents  int64    `toml:"max_ask_cents"`
	MinEdgeCents int64    `toml:"min_edge_cents"`
	MinDepth     int64    `toml:"min_depth"`
	MaxHours     float64  `toml:"max_hours"`
	Contracts    int64    `toml:"contracts"`
	TopN         int      `toml:"top_n"`
	SignalTTL    duration `toml:"signal_ttl"`
}

// FifteenMinConfig holds config for the short-expiry directional scalp.
type FifteenMinConfig struct {
	Interval     duration `toml:"interval"`
	Lookback     duration `toml:"lookback"`
	MaxBias      float64  `toml:"max_bias"`
	BiasScale    float64  `toml:"bias_scale"`
	MinEdgeCents int64    `toml:"min_edge_cents"`
	Contracts    int64    `toml:"contracts"`
	TopN         int      `toml:"top_n"`
	Cooldown     duration `toml:"cooldown"`
	SignalTTL    duration `toml:"signal_ttl"`
}

// MarketMakerConfig holds config for the ATM two-sided quoter.
type MarketMakerConfig struct {
	Interval        duration `toml:"interval"`
	MinVolume24h    int64    `toml:"min_volume_24h"`
	Wings           int      `toml:"wings"`
	SpreadCents     int64    `toml:"spread_cents"`
	QuoteContracts  int64    `toml:"quote_contracts"`
	MaxNetContracts int64    `toml:"max_net_contracts"`
	HedgeTrigger    int64    `toml:"hedge_trigger"`
	LeanCents       int64    `toml:"lean_cents"`
	RequoteInterval duration `toml:"requote_interval"`
	KillMovePct     float64  `toml:"kill_move_pct"`
	KillWindow      duration `toml:"kill_window"`
	KillPause       duration `toml:"kill_pause"`
	SignalTTL       duration `toml:"signal_ttl"`
}

// ArbitrageConfig holds config for the intra-ladder structure strategy.
type ArbitrageConfig struct {
	Interval          duration `toml:"interval"`
	MinProfitCents    int64    `toml:"min_profit_cents"`
	MaxContracts      int64    `toml:"max_contracts"`
	RangeSumThreshold int64    `toml:"range_sum_threshold"`
	SignalTTL         duration `toml:"signal_ttl"`
}

// ExecutorConfig holds order router tuning.
type ExecutorConfig struct {
	DedupTTL     duration `toml:"dedup_ttl"`
	LegGap       duration `toml:"leg_gap"`
	OrderPoll    duration `toml:"order_poll"`
	OrderTimeout duration `toml:"order_timeout"`
}

// LedgerConfig holds the cash ledger parameters.
type LedgerConfig struct {
	BankrollCents     int64    `toml:"bankroll_cents"`
	ReconcileInterval duration `toml:"reconcile_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
			Series:  []string{"KXBTCD", "KXETHD"},
		},
		Spot: SpotConfig{
			WsURL:      "wss://stream.binance.com:9443/ws",
			Symbols:    []string{"btcusdt", "ethusdt"},
			DefaultVol: 0.50,
			MaxStale:   duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "kalshibot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshibot-data",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Risk: RiskConfig{
			PerTradePct:   0.10,
			PerStrikePct:  0.15,
			PerEventPct:   0.30,
			TotalPct:      0.75,
			CashBufferPct: 0.25,
			DailyLossPct:  0.05,
			WeeklyLossPct: 0.10,
		},
		Strategy: StrategyConfig{
			Active: []string{"momentum", "fifteen_min"},
			Momentum: MomentumConfig{
				Interval:     duration{10 * time.Second},
				MinFair:      0.90,
				MaxAskCents:  93,
				MinEdgeCents: 3,
				MinDepth:     20,
				MaxHours:     8,
				Contracts:    10,
				TopN:         5,
				SignalTTL:    duration{15 * time.Second},
			},
			FifteenMin: FifteenMinConfig{
				Interval:     duration{10 * time.Second},
				Lookback:     duration{3 * time.Minute},
				MaxBias:      0.15,
				BiasScale:    20,
				MinEdgeCents: 2,
				Contracts:    10,
				TopN:         3,
				Cooldown:     duration{30 * time.Second},
				SignalTTL:    duration{10 * time.Second},
			},
			MarketMaker: MarketMakerConfig{
				Interval:        duration{3 * time.Second},
				MinVolume24h:    10_000,
				Wings:           1,
				SpreadCents:     4,
				QuoteContracts:  50,
				MaxNetContracts: 500,
				HedgeTrigger:    200,
				LeanCents:       1,
				RequoteInterval: duration{15 * time.Second},
				KillMovePct:     0.02,
				KillWindow:      duration{time.Minute},
				KillPause:       duration{5 * time.Minute},
				SignalTTL:       duration{20 * time.Second},
			},
			Arbitrage: ArbitrageConfig{
				Interval:          duration{5 * time.Second},
				MinProfitCents:    2,
				MaxContracts:      100,
				RangeSumThreshold: 95,
				SignalTTL:         duration{10 * time.Second},
			},
		},
		Executor: ExecutorConfig{
			DedupTTL:     duration{2 * time.Minute},
			LegGap:       duration{2 * time.Second},
			OrderPoll:    duration{time.Second},
			OrderTimeout: duration{30 * time.Second},
		},
		Ledger: LedgerConfig{
			BankrollCents:     100_000, // $1000 paper bankroll
			ReconcileInterval: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"kill_switch", "flatten_all", "ledger_drift", "leg_failure", "daily_summary"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":   true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStrategies enumerates the registrable strategy names.
var validStrategies = map[string]bool{
	"momentum":     true,
	"fifteen_min":  true,
	"market_maker": true,
	"arbitrage":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi — credentials are mandatory in live mode; paper mode only reads
	// public market data.
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.WsURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty")
	}
	if len(c.Kalshi.Series) == 0 {
		errs = append(errs, "kalshi: at least one series must be configured")
	}
	if strings.ToLower(c.Mode) == "live" {
		if c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required for live mode")
		}
		if c.Kalshi.PrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath == "" {
			errs = append(errs, "kalshi: either private_key_path or encrypted_key_path must be set for live mode")
		}
		if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
			errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
		}
	}

	// Spot feed
	if c.Spot.WsURL == "" {
		errs = append(errs, "spot: ws_url must not be empty")
	}
	if len(c.Spot.Symbols) == 0 {
		errs = append(errs, "spot: at least one symbol must be configured")
	}
	if c.Spot.DefaultVol <= 0 {
		errs = append(errs, "spot: default_vol must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	// Risk — each fraction must sit in (0, 1] and the schedule must tighten
	// from single trade up to total book.
	checkPct := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("risk: %s must be in (0, 1], got %g", name, v))
		}
	}
	checkPct("per_trade_pct", c.Risk.PerTradePct)
	checkPct("per_strike_pct", c.Risk.PerStrikePct)
	checkPct("per_event_pct", c.Risk.PerEventPct)
	checkPct("total_pct", c.Risk.TotalPct)
	checkPct("cash_buffer_pct", c.Risk.CashBufferPct)
	checkPct("daily_loss_pct", c.Risk.DailyLossPct)
	checkPct("weekly_loss_pct", c.Risk.WeeklyLossPct)
	if c.Risk.PerTradePct > c.Risk.PerStrikePct {
		errs = append(errs, "risk: per_trade_pct must not exceed per_strike_pct")
	}
	if c.Risk.PerStrikePct > c.Risk.PerEventPct {
		errs = append(errs, "risk: per_strike_pct must not exceed per_event_pct")
	}
	if c.Risk.PerEventPct > c.Risk.TotalPct {
		errs = append(errs, "risk: per_event_pct must not exceed total_pct")
	}
	if c.Risk.DailyLossPct > c.Risk.WeeklyLossPct {
		errs = append(errs, "risk: daily_loss_pct must not exceed weekly_loss_pct")
	}

	// Strategies
	if len(c.Strategy.Active) == 0 && strings.ToLower(c.Mode) != "monitor" {
		errs = append(errs, "strategy: at least one active strategy is required outside monitor mode")
	}
	for _, name := range c.Strategy.Active {
		if !validStrategies[name] {
			errs = append(errs, fmt.Sprintf("strategy: unknown strategy %q (valid: momentum, fifteen_min, market_maker, arbitrage)", name))
		}
	}

	// Ledger
	if c.Ledger.BankrollCents <= 0 {
		errs = append(errs, "ledger: bankroll_cents must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
