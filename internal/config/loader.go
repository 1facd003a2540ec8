package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKeyID, "KALSHIBOT_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "KALSHIBOT_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.PrivateKeyPath, "KALSHIBOT_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "KALSHIBOT_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "KALSHIBOT_KALSHI_KEY_PASSWORD")
	setStringSlice(&cfg.Kalshi.Series, "KALSHIBOT_KALSHI_SERIES")

	// ── Spot feed ──
	setStr(&cfg.Spot.WsURL, "KALSHIBOT_SPOT_WS_URL")
	setStringSlice(&cfg.Spot.Symbols, "KALSHIBOT_SPOT_SYMBOLS")
	setFloat64(&cfg.Spot.DefaultVol, "KALSHIBOT_SPOT_DEFAULT_VOL")
	setDuration(&cfg.Spot.MaxStale, "KALSHIBOT_SPOT_MAX_STALE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "KALSHIBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KALSHIBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KALSHIBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KALSHIBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KALSHIBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KALSHIBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KALSHIBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KALSHIBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KALSHIBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KALSHIBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "KALSHIBOT_S3_RETENTION_DAYS")

	// ── Risk ──
	setFloat64(&cfg.Risk.PerTradePct, "KALSHIBOT_RISK_PER_TRADE_PCT")
	setFloat64(&cfg.Risk.PerStrikePct, "KALSHIBOT_RISK_PER_STRIKE_PCT")
	setFloat64(&cfg.Risk.PerEventPct, "KALSHIBOT_RISK_PER_EVENT_PCT")
	setFloat64(&cfg.Risk.TotalPct, "KALSHIBOT_RISK_TOTAL_PCT")
	setFloat64(&cfg.Risk.CashBufferPct, "KALSHIBOT_RISK_CASH_BUFFER_PCT")
	setFloat64(&cfg.Risk.DailyLossPct, "KALSHIBOT_RISK_DAILY_LOSS_PCT")
	setFloat64(&cfg.Risk.WeeklyLossPct, "KALSHIBOT_RISK_WEEKLY_LOSS_PCT")

	// ── Strategy ──
	setStringSlice(&cfg.Strategy.Active, "KALSHIBOT_STRATEGY_ACTIVE")
	setInt64(&cfg.Strategy.Momentum.Contracts, "KALSHIBOT_STRATEGY_MOMENTUM_CONTRACTS")
	setInt64(&cfg.Strategy.FifteenMin.Contracts, "KALSHIBOT_STRATEGY_FIFTEEN_MIN_CONTRACTS")
	setInt64(&cfg.Strategy.MarketMaker.QuoteContracts, "KALSHIBOT_STRATEGY_MARKET_MAKER_QUOTE_CONTRACTS")
	setInt64(&cfg.Strategy.Arbitrage.MaxContracts, "KALSHIBOT_STRATEGY_ARBITRAGE_MAX_CONTRACTS")

	// ── Executor ──
	setDuration(&cfg.Executor.DedupTTL, "KALSHIBOT_EXECUTOR_DEDUP_TTL")
	setDuration(&cfg.Executor.LegGap, "KALSHIBOT_EXECUTOR_LEG_GAP")
	setDuration(&cfg.Executor.OrderPoll, "KALSHIBOT_EXECUTOR_ORDER_POLL")
	setDuration(&cfg.Executor.OrderTimeout, "KALSHIBOT_EXECUTOR_ORDER_TIMEOUT")

	// ── Ledger ──
	setInt64(&cfg.Ledger.BankrollCents, "KALSHIBOT_LEDGER_BANKROLL_CENTS")
	setDuration(&cfg.Ledger.ReconcileInterval, "KALSHIBOT_LEDGER_RECONCILE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "KALSHIBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "KALSHIBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "KALSHIBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "KALSHIBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KALSHIBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KALSHIBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KALSHIBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KALSHIBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
