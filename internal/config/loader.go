package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "TRADESIM_FEED_URL")
	setDuration(&cfg.Feed.InitialBackoff, "TRADESIM_FEED_INITIAL_BACKOFF")
	setDuration(&cfg.Feed.MaxBackoff, "TRADESIM_FEED_MAX_BACKOFF")
	setDuration(&cfg.Feed.HandshakeTimeout, "TRADESIM_FEED_HANDSHAKE_TIMEOUT")
	setDuration(&cfg.Feed.MaxIdle, "TRADESIM_FEED_MAX_IDLE")
	setInt(&cfg.Feed.HistoryWindow, "TRADESIM_FEED_HISTORY_WINDOW")

	// ── Model ──
	setFloat64(&cfg.Model.PermanentImpact, "TRADESIM_MODEL_PERMANENT_IMPACT")
	setFloat64(&cfg.Model.TemporaryImpact, "TRADESIM_MODEL_TEMPORARY_IMPACT")
	setFloat64(&cfg.Model.TimeHorizon, "TRADESIM_MODEL_TIME_HORIZON")
	setFloat64(&cfg.Model.RiskAversion, "TRADESIM_MODEL_RISK_AVERSION")
	setInt(&cfg.Model.ScheduleSteps, "TRADESIM_MODEL_SCHEDULE_STEPS")

	// ── Simulator ──
	setStr(&cfg.Simulator.Exchange, "TRADESIM_SIMULATOR_EXCHANGE")
	setStr(&cfg.Simulator.Symbol, "TRADESIM_SIMULATOR_SYMBOL")
	setStr(&cfg.Simulator.OrderType, "TRADESIM_SIMULATOR_ORDER_TYPE")
	setFloat64(&cfg.Simulator.Quantity, "TRADESIM_SIMULATOR_QUANTITY")
	setFloat64(&cfg.Simulator.Volatility, "TRADESIM_SIMULATOR_VOLATILITY")
	setInt(&cfg.Simulator.FeeTier, "TRADESIM_SIMULATOR_FEE_TIER")
	setBool(&cfg.Simulator.AutoStart, "TRADESIM_SIMULATOR_AUTO_START")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADESIM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.OutputTTL, "TRADESIM_REDIS_OUTPUT_TTL")
	setStr(&cfg.Redis.Channel, "TRADESIM_REDIS_CHANNEL")
	setInt(&cfg.Redis.QueueSize, "TRADESIM_REDIS_QUEUE_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADESIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADESIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADESIM_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "TRADESIM_SERVER_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "TRADESIM_SERVER_RATE_LIMIT_BURST")

	// ── Metrics ──
	setBool(&cfg.Metrics.RuntimeCollectors, "TRADESIM_METRICS_RUNTIME_COLLECTORS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADESIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADESIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADESIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADESIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADESIM_MODE")
	setStr(&cfg.LogLevel, "TRADESIM_LOG_LEVEL")
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
