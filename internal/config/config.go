// Package config defines the top-level configuration for the execution-cost
// simulator and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESIM_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Model     ModelConfig     `toml:"model"`
	Simulator SimulatorConfig `toml:"simulator"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig holds the L2 orderbook stream endpoint and reconnect policy.
type FeedConfig struct {
	URL              string   `toml:"url"`
	InitialBackoff   duration `toml:"initial_backoff"`
	MaxBackoff       duration `toml:"max_backoff"`
	HandshakeTimeout duration `toml:"handshake_timeout"` // 0 means no timeout
	MaxIdle          duration `toml:"max_idle"`
	HistoryWindow    int      `toml:"history_window"`
}

// ModelConfig holds the Almgren-Chriss coefficients. Volatility is not
// configured here; it follows simulator.volatility.
type ModelConfig struct {
	PermanentImpact float64 `toml:"permanent_impact"`
	TemporaryImpact float64 `toml:"temporary_impact"`
	TimeHorizon     float64 `toml:"time_horizon"`
	RiskAversion    float64 `toml:"risk_aversion"`
	ScheduleSteps   int     `toml:"schedule_steps"`
}

// SimulatorConfig holds the initial simulation parameters.
type SimulatorConfig struct {
	Exchange   string  `toml:"exchange"`
	Symbol     string  `toml:"symbol"`
	OrderType  string  `toml:"order_type"`
	Quantity   float64 `toml:"quantity"`
	Volatility float64 `toml:"volatility"`
	FeeTier    int     `toml:"fee_tier"`
	AutoStart  bool    `toml:"auto_start"`
}

// RedisConfig holds Redis connection and output fan-out parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	OutputTTL  duration `toml:"output_ttl"`
	Channel    string   `toml:"channel"`
	QueueSize  int      `toml:"queue_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	RuntimeCollectors bool `toml:"runtime_collectors"`
}

// NotifyConfig holds feed alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "1s", "60s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	impact := domain.DefaultAlmgrenChrissParams()
	params := domain.DefaultSimulatorParams()

	return Config{
		Feed: FeedConfig{
			URL:            "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP",
			InitialBackoff: duration{time.Second},
			MaxBackoff:     duration{60 * time.Second},
			MaxIdle:        duration{10 * time.Second},
			HistoryWindow:  100,
		},
		Model: ModelConfig{
			PermanentImpact: impact.PermanentImpactFactor,
			TemporaryImpact: impact.TemporaryImpactFactor,
			TimeHorizon:     impact.TimeHorizon,
			RiskAversion:    impact.RiskAversion,
			ScheduleSteps:   10,
		},
		Simulator: SimulatorConfig{
			Exchange:   params.Exchange,
			Symbol:     params.Symbol,
			OrderType:  params.OrderType,
			Quantity:   params.Quantity,
			Volatility: params.Volatility,
			FeeTier:    params.FeeTier,
			AutoStart:  true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			OutputTTL:  duration{time.Minute},
			Channel:    "ch:output",
			QueueSize:  256,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Metrics: MetricsConfig{
			RuntimeCollectors: true,
		},
		Notify: NotifyConfig{
			Events: []string{"feed_connected", "feed_disconnected"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// SimulatorParams converts the simulator section into domain parameters.
func (c *Config) SimulatorParams() domain.SimulatorParams {
	return domain.SimulatorParams{
		Exchange:   c.Simulator.Exchange,
		Symbol:     c.Simulator.Symbol,
		OrderType:  c.Simulator.OrderType,
		Quantity:   c.Simulator.Quantity,
		Volatility: c.Simulator.Volatility,
		FeeTier:    c.Simulator.FeeTier,
	}
}

// ImpactParams converts the model section into Almgren-Chriss parameters.
func (c *Config) ImpactParams() domain.AlmgrenChrissParams {
	return domain.AlmgrenChrissParams{
		PermanentImpactFactor: c.Model.PermanentImpact,
		TemporaryImpactFactor: c.Model.TemporaryImpact,
		Volatility:            c.Simulator.Volatility,
		TimeHorizon:           c.Model.TimeHorizon,
		RiskAversion:          c.Model.RiskAversion,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"headless": true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: headless, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("feed: url must be a ws:// or wss:// URL, got %q", c.Feed.URL))
	}
	if c.Feed.InitialBackoff.Duration <= 0 {
		errs = append(errs, "feed: initial_backoff must be > 0")
	}
	if c.Feed.MaxBackoff.Duration < c.Feed.InitialBackoff.Duration {
		errs = append(errs, "feed: max_backoff must not be less than initial_backoff")
	}
	if c.Feed.HandshakeTimeout.Duration < 0 {
		errs = append(errs, "feed: handshake_timeout must be >= 0")
	}
	if c.Feed.MaxIdle.Duration <= 0 {
		errs = append(errs, "feed: max_idle must be > 0")
	}
	if c.Feed.HistoryWindow < 2 {
		errs = append(errs, "feed: history_window must be >= 2")
	}

	// Model
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"permanent_impact", c.Model.PermanentImpact},
		{"temporary_impact", c.Model.TemporaryImpact},
		{"time_horizon", c.Model.TimeHorizon},
		{"risk_aversion", c.Model.RiskAversion},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Sprintf("model: %s must be finite", f.name))
		}
	}
	if c.Model.PermanentImpact < 0 || c.Model.TemporaryImpact < 0 {
		errs = append(errs, "model: impact factors must be >= 0")
	}
	if c.Model.TimeHorizon <= 0 {
		errs = append(errs, "model: time_horizon must be > 0")
	}
	if c.Model.RiskAversion < 0 {
		errs = append(errs, "model: risk_aversion must be >= 0")
	}
	if c.Model.ScheduleSteps < 1 {
		errs = append(errs, "model: schedule_steps must be >= 1")
	}

	// Simulator
	if err := c.SimulatorParams().Validate(); err != nil {
		errs = append(errs, "simulator: "+err.Error())
	}

	// Redis is required in full mode.
	if mode == "full" && !c.Redis.Enabled {
		errs = append(errs, "redis: enabled must be true for mode full")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.Channel == "" {
			errs = append(errs, "redis: channel must not be empty")
		}
		if c.Redis.QueueSize < 1 {
			errs = append(errs, "redis: queue_size must be >= 1")
		}
		if c.Redis.OutputTTL.Duration < 0 {
			errs = append(errs, "redis: output_ttl must be >= 0")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server: rate_limit_rps must be >= 0")
		}
		if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server: rate_limit_burst must be >= 1 when rate limiting is enabled")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
