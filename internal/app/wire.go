package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/notify"
	"github.com/alanyoungcy/tradesim/internal/platform/gomarket"
	"github.com/alanyoungcy/tradesim/internal/server/ws"
	"github.com/alanyoungcy/tradesim/internal/service"
	"github.com/alanyoungcy/tradesim/internal/simulator"
)

// Dependencies bundles every component that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Metrics   *metrics.Registry
	Simulator *simulator.Simulator

	// Hub is nil in headless mode.
	Hub *ws.Hub

	// Publisher is nil unless Redis is enabled.
	Publisher *service.Publisher

	// Notifier and FeedAlerts are nil unless an alert channel is configured.
	Notifier   *notify.Notifier
	FeedAlerts *notify.FeedAlerts

	StartedAt time.Time
}

// needsServer returns true for modes that expose the HTTP control surface.
func needsServer(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{
		Metrics:   metrics.NewRegistry(cfg.Metrics.RuntimeCollectors),
		StartedAt: time.Now().UTC(),
	}

	// Outputs and stats are fanned out to sinks that are appended below, once
	// the simulator they depend on exists.
	outputs := &domain.OutputHandlers{deps.Metrics}
	stats := &domain.StatsHandlers{}

	// The feed URL may carry credentials; only the redacted form is logged or
	// sent in alerts.
	feedDisplayURL := config.RedactURL(cfg.Feed.URL)

	// --- Feed alerts ---
	var feedObserver gomarket.FeedObserver = deps.Metrics
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.FeedAlerts = notify.NewFeedAlerts(deps.Notifier, feedDisplayURL)
		feedObserver = gomarket.FeedObservers{deps.Metrics, deps.FeedAlerts}
	}

	// --- Simulator + feed ---
	feedCfg := gomarket.Config{
		URL:              cfg.Feed.URL,
		DisplayURL:       feedDisplayURL,
		InitialBackoff:   cfg.Feed.InitialBackoff.Duration,
		MaxBackoff:       cfg.Feed.MaxBackoff.Duration,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout.Duration,
	}
	newFeed := func(h domain.OrderbookHandler) simulator.Feed {
		return gomarket.NewWSClient(feedCfg, h, feedObserver, logger)
	}

	params := cfg.SimulatorParams()
	impact := cfg.ImpactParams()
	sim, err := simulator.New(newFeed, simulator.Options{
		HistoryWindow:   cfg.Feed.HistoryWindow,
		ScheduleSteps:   cfg.Model.ScheduleSteps,
		Impact:          &impact,
		Params:          &params,
		OnStats:         stats,
		OnOutput:        outputs,
		LatencyObserver: deps.Metrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: simulator: %w", err)
	}
	deps.Simulator = sim
	closers = append(closers, sim.Stop)

	// --- WebSocket hub (only for modes that serve HTTP) ---
	if needsServer(mode) {
		deps.Hub = ws.NewHub(sim, logger, ws.Config{
			Mode:           mode,
			StartedAt:      deps.StartedAt,
			AllowedOrigins: cfg.Server.CORSOrigins,
		})
		*outputs = append(*outputs, deps.Hub)
		*stats = append(*stats, deps.Hub)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Publisher = service.NewPublisher(
			redis.NewSignalBus(redisClient),
			redis.NewOutputCache(redisClient),
			service.PublisherConfig{
				Channel:   cfg.Redis.Channel,
				TTL:       cfg.Redis.OutputTTL.Duration,
				QueueSize: cfg.Redis.QueueSize,
			},
			deps.Metrics,
			logger,
		)
		*outputs = append(*outputs, deps.Publisher)
	}

	if mode == "headless" {
		outLogger := logger.With(slog.String("component", "output"))
		*outputs = append(*outputs, domain.OutputHandlerFunc(func(out domain.SimulatorOutput) {
			outLogger.Debug("simulator output",
				slog.String("session_id", out.SessionID),
				slog.Float64("slippage", out.ExpectedSlippage),
				slog.Float64("fees", out.ExpectedFees),
				slog.Float64("market_impact", out.ExpectedMarketImpact),
				slog.Float64("net_cost", out.NetCost),
				slog.Float64("maker_proportion", out.MakerProportion),
				slog.Duration("latency", out.InternalLatency),
			)
		}))
	}

	return deps, cleanup, nil
}
