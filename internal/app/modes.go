package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesim/internal/server"
	"github.com/alanyoungcy/tradesim/internal/server/handler"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// HeadlessMode runs the feed and simulator only. Outputs go to the metrics
// registry, the debug log and, when enabled, Redis.
func (a *App) HeadlessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting headless mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startPublisher(ctx, g, deps)
	a.runSimulator(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the simulator behind the HTTP control surface and the
// WebSocket output stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startPublisher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.runSimulator(ctx, g, deps)

	return g.Wait()
}

// FullMode is server mode with the Redis publisher required.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if deps.Publisher == nil {
		return fmt.Errorf("full mode: redis publisher not wired")
	}
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("channel", a.cfg.Redis.Channel),
	)
	return a.ServerMode(ctx, deps)
}

// runSimulator starts the simulator when configured to and stops it once ctx
// is cancelled.
func (a *App) runSimulator(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sim := deps.Simulator
	if a.cfg.Simulator.AutoStart {
		sim.Start()
	} else {
		a.logger.InfoContext(ctx, "simulator.auto_start is false; waiting for POST /api/simulator/start")
	}

	g.Go(func() error {
		<-ctx.Done()
		sim.Stop()
		return nil
	})
}

// startPublisher runs the Redis publisher and the alert notifier workers when
// they are wired.
func (a *App) startPublisher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Publisher != nil {
		g.Go(func() error {
			return deps.Publisher.Run(ctx)
		})
	}
	if deps.Notifier != nil {
		g.Go(func() error {
			return deps.Notifier.Run(ctx)
		})
	}
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sim := deps.Simulator

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(sim, a.cfg.Feed.MaxIdle.Duration, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, sim, deps.StartedAt),
		Simulator: handler.NewSimulatorHandler(sim, a.logger),
		Metrics:   deps.Metrics.Handler(),
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
	}, handlers, deps.Hub, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
