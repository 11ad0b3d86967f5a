// Package service holds the asynchronous consumers of simulator outputs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 2 * time.Second
	defaultChannel      = "ch:output"
)

// DropRecorder counts outputs the publisher could not deliver.
type DropRecorder interface {
	PublishFailed(reason string)
}

// PublisherConfig tunes a Publisher. Zero values fall back to defaults.
type PublisherConfig struct {
	Channel      string
	TTL          time.Duration
	QueueSize    int
	WriteTimeout time.Duration

	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens it.
	BreakerFailures uint32
}

// Publisher fans simulator outputs out to Redis. HandleOutput never blocks:
// outputs are queued and written by Run on its own goroutine. When the queue
// is full the newest output is dropped. Writes go through a circuit breaker
// so an unreachable Redis costs one failed call per breaker timeout instead
// of one per output.
type Publisher struct {
	bus     domain.SignalBus
	cache   domain.OutputCache
	cfg     PublisherConfig
	breaker *gobreaker.CircuitBreaker
	drops   DropRecorder
	logger  *slog.Logger

	queue chan domain.SimulatorOutput
}

// NewPublisher creates a Publisher. bus, cache and drops may be nil.
func NewPublisher(bus domain.SignalBus, cache domain.OutputCache, cfg PublisherConfig, drops DropRecorder, logger *slog.Logger) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "publisher"))

	failures := cfg.BreakerFailures
	st := gobreaker.Settings{
		Name:    "redis-publisher",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Publisher{
		bus:     bus,
		cache:   cache,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(st),
		drops:   drops,
		logger:  logger,
		queue:   make(chan domain.SimulatorOutput, cfg.QueueSize),
	}
}

// HandleOutput implements domain.OutputHandler.
func (p *Publisher) HandleOutput(out domain.SimulatorOutput) {
	select {
	case p.queue <- out:
	default:
		p.dropped("queue_full")
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("publisher started", slog.String("channel", p.cfg.Channel))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopped")
			return nil
		case out := <-p.queue:
			if err := p.Publish(ctx, out); err != nil {
				if errors.Is(err, domain.ErrCircuitOpen) {
					p.dropped("circuit_open")
					continue
				}
				p.dropped("redis_error")
				p.logger.Warn("publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Publish writes one output to the bus and the cache through the breaker.
func (p *Publisher) Publish(ctx context.Context, out domain.SimulatorOutput) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("publisher: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	_, err = p.breaker.Execute(func() (interface{}, error) {
		if p.bus != nil {
			if err := p.bus.Publish(ctx, p.cfg.Channel, payload); err != nil {
				return nil, err
			}
		}
		if p.cache != nil {
			if err := p.cache.SetOutput(ctx, out.Exchange, out.Symbol, out, p.cfg.TTL); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publisher: %w", domain.ErrCircuitOpen)
	}
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	return nil
}

// State returns the breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *Publisher) dropped(reason string) {
	if p.drops != nil {
		p.drops.PublishFailed(reason)
	}
}
