package domain

import (
	"context"
	"time"
)

// OutputCache keeps the most recent simulator output per instrument so that
// out-of-process dashboards can poll it.
type OutputCache interface {
	SetOutput(ctx context.Context, exchange, symbol string, out SimulatorOutput, ttl time.Duration) error
	GetOutput(ctx context.Context, exchange, symbol string) (SimulatorOutput, error)
}

// SignalBus broadcasts payloads to whoever is listening on a channel.
// Delivery is fire-and-forget.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
