package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

type memBus struct {
	mu       sync.Mutex
	err      error
	calls    int
	channel  string
	payloads [][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return b.err
	}
	b.channel = channel
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *memBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func (b *memBus) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type memCache struct {
	mu   sync.Mutex
	last map[string]domain.SimulatorOutput
	ttl  time.Duration
}

func (c *memCache) SetOutput(_ context.Context, exchange, symbol string, out domain.SimulatorOutput, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]domain.SimulatorOutput)
	}
	c.last[exchange+":"+symbol] = out
	c.ttl = ttl
	return nil
}

func (c *memCache) GetOutput(_ context.Context, exchange, symbol string) (domain.SimulatorOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.last[exchange+":"+symbol]
	if !ok {
		return domain.SimulatorOutput{}, domain.ErrNotFound
	}
	return out, nil
}

type dropCounter struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (d *dropCounter) PublishFailed(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[string]int)
	}
	d.reasons[reason]++
}

func (d *dropCounter) get(reason string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reasons[reason]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func output(net float64) domain.SimulatorOutput {
	return domain.SimulatorOutput{SessionID: "s", Exchange: "OKX", Symbol: "BTC-USDT", NetCost: net}
}

func TestPublisher_PublishWritesBusAndCache(t *testing.T) {
	bus := &memBus{}
	cache := &memCache{}
	p := NewPublisher(bus, cache, PublisherConfig{TTL: time.Minute}, nil, quietLogger())

	require.NoError(t, p.Publish(context.Background(), output(1.5)))

	require.Equal(t, 1, bus.count())
	assert.Equal(t, "ch:output", bus.channel)
	var decoded domain.SimulatorOutput
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.Equal(t, 1.5, decoded.NetCost)

	got, err := cache.GetOutput(context.Background(), "OKX", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.NetCost)
	assert.Equal(t, time.Minute, cache.ttl)
}

func TestPublisher_RunDrainsQueue(t *testing.T) {
	bus := &memBus{}
	p := NewPublisher(bus, nil, PublisherConfig{Channel: "custom"}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 5; i++ {
		p.HandleOutput(output(float64(i)))
	}
	require.Eventually(t, func() bool { return bus.count() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "custom", bus.channel)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	drops := &dropCounter{}
	p := NewPublisher(&memBus{}, nil, PublisherConfig{QueueSize: 2}, drops, quietLogger())

	// No Run loop: the queue fills and further outputs are dropped without
	// blocking the caller.
	for i := 0; i < 5; i++ {
		p.HandleOutput(output(float64(i)))
	}
	assert.Equal(t, 3, drops.get("queue_full"))
}

func TestPublisher_BreakerOpensAfterFailures(t *testing.T) {
	bus := &memBus{err: errors.New("connection refused")}
	drops := &dropCounter{}
	p := NewPublisher(bus, nil, PublisherConfig{BreakerFailures: 2, BreakerTimeout: time.Hour}, drops, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := p.Publish(ctx, output(1))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(ctx, output(1))
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, 2, bus.callCount())
}

func TestPublisher_RunCountsFailures(t *testing.T) {
	bus := &memBus{err: errors.New("down")}
	drops := &dropCounter{}
	p := NewPublisher(bus, nil, PublisherConfig{BreakerFailures: 1, BreakerTimeout: time.Hour}, drops, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	p.HandleOutput(output(1))
	p.HandleOutput(output(2))
	require.Eventually(t, func() bool {
		return drops.get("redis_error") == 1 && drops.get("circuit_open") == 1
	}, time.Second, 5*time.Millisecond)
}
