package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OutputCache implements domain.OutputCache using Redis hashes. The latest
// output for an instrument lives at "output:{exchange}:{symbol}" with one
// field per output value; ts is a Unix nanosecond timestamp.
type OutputCache struct {
	rdb *redis.Client
}

// NewOutputCache creates an OutputCache backed by the given Client.
func NewOutputCache(c *Client) *OutputCache {
	return &OutputCache{rdb: c.Underlying()}
}

// OutputKey returns the hash key holding the latest output for an instrument.
func OutputKey(exchange, symbol string) string {
	return "output:" + exchange + ":" + symbol
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetOutput overwrites the latest output for an instrument. A positive ttl
// sets the key expiry so stale outputs vanish once the simulator stops.
func (oc *OutputCache) SetOutput(ctx context.Context, exchange, symbol string, out domain.SimulatorOutput, ttl time.Duration) error {
	key := OutputKey(exchange, symbol)
	err := oc.rdb.HSet(ctx, key,
		"session_id", out.SessionID,
		"ts", strconv.FormatInt(out.Timestamp.UnixNano(), 10),
		"slippage", formatFloat(out.ExpectedSlippage),
		"fees", formatFloat(out.ExpectedFees),
		"market_impact", formatFloat(out.ExpectedMarketImpact),
		"net_cost", formatFloat(out.NetCost),
		"maker_proportion", formatFloat(out.MakerProportion),
		"latency_ns", strconv.FormatInt(int64(out.InternalLatency), 10),
		"midprice", formatFloat(out.MidPrice),
		"spread", formatFloat(out.Spread),
		"volatility", formatFloat(out.MarketVolatility),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set output %s: %w", key, err)
	}

	if ttl > 0 {
		if err := oc.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire output %s: %w", key, err)
		}
	}
	return nil
}

// GetOutput retrieves the latest output for an instrument. It returns
// domain.ErrNotFound when the key does not exist.
func (oc *OutputCache) GetOutput(ctx context.Context, exchange, symbol string) (domain.SimulatorOutput, error) {
	key := OutputKey(exchange, symbol)
	vals, err := oc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.SimulatorOutput{}, fmt.Errorf("redis: get output %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.SimulatorOutput{}, domain.ErrNotFound
	}

	p := fieldParser{vals: vals}
	out := domain.SimulatorOutput{
		SessionID:            vals["session_id"],
		Timestamp:            time.Unix(0, p.int("ts")).UTC(),
		Exchange:             exchange,
		Symbol:               symbol,
		ExpectedSlippage:     p.float("slippage"),
		ExpectedFees:         p.float("fees"),
		ExpectedMarketImpact: p.float("market_impact"),
		NetCost:              p.float("net_cost"),
		MakerProportion:      p.float("maker_proportion"),
		InternalLatency:      time.Duration(p.int("latency_ns")),
		MidPrice:             p.float("midprice"),
		Spread:               p.float("spread"),
		MarketVolatility:     p.float("volatility"),
	}
	if p.err != nil {
		return domain.SimulatorOutput{}, fmt.Errorf("redis: parse output %s: %w", key, p.err)
	}
	return out, nil
}

// fieldParser decodes hash fields, keeping the first error.
type fieldParser struct {
	vals map[string]string
	err  error
}

func (p *fieldParser) float(field string) float64 {
	s, ok := p.vals[field]
	if !ok || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("field %s: %w", field, err)
	}
	return f
}

func (p *fieldParser) int(field string) int64 {
	s, ok := p.vals[field]
	if !ok || p.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("field %s: %w", field, err)
	}
	return n
}

var _ domain.OutputCache = (*OutputCache)(nil)
