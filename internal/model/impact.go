// Package model implements the execution-cost models: Almgren-Chriss market
// impact, regression slippage, tiered fees and the maker/taker predictor.
package model

import (
	"math"
	"sync"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// DefaultScheduleSteps is the number of child orders used when a caller does
// not specify one.
const DefaultScheduleSteps = 10

// MarketImpactModel estimates Almgren-Chriss permanent and temporary impact.
// Parameters may be replaced concurrently with calculations.
type MarketImpactModel struct {
	mu     sync.RWMutex
	params domain.AlmgrenChrissParams
}

// NewMarketImpactModel creates a model with the given parameters.
func NewMarketImpactModel(params domain.AlmgrenChrissParams) *MarketImpactModel {
	return &MarketImpactModel{params: params}
}

// Parameters returns a copy of the current parameters.
func (m *MarketImpactModel) Parameters() domain.AlmgrenChrissParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// SetParameters replaces the parameters.
func (m *MarketImpactModel) SetParameters(params domain.AlmgrenChrissParams) {
	m.mu.Lock()
	m.params = params
	m.mu.Unlock()
}

// SetVolatility replaces only the configured volatility.
func (m *MarketImpactModel) SetVolatility(v float64) {
	m.mu.Lock()
	m.params.Volatility = v
	m.mu.Unlock()
}

// CalculateMarketImpact returns the signed price impact of an order: positive
// for buys, negative for sells.
func (m *MarketImpactModel) CalculateMarketImpact(orderSize float64, isBuy bool, stats domain.OrderbookStats) float64 {
	p := m.Parameters()

	sign := 1.0
	if !isBuy {
		sign = -1.0
	}
	return sign * (permanentImpact(p, orderSize, stats) + temporaryImpact(p, orderSize, stats))
}

// permanentImpact scales the base factor by the fraction of visible depth the
// order consumes, capped at doubling.
func permanentImpact(p domain.AlmgrenChrissParams, orderSize float64, stats domain.OrderbookStats) float64 {
	factor := p.PermanentImpactFactor
	depth := stats.TotalAskSize + stats.TotalBidSize
	if depth > 0 {
		factor *= 1 + math.Min(1, orderSize/depth)
	}
	return factor * orderSize * stats.PriceVolatility
}

// temporaryImpact follows a square-root law, widened by the relative spread
// and by book imbalance.
func temporaryImpact(p domain.AlmgrenChrissParams, orderSize float64, stats domain.OrderbookStats) float64 {
	liquidity := 1.0
	if stats.MidPrice > 0 && stats.Spread > 0 {
		liquidity += stats.Spread / stats.MidPrice
	}

	imbalance := 1.0
	if stats.TotalAskSize > 0 && stats.TotalBidSize > 0 {
		imbalance = math.Max(1, math.Abs(math.Log(stats.OrderImbalance)))
	}

	return p.TemporaryImpactFactor * stats.PriceVolatility * math.Sqrt(orderSize) * liquidity * imbalance
}

// CalculateOptimalExecution splits orderSize into numSteps child orders with
// exponentially decaying weights, so earlier steps carry more size as risk
// aversion grows. The schedule always has numSteps entries (at least one) and
// sums to orderSize; it is all zeros when there is nothing to trade or no
// liquidity on either side.
func (m *MarketImpactModel) CalculateOptimalExecution(orderSize float64, isBuy bool, stats domain.OrderbookStats, numSteps int) []float64 {
	if numSteps < 1 {
		numSteps = 1
	}
	schedule := make([]float64, numSteps)

	if orderSize <= 0 || stats.TotalAskSize <= 0 || stats.TotalBidSize <= 0 {
		return schedule
	}
	if numSteps == 1 {
		schedule[0] = orderSize
		return schedule
	}

	p := m.Parameters()
	intervals := float64(numSteps - 1)
	riskFactor := p.RiskAversion * p.Volatility * p.Volatility * p.TimeHorizon / intervals

	weights := make([]float64, numSteps)
	var total float64
	for i := range weights {
		weights[i] = math.Exp(-riskFactor * float64(i) / intervals)
		total += weights[i]
	}

	remaining := orderSize
	for i, w := range weights {
		size := math.Min(w/total*orderSize, remaining)
		schedule[i] = size
		remaining -= size
	}
	if remaining > 0 {
		schedule[numSteps-1] += remaining
	}
	return schedule
}
