package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

func liquidStats() domain.OrderbookStats {
	return domain.OrderbookStats{
		MidPrice:        100.5,
		Spread:          1,
		BestAsk:         101,
		BestBid:         100,
		TotalAskSize:    5,
		TotalBidSize:    5,
		OrderImbalance:  1,
		PriceVolatility: 0.02,
	}
}

func TestCalculateMarketImpact_Components(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())
	stats := liquidStats()
	size := 2.0

	// permanent: 0.1 * (1 + min(1, 2/10)) * 2 * 0.02
	perm := 0.1 * 1.2 * size * 0.02
	// temporary: 0.1 * 0.02 * sqrt(2) * (1 + 1/100.5) * max(1, |ln 1|)
	temp := 0.1 * 0.02 * math.Sqrt(size) * (1 + 1/100.5) * 1

	assert.InDelta(t, perm+temp, m.CalculateMarketImpact(size, true, stats), 1e-15)
	assert.InDelta(t, -(perm + temp), m.CalculateMarketImpact(size, false, stats), 1e-15)
}

func TestCalculateMarketImpact_ImbalanceAndDepthGuards(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())

	skewed := liquidStats()
	skewed.TotalBidSize = 50
	skewed.OrderImbalance = 10
	balanced := liquidStats()
	assert.Greater(t, m.CalculateMarketImpact(1, true, skewed), m.CalculateMarketImpact(1, true, balanced))

	empty := domain.OrderbookStats{PriceVolatility: 0.02}
	// No depth: permanent factor stays at base, no liquidity or imbalance widening.
	want := 0.1*1*0.02 + 0.1*0.02*1
	assert.InDelta(t, want, m.CalculateMarketImpact(1, true, empty), 1e-15)
}

func TestCalculateMarketImpact_ZeroVolatility(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())
	stats := liquidStats()
	stats.PriceVolatility = 0
	assert.Zero(t, m.CalculateMarketImpact(3, true, stats))
}

func TestCalculateOptimalExecution_SumsToOrderSize(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := domain.DefaultAlmgrenChrissParams()
	params.Volatility = 0.8
	params.RiskAversion = 3
	m := NewMarketImpactModel(params)

	for iter := 0; iter < 300; iter++ {
		size := rng.Float64() * 1000
		if size == 0 {
			continue
		}
		steps := 1 + rng.Intn(40)

		schedule := m.CalculateOptimalExecution(size, true, liquidStats(), steps)
		require.Len(t, schedule, steps)

		var sum float64
		for _, s := range schedule {
			assert.GreaterOrEqual(t, s, 0.0)
			sum += s
		}
		assert.InEpsilon(t, size, sum, 1e-9)
	}
}

func TestCalculateOptimalExecution_FrontLoaded(t *testing.T) {
	params := domain.DefaultAlmgrenChrissParams()
	params.Volatility = 1
	m := NewMarketImpactModel(params)

	schedule := m.CalculateOptimalExecution(100, true, liquidStats(), 5)
	for i := 1; i < len(schedule); i++ {
		assert.Greater(t, schedule[i-1], schedule[i])
	}
}

func TestCalculateOptimalExecution_ZeroRiskIsUniform(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams()) // volatility 0

	schedule := m.CalculateOptimalExecution(10, false, liquidStats(), 4)
	for _, s := range schedule {
		assert.InDelta(t, 2.5, s, 1e-12)
	}
}

func TestCalculateOptimalExecution_Guards(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())

	assert.Equal(t, make([]float64, 5), m.CalculateOptimalExecution(0, true, liquidStats(), 5))
	assert.Equal(t, make([]float64, 5), m.CalculateOptimalExecution(-3, true, liquidStats(), 5))

	noAsks := liquidStats()
	noAsks.TotalAskSize = 0
	assert.Equal(t, make([]float64, 3), m.CalculateOptimalExecution(1, true, noAsks, 3))

	assert.Equal(t, []float64{7}, m.CalculateOptimalExecution(7, true, liquidStats(), 1))
	assert.Equal(t, []float64{7}, m.CalculateOptimalExecution(7, true, liquidStats(), 0))
}

func TestMarketImpactModel_Parameters(t *testing.T) {
	m := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())
	m.SetVolatility(0.3)
	assert.Equal(t, 0.3, m.Parameters().Volatility)
	assert.Equal(t, 0.1, m.Parameters().PermanentImpactFactor)

	p := m.Parameters()
	p.RiskAversion = 4
	m.SetParameters(p)
	assert.Equal(t, 4.0, m.Parameters().RiskAversion)
}
