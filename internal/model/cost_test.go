package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

func TestCalculateSlippage_Regression(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())
	stats := domain.OrderbookStats{
		MidPrice:        100,
		Spread:          0.01,
		TotalAskSize:    10,
		TotalBidSize:    20,
		OrderImbalance:  2,
		PriceVolatility: 0.05,
	}

	// buy: rel = 5/10 -> 0.1*0.5 + 0.2*0.05 - 0.05*(2-1) = 0.01
	assert.InDelta(t, 0.01*100, m.CalculateSlippage(5, true, stats), 1e-12)
	// sell: rel = 5/20 -> 0.025 + 0.01 - 0.05 < 0, floored at half spread
	assert.InDelta(t, 0.005, m.CalculateSlippage(5, false, stats), 1e-12)
}

func TestCalculateSlippage_FlooredAtHalfSpread(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())
	stats := domain.OrderbookStats{MidPrice: 100, Spread: 2, OrderImbalance: 1}

	assert.Equal(t, 1.0, m.CalculateSlippage(0, true, stats))
	// Empty side contributes no relative-size term.
	assert.Equal(t, 1.0, m.CalculateSlippage(10, true, stats))
}

func TestCalculateFees_ClampsMakerProportion(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())

	allTaker := 2 * 100 * 0.0005
	allMaker := 2 * 100 * 0.0002
	assert.InDelta(t, allTaker, m.CalculateFees(2, 100, 0), 1e-12)
	assert.InDelta(t, allMaker, m.CalculateFees(2, 100, 1), 1e-12)
	assert.InDelta(t, allTaker, m.CalculateFees(2, 100, -4), 1e-12)
	assert.InDelta(t, allMaker, m.CalculateFees(2, 100, 7), 1e-12)
	assert.InDelta(t, 0.5*allMaker+0.5*allTaker, m.CalculateFees(2, 100, 0.5), 1e-12)
}

func TestPredictMakerProportion_Range(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())

	cases := []domain.OrderbookStats{
		{},
		{TotalAskSize: 1, TotalBidSize: 1},
		{TotalAskSize: 1000, TotalBidSize: 1, PriceVolatility: 0.001},
		{TotalAskSize: 0.01, TotalBidSize: 0.01, PriceVolatility: 5},
	}
	for _, stats := range cases {
		for _, size := range []float64{0, 0.001, 1, 100, 1e9} {
			for _, buy := range []bool{true, false} {
				p := m.PredictMakerProportion(size, buy, stats)
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 0.1)
			}
		}
	}

	// Large orders relative to depth rarely rest.
	p := m.PredictMakerProportion(1, true, domain.OrderbookStats{TotalAskSize: 1})
	assert.InDelta(t, math.Exp(-5), p, 1e-12)
}

func TestCalculateTotalCost_SumsComponents(t *testing.T) {
	impact := NewMarketImpactModel(domain.DefaultAlmgrenChrissParams())
	m := NewTransactionCostModel(impact, DefaultFeeModel())
	stats := liquidStats()

	c := m.CalculateTotalCost(0.5, true, stats)

	assert.Equal(t, m.CalculateSlippage(0.5, true, stats), c.Slippage)
	assert.Equal(t, impact.CalculateMarketImpact(0.5, true, stats), c.MarketImpact)
	maker := m.PredictMakerProportion(0.5, true, stats)
	assert.Equal(t, m.CalculateFees(0.5, stats.MidPrice, maker), c.Fees)
	assert.InDelta(t, c.Slippage+c.MarketImpact+c.Fees, c.Total, 1e-15)
}

func TestCalculateTotalCost_WithoutImpactModel(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())
	c := m.CalculateTotalCost(1, true, liquidStats())
	assert.Zero(t, c.MarketImpact)
}

func TestFeeModelForTier(t *testing.T) {
	tests := []struct {
		tier         int
		maker, taker float64
	}{
		{0, 0.0002, 0.0005},
		{1, 0.00015, 0.0004},
		{2, 0.0001, 0.0003},
		{3, 0.00005, 0.0002},
		{4, 0.00005, 0.0002},
		{99, 0.00005, 0.0002},
	}
	for _, tt := range tests {
		fm := FeeModelForTier(tt.tier)
		assert.Equal(t, tt.maker, fm.MakerFeeRate, "tier %d", tt.tier)
		assert.Equal(t, tt.taker, fm.TakerFeeRate, "tier %d", tt.tier)
		assert.Equal(t, tt.tier, fm.FeeTier)
	}
}

func TestTransactionCostModel_SetFeeModel(t *testing.T) {
	m := NewTransactionCostModel(nil, DefaultFeeModel())
	m.SetFeeModel(FeeModelForTier(2))
	assert.Equal(t, 0.0001, m.FeeModel().MakerFeeRate)
	assert.InDelta(t, 100*0.0003, m.CalculateFees(1, 100, 0), 1e-12)
}
