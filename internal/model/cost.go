package model

import (
	"math"
	"sync"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Slippage regression coefficients.
const (
	slippageIntercept        = 0.0
	slippageVolumeFactor     = 0.1
	slippageVolatilityFactor = 0.2
	slippageImbalanceFactor  = -0.05
)

// maxMakerProportion bounds the maker share of a market order.
const maxMakerProportion = 0.1

// ImpactEstimator is the slice of the impact model the cost model needs.
type ImpactEstimator interface {
	CalculateMarketImpact(orderSize float64, isBuy bool, stats domain.OrderbookStats) float64
}

// TransactionCostModel combines slippage, fees and market impact into an
// expected execution cost.
type TransactionCostModel struct {
	impact ImpactEstimator

	mu   sync.RWMutex
	fees domain.FeeModel
}

// NewTransactionCostModel creates a cost model. impact may be nil, in which
// case market impact is reported as zero.
func NewTransactionCostModel(impact ImpactEstimator, fees domain.FeeModel) *TransactionCostModel {
	return &TransactionCostModel{impact: impact, fees: fees}
}

// FeeModel returns a copy of the fee model in force.
func (m *TransactionCostModel) FeeModel() domain.FeeModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fees
}

// SetFeeModel replaces the fee model.
func (m *TransactionCostModel) SetFeeModel(fees domain.FeeModel) {
	m.mu.Lock()
	m.fees = fees
	m.mu.Unlock()
}

// relativeSize is the order size as a fraction of the liquidity on the side
// the order consumes: asks for buys, bids for sells.
func relativeSize(orderSize float64, isBuy bool, stats domain.OrderbookStats) float64 {
	depth := stats.TotalBidSize
	if isBuy {
		depth = stats.TotalAskSize
	}
	if depth <= 0 {
		return 0
	}
	return orderSize / depth
}

// CalculateSlippage returns the expected slippage in price units, never less
// than half the spread.
func (m *TransactionCostModel) CalculateSlippage(orderSize float64, isBuy bool, stats domain.OrderbookStats) float64 {
	rel := relativeSize(orderSize, isBuy, stats)
	estimate := slippageIntercept +
		slippageVolumeFactor*rel +
		slippageVolatilityFactor*stats.PriceVolatility +
		slippageImbalanceFactor*(stats.OrderImbalance-1)

	return math.Max(estimate*stats.MidPrice, stats.Spread/2)
}

// CalculateFees returns the blended maker/taker fee on the order notional.
// makerProportion is clamped to [0, 1].
func (m *TransactionCostModel) CalculateFees(orderSize, orderPrice, makerProportion float64) float64 {
	fees := m.FeeModel()
	maker := clamp(makerProportion, 0, 1)
	notional := orderSize * orderPrice
	return notional*maker*fees.MakerFeeRate + notional*(1-maker)*fees.TakerFeeRate
}

// PredictMakerProportion estimates how much of a market order fills passively.
// Larger orders relative to depth and higher volatility push it toward zero;
// the result is clamped to [0, 0.1].
func (m *TransactionCostModel) PredictMakerProportion(orderSize float64, isBuy bool, stats domain.OrderbookStats) float64 {
	rel := relativeSize(orderSize, isBuy, stats)
	p := math.Exp(-5*rel) * math.Exp(-2*stats.PriceVolatility)
	return clamp(p, 0, maxMakerProportion)
}

// CalculateTotalCost returns slippage, market impact and fees and their sum.
// Fees use the mid-price as reference price.
func (m *TransactionCostModel) CalculateTotalCost(orderSize float64, isBuy bool, stats domain.OrderbookStats) domain.CostBreakdown {
	var c domain.CostBreakdown
	c.Slippage = m.CalculateSlippage(orderSize, isBuy, stats)
	if m.impact != nil {
		c.MarketImpact = m.impact.CalculateMarketImpact(orderSize, isBuy, stats)
	}
	maker := m.PredictMakerProportion(orderSize, isBuy, stats)
	c.Fees = m.CalculateFees(orderSize, stats.MidPrice, maker)
	c.Total = c.Slippage + c.MarketImpact + c.Fees
	return c
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
