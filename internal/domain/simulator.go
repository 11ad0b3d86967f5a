package domain

import (
	"fmt"
	"math"
	"time"
)

// SimulatorParams are the user-controlled inputs of a simulation run.
type SimulatorParams struct {
	Exchange   string  `json:"exchange"`
	Symbol     string  `json:"symbol"`
	OrderType  string  `json:"order_type"`
	Quantity   float64 `json:"quantity"` // quote currency (USD) notional
	Volatility float64 `json:"volatility"`
	FeeTier    int     `json:"fee_tier"`
}

// DefaultSimulatorParams returns the parameters a fresh simulator starts with.
func DefaultSimulatorParams() SimulatorParams {
	return SimulatorParams{
		Exchange:   "OKX",
		Symbol:     "BTC-USDT",
		OrderType:  "market",
		Quantity:   100,
		Volatility: 0,
		FeeTier:    0,
	}
}

// Validate rejects parameter sets that must never reach the model math.
func (p SimulatorParams) Validate() error {
	if !isFinite(p.Quantity) {
		return fmt.Errorf("%w: quantity must be finite, got %g", ErrInvalidParams, p.Quantity)
	}
	if !isFinite(p.Volatility) {
		return fmt.Errorf("%w: volatility must be finite, got %g", ErrInvalidParams, p.Volatility)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0, got %g", ErrInvalidParams, p.Quantity)
	}
	if p.FeeTier < 0 {
		return fmt.Errorf("%w: fee_tier must be >= 0, got %d", ErrInvalidParams, p.FeeTier)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("%w: volatility must be >= 0, got %g", ErrInvalidParams, p.Volatility)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SimulatorOutput is the result of one simulation step, published to the
// presentation layer after every stats update.
type SimulatorOutput struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`

	ExpectedSlippage     float64 `json:"expected_slippage"`
	ExpectedFees         float64 `json:"expected_fees"`
	ExpectedMarketImpact float64 `json:"expected_market_impact"`
	NetCost              float64 `json:"net_cost"`
	MakerProportion      float64 `json:"maker_proportion"`

	InternalLatency time.Duration `json:"internal_latency_ns"`

	MidPrice         float64 `json:"midprice"`
	Spread           float64 `json:"spread"`
	MarketVolatility float64 `json:"market_volatility"`
}

// AlmgrenChrissParams configures the market impact model.
type AlmgrenChrissParams struct {
	PermanentImpactFactor float64 `json:"permanent_impact_factor"`
	TemporaryImpactFactor float64 `json:"temporary_impact_factor"`
	Volatility            float64 `json:"volatility"`
	TimeHorizon           float64 `json:"time_horizon"` // seconds
	RiskAversion          float64 `json:"risk_aversion"`
}

// DefaultAlmgrenChrissParams returns the fixed model coefficients.
func DefaultAlmgrenChrissParams() AlmgrenChrissParams {
	return AlmgrenChrissParams{
		PermanentImpactFactor: 0.1,
		TemporaryImpactFactor: 0.1,
		Volatility:            0,
		TimeHorizon:           1,
		RiskAversion:          1,
	}
}

// FeeModel holds the maker/taker rates in force for a fee tier.
type FeeModel struct {
	MakerFeeRate float64 `json:"maker_fee_rate"`
	TakerFeeRate float64 `json:"taker_fee_rate"`
	FeeTier      int     `json:"fee_tier"`
}

// CostBreakdown is the decomposition returned by the transaction cost model.
type CostBreakdown struct {
	Slippage     float64 `json:"slippage"`
	MarketImpact float64 `json:"market_impact"`
	Fees         float64 `json:"fees"`
	Total        float64 `json:"total"`
}
