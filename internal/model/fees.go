package model

import "github.com/alanyoungcy/tradesim/internal/domain"

type feeRates struct {
	maker float64
	taker float64
}

// feeTable maps a tier to its maker/taker rates. Tiers past the end of the
// table saturate at the last entry.
var feeTable = [...]feeRates{
	{maker: 0.0002, taker: 0.0005},
	{maker: 0.00015, taker: 0.0004},
	{maker: 0.0001, taker: 0.0003},
	{maker: 0.00005, taker: 0.0002},
}

// FeeModelForTier returns the fee model for tier. Negative tiers are treated
// as tier 0.
func FeeModelForTier(tier int) domain.FeeModel {
	idx := tier
	if idx < 0 {
		idx = 0
	}
	if idx >= len(feeTable) {
		idx = len(feeTable) - 1
	}
	r := feeTable[idx]
	return domain.FeeModel{
		MakerFeeRate: r.maker,
		TakerFeeRate: r.taker,
		FeeTier:      tier,
	}
}

// DefaultFeeModel is the tier-0 fee model.
func DefaultFeeModel() domain.FeeModel {
	return FeeModelForTier(0)
}
