package orderbook

import (
	"math"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// vwapDepth caps how many top-of-book levels contribute to the weighted
// prices.
const vwapDepth = 10

// CalculateVWAP returns the volume-weighted average price over at most
// maxLevels levels (all levels when maxLevels <= 0). Zero cumulative volume
// yields 0.
func CalculateVWAP(levels domain.PriceLevels, maxLevels int) float64 {
	n := len(levels)
	if maxLevels > 0 && maxLevels < n {
		n = maxLevels
	}

	var notional, volume float64
	for _, lvl := range levels[:n] {
		notional += lvl.Price * lvl.Size
		volume += lvl.Size
	}
	if volume > 0 {
		return notional / volume
	}
	return 0
}

// Volatility returns the standard deviation of consecutive relative returns of
// the given mid-prices. Fewer than two prices yield 0. A return whose base
// price is zero is skipped.
func Volatility(mids []float64) float64 {
	if len(mids) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		prev := mids[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (mids[i]-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(returns)))
}

// computeStats derives everything except volatility and latency from a single
// snapshot. ok is false when either side is empty.
func computeStats(d domain.OrderbookData) (stats domain.OrderbookStats, ok bool) {
	bestAsk, okAsk := d.Asks.Best()
	bestBid, okBid := d.Bids.Best()
	if !okAsk || !okBid {
		return domain.OrderbookStats{}, false
	}

	stats.BestAsk = bestAsk.Price
	stats.BestBid = bestBid.Price
	stats.MidPrice = (stats.BestAsk + stats.BestBid) / 2
	stats.Spread = stats.BestAsk - stats.BestBid

	stats.WeightedAskPrice = CalculateVWAP(d.Asks, vwapDepth)
	stats.WeightedBidPrice = CalculateVWAP(d.Bids, vwapDepth)

	stats.TotalAskSize = d.Asks.TotalSize()
	stats.TotalBidSize = d.Bids.TotalSize()

	if stats.TotalAskSize > 0 {
		stats.OrderImbalance = stats.TotalBidSize / stats.TotalAskSize
	}
	return stats, true
}
