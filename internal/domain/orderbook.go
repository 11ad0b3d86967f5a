package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// PriceLevels is one side of a book in feed order. Asks are expected in
// non-decreasing price order and bids in non-increasing order; the ordering
// is trusted as delivered and never re-sorted.
type PriceLevels []PriceLevel

// Best returns the first level of the side and false when the side is empty.
func (pl PriceLevels) Best() (PriceLevel, bool) {
	if len(pl) == 0 {
		return PriceLevel{}, false
	}
	return pl[0], true
}

// TotalSize sums the sizes of every level.
func (pl PriceLevels) TotalSize() float64 {
	var total float64
	for _, lvl := range pl {
		total += lvl.Size
	}
	return total
}

// OrderbookData is one L2 snapshot as received from the feed. It is built
// once per inbound message and treated as immutable afterwards.
type OrderbookData struct {
	Timestamp  string      `json:"timestamp"`
	Exchange   string      `json:"exchange"`
	Symbol     string      `json:"symbol"`
	Asks       PriceLevels `json:"asks"`
	Bids       PriceLevels `json:"bids"`
	ReceivedAt time.Time   `json:"-"` // local receipt instant, carries a monotonic reading
}

// MidPrice returns the average of best bid and best ask, and false when either
// side is empty.
func (d OrderbookData) MidPrice() (float64, bool) {
	ask, okAsk := d.Asks.Best()
	bid, okBid := d.Bids.Best()
	if !okAsk || !okBid {
		return 0, false
	}
	return (ask.Price + bid.Price) / 2, true
}

// OrderbookStats are the metrics derived from a single snapshot plus the
// rolling history. Every field is zero until a snapshot with both sides
// populated has been processed.
type OrderbookStats struct {
	MidPrice          float64       `json:"midprice"`
	Spread            float64       `json:"spread"`
	BestAsk           float64       `json:"best_ask"`
	BestBid           float64       `json:"best_bid"`
	WeightedAskPrice  float64       `json:"weighted_ask_price"`
	WeightedBidPrice  float64       `json:"weighted_bid_price"`
	TotalAskSize      float64       `json:"total_ask_size"`
	TotalBidSize      float64       `json:"total_bid_size"`
	OrderImbalance    float64       `json:"order_imbalance"` // bid volume / ask volume
	PriceVolatility   float64       `json:"price_volatility"`
	ProcessingLatency time.Duration `json:"processing_latency_ns"`
}
