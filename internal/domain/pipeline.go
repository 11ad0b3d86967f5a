package domain

// The pipeline is a forward-only chain: feed -> stats engine -> simulator ->
// consumers. Each stage only knows the interface of the next one, so any stage
// can be exercised against a fake neighbour.

// OrderbookHandler receives parsed snapshots from the feed. It runs on the
// feed's I/O goroutine and must return quickly.
type OrderbookHandler interface {
	HandleOrderbook(OrderbookData)
}

// StatsHandler receives freshly computed orderbook statistics.
type StatsHandler interface {
	HandleStats(OrderbookStats)
}

// OutputHandler receives every simulator output.
type OutputHandler interface {
	HandleOutput(SimulatorOutput)
}

// OrderbookHandlerFunc adapts a function to OrderbookHandler.
type OrderbookHandlerFunc func(OrderbookData)

func (f OrderbookHandlerFunc) HandleOrderbook(d OrderbookData) { f(d) }

// StatsHandlerFunc adapts a function to StatsHandler.
type StatsHandlerFunc func(OrderbookStats)

func (f StatsHandlerFunc) HandleStats(s OrderbookStats) { f(s) }

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(SimulatorOutput)

func (f OutputHandlerFunc) HandleOutput(o SimulatorOutput) { f(o) }

// OutputHandlers fans one output out to several handlers in order.
type OutputHandlers []OutputHandler

func (hs OutputHandlers) HandleOutput(o SimulatorOutput) {
	for _, h := range hs {
		if h != nil {
			h.HandleOutput(o)
		}
	}
}

// StatsHandlers fans one stats update out to several handlers in order.
type StatsHandlers []StatsHandler

func (hs StatsHandlers) HandleStats(s OrderbookStats) {
	for _, h := range hs {
		if h != nil {
			h.HandleStats(s)
		}
	}
}
