// Package orderbook turns raw L2 snapshots into rolling microstructure
// statistics.
package orderbook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// LatencyObserver is notified of the compute time of every processed
// snapshot.
type LatencyObserver interface {
	ObserveStatsLatency(time.Duration)
}

// Processor is the stats engine. ProcessOrderbook is expected to be called
// from a single feed goroutine; the read accessors are safe from any goroutine.
type Processor struct {
	handler  domain.StatsHandler
	observer LatencyObserver

	historyMu sync.Mutex
	history   *History

	statsMu sync.RWMutex
	latest  domain.OrderbookStats

	totalLatencyNs atomic.Int64
	processed      atomic.Int64
}

// NewProcessor creates a Processor keeping windowSize snapshots of history.
// handler and observer may be nil.
func NewProcessor(windowSize int, handler domain.StatsHandler, observer LatencyObserver) *Processor {
	return &Processor{
		handler:  handler,
		observer: observer,
		history:  NewHistory(windowSize),
	}
}

// HandleOrderbook implements domain.OrderbookHandler.
func (p *Processor) HandleOrderbook(d domain.OrderbookData) {
	p.ProcessOrderbook(d)
}

// ProcessOrderbook appends d to the rolling history, computes fresh
// statistics, caches them as the latest and hands them to the stats handler.
// The handler runs after every lock has been released.
func (p *Processor) ProcessOrderbook(d domain.OrderbookData) domain.OrderbookStats {
	p.historyMu.Lock()
	p.history.Push(d)
	p.historyMu.Unlock()

	start := time.Now()
	stats, ok := computeStats(d)
	if ok {
		stats.PriceVolatility = p.volatility()
	}
	latency := time.Since(start)

	stats.ProcessingLatency = latency
	p.totalLatencyNs.Add(int64(latency))
	p.processed.Add(1)
	if p.observer != nil {
		p.observer.ObserveStatsLatency(latency)
	}

	p.statsMu.Lock()
	p.latest = stats
	p.statsMu.Unlock()

	if p.handler != nil {
		p.handler.HandleStats(stats)
	}
	return stats
}

// LatestStats returns the most recent statistics, or the zero value if no
// snapshot has been processed yet.
func (p *Processor) LatestStats() domain.OrderbookStats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.latest
}

// AverageLatency returns the mean compute time per update in microseconds.
func (p *Processor) AverageLatency() float64 {
	n := p.processed.Load()
	if n == 0 {
		return 0
	}
	return float64(p.totalLatencyNs.Load()) / float64(n) / float64(time.Microsecond)
}

// Processed returns the number of snapshots handled so far.
func (p *Processor) Processed() int64 {
	return p.processed.Load()
}

// History returns a copy of the retained snapshots, oldest first.
func (p *Processor) History() []domain.OrderbookData {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	return p.history.Snapshots()
}

func (p *Processor) volatility() float64 {
	p.historyMu.Lock()
	mids := p.history.MidPrices()
	p.historyMu.Unlock()
	return Volatility(mids)
}
