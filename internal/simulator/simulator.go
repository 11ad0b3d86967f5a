// Package simulator wires the feed, the stats engine and the cost models into
// a single pipeline and exposes the control surface used by the dashboard.
package simulator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/model"
	"github.com/alanyoungcy/tradesim/internal/orderbook"
)

// Feed is the streaming client the simulator drives.
type Feed interface {
	Start()
	Stop()
	IsConnected() bool
	IsHealthy(maxIdle time.Duration) bool
}

// FeedFactory builds the feed around the handler that must receive every
// parsed snapshot.
type FeedFactory func(handler domain.OrderbookHandler) Feed

// Options configures a Simulator. Zero values fall back to defaults.
type Options struct {
	HistoryWindow int
	ScheduleSteps int
	Impact        *domain.AlmgrenChrissParams
	Params        *domain.SimulatorParams

	// OnStats receives every stats update; OnOutput every simulator output.
	OnStats  domain.StatsHandler
	OnOutput domain.OutputHandler

	LatencyObserver orderbook.LatencyObserver
	Logger          *slog.Logger
}

// Simulator runs the cost models on every stats update while running.
//
//	Stopped --Start--> Running --Stop--> Stopped
//
// Start and Stop are idempotent.
type Simulator struct {
	feed      Feed
	processor *orderbook.Processor
	impact    *model.MarketImpactModel
	cost      *model.TransactionCostModel

	onStats  domain.StatsHandler
	onOutput domain.OutputHandler

	scheduleSteps int
	logger        *slog.Logger

	// lifecycle serialises Start and Stop; mu guards the fields below.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	running   bool
	sessionID string
	params    domain.SimulatorParams
	latest    domain.SimulatorOutput
	hasLatest bool
}

// New builds the pipeline feed -> stats engine -> simulator.
func New(newFeed FeedFactory, opts Options) (*Simulator, error) {
	params := domain.DefaultSimulatorParams()
	if opts.Params != nil {
		params = *opts.Params
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("simulator: new: %w", err)
	}
	impactParams := domain.DefaultAlmgrenChrissParams()
	if opts.Impact != nil {
		impactParams = *opts.Impact
	}
	impactParams.Volatility = params.Volatility

	steps := opts.ScheduleSteps
	if steps <= 0 {
		steps = model.DefaultScheduleSteps
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	impact := model.NewMarketImpactModel(impactParams)
	s := &Simulator{
		impact:        impact,
		cost:          model.NewTransactionCostModel(impact, model.FeeModelForTier(params.FeeTier)),
		onStats:       opts.OnStats,
		onOutput:      opts.OnOutput,
		scheduleSteps: steps,
		logger:        logger.With(slog.String("component", "simulator")),
		params:        params,
	}
	s.processor = orderbook.NewProcessor(opts.HistoryWindow, s, opts.LatencyObserver)
	s.feed = newFeed(s.processor)
	return s, nil
}

// Start begins a new session and starts the feed. No-op when running.
func (s *Simulator) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.sessionID = uuid.NewString()
	session := s.sessionID
	s.mu.Unlock()

	s.logger.Info("simulator started", slog.String("session_id", session))
	s.feed.Start()
}

// Stop stops the feed. Once Stop returns no further outputs are produced.
// No-op when stopped.
func (s *Simulator) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	session := s.sessionID
	s.mu.Unlock()

	s.feed.Stop()
	s.logger.Info("simulator stopped", slog.String("session_id", session))
}

// IsRunning reports whether the simulator is running.
func (s *Simulator) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SessionID returns the id of the current or most recent session.
func (s *Simulator) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// UpdateParams validates and installs params, then pushes the volatility into
// the impact model and the fee tier into the cost model. Invalid params leave
// the previous ones in force.
func (s *Simulator) UpdateParams(params domain.SimulatorParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("simulator: update params: %w", err)
	}

	s.mu.Lock()
	s.params = params
	s.impact.SetVolatility(params.Volatility)
	s.cost.SetFeeModel(model.FeeModelForTier(params.FeeTier))
	s.mu.Unlock()

	s.logger.Info("parameters updated",
		slog.String("exchange", params.Exchange),
		slog.String("symbol", params.Symbol),
		slog.Float64("quantity", params.Quantity),
		slog.Float64("volatility", params.Volatility),
		slog.Int("fee_tier", params.FeeTier),
	)
	return nil
}

// Params returns the parameters in force.
func (s *Simulator) Params() domain.SimulatorParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// LatestOutput returns the most recent output, or domain.ErrNotFound when no
// output has been produced yet.
func (s *Simulator) LatestOutput() (domain.SimulatorOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasLatest {
		return domain.SimulatorOutput{}, fmt.Errorf("simulator: latest output: %w", domain.ErrNotFound)
	}
	return s.latest, nil
}

// HandleStats implements domain.StatsHandler. It runs on the feed goroutine.
func (s *Simulator) HandleStats(stats domain.OrderbookStats) {
	if s.onStats != nil {
		s.onStats.HandleStats(stats)
	}

	s.mu.RLock()
	running := s.running
	params := s.params
	session := s.sessionID
	s.mu.RUnlock()
	if !running {
		return
	}

	start := time.Now()
	qty := baseQuantity(params.Quantity, stats.MidPrice)
	breakdown := s.cost.CalculateTotalCost(qty, true, stats)
	maker := s.cost.PredictMakerProportion(qty, true, stats)

	out := domain.SimulatorOutput{
		SessionID:            session,
		Timestamp:            start.UTC(),
		Exchange:             params.Exchange,
		Symbol:               params.Symbol,
		ExpectedSlippage:     breakdown.Slippage,
		ExpectedFees:         breakdown.Fees,
		ExpectedMarketImpact: breakdown.MarketImpact,
		NetCost:              breakdown.Total,
		MakerProportion:      maker,
		MidPrice:             stats.MidPrice,
		Spread:               stats.Spread,
		MarketVolatility:     stats.PriceVolatility,
	}
	out.InternalLatency = time.Since(start)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.latest = out
	s.hasLatest = true
	s.mu.Unlock()

	if s.onOutput != nil {
		s.onOutput.HandleOutput(out)
	}
}

// Stats returns the latest orderbook statistics.
func (s *Simulator) Stats() domain.OrderbookStats {
	return s.processor.LatestStats()
}

// AverageLatency returns the stats engine's mean compute time in microseconds.
func (s *Simulator) AverageLatency() float64 {
	return s.processor.AverageLatency()
}

// FeedConnected reports whether the feed has a live connection.
func (s *Simulator) FeedConnected() bool {
	return s.feed.IsConnected()
}

// FeedHealthy reports whether the feed is connected and recently active.
func (s *Simulator) FeedHealthy(maxIdle time.Duration) bool {
	return s.feed.IsHealthy(maxIdle)
}

// ExecutionSchedule splits the configured quantity, in base units at the
// latest mid price, into numSteps buy child orders. A non-positive numSteps
// uses the configured default.
func (s *Simulator) ExecutionSchedule(numSteps int) []float64 {
	if numSteps <= 0 {
		numSteps = s.scheduleSteps
	}
	stats := s.processor.LatestStats()
	qty := baseQuantity(s.Params().Quantity, stats.MidPrice)
	return s.impact.CalculateOptimalExecution(qty, true, stats, numSteps)
}

// baseQuantity converts a quote notional into base units at mid.
func baseQuantity(quote, mid float64) float64 {
	if mid == 0 {
		return 0
	}
	return quote / mid
}
