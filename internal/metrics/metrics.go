// Package metrics exposes the simulator's Prometheus instruments. A Registry
// plugs into the pipeline as the feed observer, the stats latency observer
// and an output handler, so no component imports Prometheus directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const namespace = "tradesim"

// latencyBuckets spans 1µs to ~0.5s.
var latencyBuckets = prometheus.ExponentialBuckets(1e-6, 4, 10)

// Registry holds all instruments on a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	FeedMessages     *prometheus.CounterVec
	FeedReconnects   prometheus.Counter
	FeedBackoff      prometheus.Gauge
	FeedConnected    prometheus.Gauge
	StatsLatency     prometheus.Histogram
	SimulatorLatency prometheus.Histogram
	Outputs          prometheus.Counter
	OutputCost       *prometheus.GaugeVec
	PublishDropped   *prometheus.CounterVec
}

// NewRegistry creates and registers every instrument. When withRuntime is
// true the Go runtime and process collectors are registered as well.
func NewRegistry(withRuntime bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FeedMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_messages_total",
				Help:      "Feed messages received, by parse result",
			},
			[]string{"result"},
		),

		FeedReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_reconnects_total",
				Help:      "Reconnect attempts scheduled after a feed disconnect",
			},
		),

		FeedBackoff: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_backoff_seconds",
				Help:      "Delay before the most recently scheduled reconnect",
			},
		),

		FeedConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_connected",
				Help:      "1 while the feed connection is established",
			},
		),

		StatsLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_processing_seconds",
				Help:      "Time to compute statistics for one snapshot",
				Buckets:   latencyBuckets,
			},
		),

		SimulatorLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulation_seconds",
				Help:      "Time to run the cost models for one stats update",
				Buckets:   latencyBuckets,
			},
		),

		Outputs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outputs_total",
				Help:      "Simulator outputs produced",
			},
		),

		OutputCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "output_cost",
				Help:      "Latest simulated cost, by component, in quote currency",
			},
			[]string{"component"},
		),

		PublishDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_dropped_total",
				Help:      "Outputs not published, by reason",
			},
			[]string{"reason"},
		),
	}

	r.reg.MustRegister(
		r.FeedMessages,
		r.FeedReconnects,
		r.FeedBackoff,
		r.FeedConnected,
		r.StatsLatency,
		r.SimulatorLatency,
		r.Outputs,
		r.OutputCost,
		r.PublishDropped,
	)
	if withRuntime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Gatherer returns the underlying registry for scraping or testing.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Feed observer.

func (r *Registry) MessageReceived() { r.FeedMessages.WithLabelValues("parsed").Inc() }
func (r *Registry) MessageDropped()  { r.FeedMessages.WithLabelValues("dropped").Inc() }

func (r *Registry) Reconnecting(delay time.Duration) {
	r.FeedReconnects.Inc()
	r.FeedBackoff.Set(delay.Seconds())
}

func (r *Registry) ConnectionState(connected bool) {
	if connected {
		r.FeedConnected.Set(1)
		return
	}
	r.FeedConnected.Set(0)
}

// ObserveStatsLatency records the compute time of one stats update.
func (r *Registry) ObserveStatsLatency(d time.Duration) {
	r.StatsLatency.Observe(d.Seconds())
}

// HandleOutput records one simulator output.
func (r *Registry) HandleOutput(out domain.SimulatorOutput) {
	r.Outputs.Inc()
	r.SimulatorLatency.Observe(out.InternalLatency.Seconds())
	r.OutputCost.WithLabelValues("slippage").Set(out.ExpectedSlippage)
	r.OutputCost.WithLabelValues("fees").Set(out.ExpectedFees)
	r.OutputCost.WithLabelValues("market_impact").Set(out.ExpectedMarketImpact)
	r.OutputCost.WithLabelValues("net").Set(out.NetCost)
}

// PublishFailed counts an output the publisher could not deliver.
func (r *Registry) PublishFailed(reason string) {
	r.PublishDropped.WithLabelValues(reason).Inc()
}
