package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports the aggregate metrics feed as Prometheus series. Every
// method is nil-safe so the engine can run without a collector in tests.
type Collector struct {
	registry *prometheus.Registry

	emitted   prometheus.Counter
	succeeded prometheus.Counter
	dropped   *prometheus.CounterVec
	retries   prometheus.Counter
	inFlight  prometheus.Gauge
	tick      prometheus.Gauge
	latencyMs prometheus.Histogram
}

// NewCollector creates a collector with its own registry so concurrent
// engine instances never collide on metric registration.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Name:      "requests_emitted_total",
			Help:      "Requests emitted by client nodes.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Name:      "requests_succeeded_total",
			Help:      "Requests that reached a terminal Succeeded status.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Name:      "requests_dropped_total",
			Help:      "Requests dropped, by terminal reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficsim",
			Name:      "request_retries_total",
			Help:      "Retry attempts scheduled.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Name:      "requests_in_flight",
			Help:      "Requests currently in a non-terminal state.",
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficsim",
			Name:      "simulation_tick",
			Help:      "Current simulated tick.",
		}),
		latencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trafficsim",
			Name:      "request_latency_ms",
			Help:      "Simulated end-to-end latency of succeeded requests.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		}),
	}
	reg.MustRegister(c.emitted, c.succeeded, c.dropped, c.retries, c.inFlight, c.tick, c.latencyMs)
	return c
}

// Handler serves the collector's registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordEmitted counts newly created requests.
func (c *Collector) RecordEmitted(n int) {
	if c == nil {
		return
	}
	c.emitted.Add(float64(n))
}

// RecordSucceeded counts a success with its simulated latency.
func (c *Collector) RecordSucceeded(latencyMs float64) {
	if c == nil {
		return
	}
	c.succeeded.Inc()
	c.latencyMs.Observe(latencyMs)
}

// RecordDropped counts a drop by terminal reason.
func (c *Collector) RecordDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
}

// RecordRetry counts one scheduled retry.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// ObserveTick updates the per-tick gauges.
func (c *Collector) ObserveTick(tick int64, inFlight int) {
	if c == nil {
		return
	}
	c.tick.Set(float64(tick))
	c.inFlight.Set(float64(inFlight))
}
