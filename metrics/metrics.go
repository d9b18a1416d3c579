// Package metrics exposes the orchestrator's attempt/outcome counters
// and route-acquisition latency to Prometheus. Purely observational:
// nothing here feeds back into payment.RootState or the driver's
// control flow, it only reports what already happened.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lightninglabs/paymentd/payment"
)

// Collector bundles every metric the engine reports. Construct one per
// process and share it across every root payment tree.
type Collector struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	routeLatency    prometheus.Histogram
	hintsActive     prometheus.Gauge
	excludedNodes   prometheus.Gauge
	retriesSpawned  prometheus.Counter
}

// New constructs a Collector and registers every metric with a fresh
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{registry: reg}

	c.attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paymentd",
		Name:      "attempts_total",
		Help:      "Number of payment attempts that reached getroute.",
	}, []string{"step"})

	c.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paymentd",
		Name:      "outcomes_total",
		Help:      "Terminal root payment outcomes by status and failcode name.",
	}, []string{"status", "fail_code"})

	c.routeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paymentd",
		Name:      "route_acquisition_seconds",
		Help:      "Latency of a single getroute call.",
		Buckets:   prometheus.DefBuckets,
	})

	c.hintsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paymentd",
		Name:      "channel_hints_active",
		Help:      "Number of channel hints currently recorded for the in-flight root.",
	})

	c.excludedNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paymentd",
		Name:      "excluded_nodes_active",
		Help:      "Number of nodes currently excluded for the in-flight root.",
	})

	c.retriesSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paymentd",
		Name:      "retries_spawned_total",
		Help:      "Number of retry children spawned by the retry modifier.",
	})

	reg.MustRegister(
		c.attemptsTotal, c.outcomesTotal, c.routeLatency,
		c.hintsActive, c.excludedNodes, c.retriesSpawned,
	)

	return c
}

// Registry returns the Prometheus registry backing this Collector, for
// mounting behind promhttp.HandlerFor in the process's HTTP server.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAttempt records that a payment (root or child) reached the
// named step.
func (c *Collector) ObserveAttempt(step payment.Step) {
	c.attemptsTotal.WithLabelValues(step.String()).Inc()
}

// ObserveRouteLatency records how long a single getroute round trip
// took.
func (c *Collector) ObserveRouteLatency(d time.Duration) {
	c.routeLatency.Observe(d.Seconds())
}

// ObserveOutcome records a root payment tree's terminal Summary.
func (c *Collector) ObserveOutcome(s *payment.Summary) {
	c.outcomesTotal.WithLabelValues(s.Status.String(), s.FailCodeName).Inc()
}

// ObserveRetry records that the retry modifier spawned a child.
func (c *Collector) ObserveRetry() {
	c.retriesSpawned.Inc()
}

// SetHintGaugeValues refreshes the point-in-time hint/exclusion gauges
// for the currently in-flight root. Called periodically by whatever
// owns the RootState, since these are live counts rather than
// monotonically-increasing totals.
func (c *Collector) SetHintGaugeValues(activeHints, excludedNodes int) {
	c.hintsActive.Set(float64(activeHints))
	c.excludedNodes.Set(float64(excludedNodes))
}
