// Package metrics exposes bot metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cardbot"

// Collector records dispatcher and transport measurements.
type Collector struct {
	dispatched   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	backendFails *prometheus.CounterVec
	duplicates   prometheus.Counter
	rateLimited  prometheus.Counter
	reg          prometheus.Registerer
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Messages dispatched by handler and outcome.",
		}, []string{"handler", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from receiving a message to its committed outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		backendFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Record or session store failures.",
		}, []string{"backend"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_updates_total",
			Help:      "Redelivered updates that were dropped.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Updates dropped by the per-user rate limit.",
		}),
		reg: reg,
	}
	reg.MustRegister(c.dispatched, c.duration, c.backendFails, c.duplicates, c.rateLimited)
	return c
}

// Dispatched records one finished dispatch.
func (c *Collector) Dispatched(handler, outcome string, took time.Duration) {
	c.dispatched.WithLabelValues(handler, outcome).Inc()
	c.duration.WithLabelValues(handler).Observe(took.Seconds())
}

// BackendFailure counts a failing backend call.
func (c *Collector) BackendFailure(backend string) {
	c.backendFails.WithLabelValues(backend).Inc()
}

// Duplicate counts a dropped redelivery.
func (c *Collector) Duplicate() {
	c.duplicates.Inc()
}

// RateLimited counts an update rejected by the rate limiter.
func (c *Collector) RateLimited() {
	c.rateLimited.Inc()
}

// ObserveSendErrors exports a running error count, such as the outbound
// sender's, as a counter.
func (c *Collector) ObserveSendErrors(count func() uint64) {
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Outbound Telegram calls that failed after retries.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
