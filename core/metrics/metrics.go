// Package metrics records Prometheus metrics for operation invocations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Collector holds the invocation metrics.
type Collector struct {
	Invocations        *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
	InFlight           *prometheus.GaugeVec
	ValidationFailures *prometheus.CounterVec

	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered with reg. A nil reg creates the
// metrics without registering them.
func New(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of operation invocations",
			},
			[]string{"resource", "operation", "outcome"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Operation invocation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"resource", "operation"},
		),
		InFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "invocations_in_flight",
				Help:      "Number of invocations currently running",
			},
			[]string{"resource"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of validation failures by field",
			},
			[]string{"resource", "field", "code"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed configuration reloads",
			},
		),
	}
}

// Start marks an invocation as running and returns a function that
// records its outcome.
func (c *Collector) Start(resource, operation string) func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.InFlight.WithLabelValues(resource).Inc()
	return func(outcome string) {
		c.InFlight.WithLabelValues(resource).Dec()
		c.Invocations.WithLabelValues(resource, operation, outcome).Inc()
		c.Duration.WithLabelValues(resource, operation).Observe(time.Since(start).Seconds())
	}
}

// ValidationFailed counts one failed validation.
func (c *Collector) ValidationFailed(resource, field, code string) {
	if c == nil {
		return
	}
	c.ValidationFailures.WithLabelValues(resource, field, code).Inc()
}

// Reloaded counts a configuration reload attempt.
func (c *Collector) Reloaded(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
}
