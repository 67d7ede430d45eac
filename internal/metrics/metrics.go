// Package metrics exposes Prometheus counters for the provisioning and
// power-control paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for cryptocloudd.
type Metrics struct {
	registry                 *prometheus.Registry
	provisionTotal           *prometheus.CounterVec
	provisionDurationSeconds prometheus.Histogram
	powerActionsTotal        *prometheus.CounterVec
}

// New constructs a metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	provisionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptocloud",
			Subsystem: "provision",
			Name:      "total",
			Help:      "Total number of provisioning requests by outcome.",
		},
		[]string{"outcome"},
	)
	provisionDurationSeconds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cryptocloud",
			Subsystem: "provision",
			Name:      "duration_seconds",
			Help:      "Time from request validation to terminal state.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 180, 300},
		},
	)
	powerActionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptocloud",
			Subsystem: "power",
			Name:      "actions_total",
			Help:      "Total power actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	registry.MustRegister(
		provisionTotal,
		provisionDurationSeconds,
		powerActionsTotal,
	)

	return &Metrics{
		registry:                 registry,
		provisionTotal:           provisionTotal,
		provisionDurationSeconds: provisionDurationSeconds,
		powerActionsTotal:        powerActionsTotal,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncProvision(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.provisionTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProvisionDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		return
	}
	m.provisionDurationSeconds.Observe(seconds)
}

func (m *Metrics) IncPowerAction(action, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.powerActionsTotal.WithLabelValues(action, outcome).Inc()
}
