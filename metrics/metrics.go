// Package metrics exposes Prometheus counters for connections and deployments.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	connectionAttempts *prometheus.CounterVec
	deployments        *prometheus.CounterVec
	deployDuration     *prometheus.HistogramVec
	activeDeployments  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "torpedo",
			Name:      "connection_attempts_total",
			Help:      "Connection flows by provider and outcome.",
		}, []string{"provider", "outcome"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "torpedo",
			Name:      "deployments_total",
			Help:      "Finished deployment attempts by provider and terminal state.",
		}, []string{"provider", "state"}),
		deployDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "torpedo",
			Name:      "deployment_duration_seconds",
			Help:      "Wall time from submission to terminal state.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider", "state"}),
		activeDeployments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "torpedo",
			Name:      "deployments_active",
			Help:      "Deployment attempts not yet in a terminal state.",
		}),
	}
	m.registry.MustRegister(
		m.connectionAttempts,
		m.deployments,
		m.deployDuration,
		m.activeDeployments,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ConnectionFinished(providerID, outcome string) {
	if m == nil {
		return
	}
	m.connectionAttempts.WithLabelValues(providerID, outcome).Inc()
}

func (m *Metrics) DeploymentStarted() {
	if m == nil {
		return
	}
	m.activeDeployments.Inc()
}

func (m *Metrics) DeploymentFinished(providerID, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeDeployments.Dec()
	m.deployments.WithLabelValues(providerID, state).Inc()
	m.deployDuration.WithLabelValues(providerID, state).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
