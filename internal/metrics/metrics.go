package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns its
// registry so several servers can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	LeadsIngested      prometheus.Counter
	ValidationFailures prometheus.Counter
	RateLimited        prometheus.Counter
	Exports            *prometheus.CounterVec
	LeadsStored        prometheus.Gauge
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LeadsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "celerix_leads_ingested_total",
			Help: "Total number of leads accepted by the webhook",
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "celerix_leads_validation_failures_total",
			Help: "Total number of webhook payloads rejected as invalid",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "celerix_leads_rate_limited_total",
			Help: "Total number of webhook calls rejected by the rate limiter",
		}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "celerix_leads_exports_total",
			Help: "Total number of exports served, labeled by format",
		}, []string{"format"}),
		LeadsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "celerix_leads_stored",
			Help: "Number of leads currently held by the store",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "celerix_leads_http_request_duration_seconds",
			Help:    "Latency of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry. Used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
