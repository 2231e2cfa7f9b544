package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	reg          *prometheus.Registry
	Requests     *prometheus.CounterVec
	RankLatency  prometheus.Histogram
	RankFailures prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_ranking_duration_seconds",
		Help:    "Time to score and rank all services.",
		Buckets: prometheus.DefBuckets,
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "predictor_ranking_failures_total",
		Help: "Ranking requests that returned an error.",
	})

	r.MustRegister(requests, latency, failures)
	return &Metrics{reg: r, Requests: requests, RankLatency: latency, RankFailures: failures}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler { return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}) }
