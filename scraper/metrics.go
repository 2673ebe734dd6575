package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/shopcrawl/models"
)

// Metrics bundles Prometheus collectors for a crawl.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	ProductsTotal    *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	InflightRequests prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_requests_total",
			Help: "Requests processed by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopcrawl_fetch_duration_seconds",
			Help:    "Latency of page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_products_total",
			Help: "New products accepted by the result sink.",
		},
		[]string{"platform"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcrawl_retries_total",
			Help: "Retries scheduled after transient failures.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_errors_total",
			Help: "Request failures by error kind.",
		},
		[]string{"error_type"},
	)
	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopcrawl_inflight_requests",
			Help: "Requests currently being fetched or processed.",
		},
	)

	registry.MustRegister(requests, fetchDuration, products, retries, errorsTotal, inflight)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		FetchDuration:    fetchDuration,
		ProductsTotal:    products,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		InflightRequests: inflight,
	}
}

// IncRequest counts a processed request.
func (m *Metrics) IncRequest(platform models.Platform, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(platform), outcome).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) AddProducts(platform models.Platform, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsTotal.WithLabelValues(string(platform)).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a kind label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) trackInflight(delta float64) {
	if m == nil {
		return
	}
	m.InflightRequests.Add(delta)
}
