package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate per upstream (weather, batch, geocode, ip providers) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 close to the configured upstream timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by stable category (see client.CategorizeError).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Single-location fetches that ended in absence, by reason.
	WeatherFetchAbsentTotal *prometheus.CounterVec

	// Batch chunks by result (success, failure). Failures shorten the output.
	BatchChunksTotal *prometheus.CounterVec

	// Batch points with at least one missing sub-field (zero-defaulted).
	BatchIncompletePointsTotal prometheus.Counter

	// Weather requests that joined an identical in-flight fetch.
	WeatherCoalescedTotal prometheus.Counter

	// Searches by path: short, local, remote, cache, failed.
	SearchTotal *prometheus.CounterVec

	// IP resolutions by the provider that answered; "none" when the chain was exhausted.
	IPResolutionsTotal *prometheus.CounterVec

	// Upstream circuit breaker state (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limit denials on /v1.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream API failures by category",
		},
		[]string{"upstream", "category"},
	)
	WeatherFetchAbsentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherFetchAbsentTotal",
			Help: "Weather fetches that returned no data, by reason",
		},
		[]string{"reason"},
	)
	BatchChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchChunksTotal",
			Help: "Batch weather chunks by result",
		},
		[]string{"result"},
	)
	BatchIncompletePointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchIncompletePointsTotal",
			Help: "Batch weather points with zero-defaulted fields",
		},
	)
	WeatherCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherCoalescedTotal",
			Help: "Weather requests served by joining an in-flight fetch for the same coordinates",
		},
	)
	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchTotal",
			Help: "Location searches by resolution path",
		},
		[]string{"path"},
	)
	IPResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipResolutionsTotal",
			Help: "IP geolocation resolutions by answering provider",
		},
		[]string{"provider"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"upstream"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		WeatherFetchAbsentTotal, BatchChunksTotal, BatchIncompletePointsTotal,
		WeatherCoalescedTotal, SearchTotal, IPResolutionsTotal,
		CircuitBreakerState, RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
