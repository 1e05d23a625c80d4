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

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Requests rejected by the secretId gate. Watch for: misconfigured clients, probing.
	AdmissionRejectedTotal prometheus.Counter

	// Login attempts by result (success, invalid_credentials, bad_request).
	LoginAttemptsTotal *prometheus.CounterVec

	// Token and role failures by reason (missing, expired, invalid_signature, malformed, forbidden).
	AuthFailuresTotal *prometheus.CounterVec

	// OpenWeatherMap call rate by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency. Watch for: p95 approaching the configured timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Weather failures by category; each one degrades GET /news to the placeholder summary.
	WeatherUnavailableTotal *prometheus.CounterVec

	// Circuit breaker state for the weather API (0=closed, 1=half_open, 2=open).
	CircuitBreakerState prometheus.Gauge

	// Aggregated view build time, both branches included.
	AggregationDuration *prometheus.HistogramVec

	// Record store operations by op and result. Watch for: error results (500s on /news).
	StoreOperationsTotal *prometheus.CounterVec

	// Login rate limit denials.
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
	AdmissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admissionRejectedTotal",
			Help: "Requests rejected for a missing or wrong secretId",
		},
	)
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginAttemptsTotal",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authFailuresTotal",
			Help: "Authentication and authorization failures by reason",
		},
		[]string{"reason"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherUnavailableTotal",
			Help: "Aggregations served with the weather placeholder, by failure category",
		},
		[]string{"category"},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherApiCircuitBreakerState",
			Help: "Weather API circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
	)
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregationDurationSeconds",
			Help:    "Time to build the aggregated news view",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"weather"},
	)
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeOperationsTotal",
			Help: "Record store operations by operation and result",
		},
		[]string{"op", "result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		AdmissionRejectedTotal, LoginAttemptsTotal, AuthFailuresTotal,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherUnavailableTotal, CircuitBreakerState,
		AggregationDuration, StoreOperationsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordStoreOperation counts one record store call.
func RecordStoreOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperationsTotal.WithLabelValues(op, result).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
