package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	gradingRequestsTotal  *prometheus.CounterVec
	routingDecisionsTotal *prometheus.CounterVec
	fallbackResultsTotal  *prometheus.CounterVec
	jobsClaimedTotal      prometheus.Counter
	queueDepthGauge       *prometheus.GaugeVec
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the grading engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_requests_total",
			Help: "Total grading requests by mode.",
		}, []string{"mode"})

		routingDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_routing_decisions_total",
			Help: "Routing decisions by method and complexity bucket.",
		}, []string{"method", "bucket"})

		fallbackResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_fallback_results_total",
			Help: "Degraded fallback results by cause.",
		}, []string{"cause"})

		jobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_jobs_claimed_total",
			Help: "Jobs claimed by workers.",
		})

		queueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grading_queue_depth",
			Help: "Jobs in the queue by status.",
		}, []string{"status"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_http_requests_total",
			Help: "HTTP requests to the grading API by method, route, and status.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_http_request_duration_seconds",
			Help:    "HTTP request latency for the grading API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_http_errors_total",
			Help: "HTTP error responses from the grading API.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			gradingRequestsTotal,
			routingDecisionsTotal,
			fallbackResultsTotal,
			jobsClaimedTotal,
			queueDepthGauge,
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
		)
	})
}

// GradingRequests exposes the request counter.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// RoutingDecisions exposes the routing decision counter.
func RoutingDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return routingDecisionsTotal
}

// FallbackResults exposes the fallback counter.
func FallbackResults() *prometheus.CounterVec {
	RegisterMetrics()
	return fallbackResultsTotal
}

// JobsClaimed exposes the claim counter.
func JobsClaimed() prometheus.Counter {
	RegisterMetrics()
	return jobsClaimedTotal
}

// QueueDepth exposes the queue depth gauge.
func QueueDepth() *prometheus.GaugeVec {
	RegisterMetrics()
	return queueDepthGauge
}

// HTTPRequests exposes the HTTP request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the HTTP latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the HTTP error counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}
