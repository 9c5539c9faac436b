package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	gradingRunsTotal       *prometheus.CounterVec
	gradingStageSeconds    *prometheus.HistogramVec
	gradingInFlight        prometheus.Gauge
	gradingRejectedTotal   *prometheus.CounterVec
	gradingEventsPublished *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_api_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		gradingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_runs_total",
			Help: "Grading attempts by trigger and terminal status.",
		}, []string{"trigger", "status"})

		gradingStageSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_stage_duration_seconds",
			Help:    "Duration of each grading pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"})

		gradingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grading_in_flight",
			Help: "Grading attempts currently running in this process.",
		})

		gradingRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_rejected_total",
			Help: "Grading requests rejected before an attempt started.",
		}, []string{"reason"})

		gradingEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_events_published_total",
			Help: "grading.completed events by delivery outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradingRunsTotal,
			gradingStageSeconds,
			gradingInFlight,
			gradingRejectedTotal,
			gradingEventsPublished,
		)
	})
}

// APIRequests exposes the counter for grading API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for grading API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for grading API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingRuns counts finished attempts.
func GradingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRunsTotal
}

// GradingStageDuration observes per-stage latency.
func GradingStageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingStageSeconds
}

func GradingInFlight() prometheus.Gauge {
	RegisterMetrics()
	return gradingInFlight
}

func GradingRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRejectedTotal
}

func GradingEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsPublished
}
