// Package metrics exposes Prometheus collectors for the auditor service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditorJobsStartedTotal        prometheus.Counter
	auditorWebhooksTotal           *prometheus.CounterVec
	auditorAggregationsTotal       *prometheus.CounterVec
	providerRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditorJobsStartedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auditor_jobs_started_total",
				Help: "Total number of audit jobs started.",
			},
		)

		auditorWebhooksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_webhooks_total",
				Help: "Total number of provider webhooks received, labeled by sub-task and outcome.",
			},
			[]string{"subtask", "outcome"},
		)

		auditorAggregationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_aggregations_total",
				Help: "Total number of report aggregations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		providerRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditor_provider_request_duration_seconds",
				Help:    "Histogram of provider API request latencies, labeled by endpoint and code.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint", "code"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJobStarted increments the started-jobs counter.
func ObserveJobStarted() {
	Init()
	auditorJobsStartedTotal.Inc()
}

// ObserveWebhook increments the webhook counter for a sub-task and outcome.
func ObserveWebhook(subtask, outcome string) {
	Init()
	auditorWebhooksTotal.WithLabelValues(subtask, outcome).Inc()
}

// ObserveAggregation increments the aggregation counter for the given outcome.
func ObserveAggregation(outcome string) {
	Init()
	auditorAggregationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProviderRequest records the duration of one provider API call.
func ObserveProviderRequest(endpoint string, code int, duration time.Duration) {
	Init()
	providerRequestDurationSeconds.
		WithLabelValues(endpoint, strconv.Itoa(code)).
		Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
