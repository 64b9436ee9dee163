// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealtracker",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "The total number of HTTP requests by method and status code",
	}, []string{"method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mealtracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mealtracker",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "The total number of requests rejected by the rate limiter",
	})

	MealsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealtracker",
		Subsystem: "meals",
		Name:      "recorded_total",
		Help:      "The total number of meal selections recorded by type",
	}, []string{"type"})

	LedgerRowsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mealtracker",
		Subsystem: "worker",
		Name:      "ledger_rows_synced_total",
		Help:      "The total number of rows written to the ledger sheet",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
