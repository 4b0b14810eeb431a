// Package metrics holds the Prometheus collectors shared by the stamping
// pipeline, the verifier and the HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofstamp_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proofstamp_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	stampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofstamp_stamps_total",
		Help: "Total stamp attempts by result (ledger, local, failed).",
	}, []string{"result"})

	ledgerConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofstamp_ledger_conflicts_total",
		Help: "Total ledger writes rejected because of a stale version token.",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofstamp_verifications_total",
		Help: "Total verifications by document source and ledger verdict.",
	}, []string{"source", "verdict"})

	backfillTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofstamp_backfill_total",
		Help: "Total documents processed by backfill, by result.",
	}, []string{"result"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofstamp_rate_limited_total",
		Help: "Total requests rejected by a rate limit budget.",
	}, []string{"budget"})

	dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proofstamp_dependency_up",
		Help: "Whether the last probe of a backend dependency succeeded (1) or failed (0).",
	}, []string{"dependency"})
)

// Stamp results.
const (
	StampLedger = "ledger"
	StampLocal  = "local"
	StampFailed = "failed"
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler returns a Gin handler that serves Prometheus metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordStamp records the outcome of one stamp.
func RecordStamp(result string) {
	stampsTotal.WithLabelValues(result).Inc()
}

// RecordLedgerConflict records a version-token conflict on append.
func RecordLedgerConflict() {
	ledgerConflictsTotal.Inc()
}

// RecordVerification records a verification. source is "local" or "remote";
// verdict is the ledger verdict ("true", "false" or "null").
func RecordVerification(source, verdict string) {
	verificationsTotal.WithLabelValues(source, verdict).Inc()
}

// RecordBackfill records one backfilled document.
func RecordBackfill(success bool) {
	if success {
		backfillTotal.WithLabelValues("success").Inc()
	} else {
		backfillTotal.WithLabelValues("failure").Inc()
	}
}

// RecordDependencyProbe records the result of one dependency health probe.
func RecordDependencyProbe(name string, success bool) {
	if success {
		dependencyUp.WithLabelValues(name).Set(1)
	} else {
		dependencyUp.WithLabelValues(name).Set(0)
	}
}

// RecordRateLimited records a request rejected by the named budget.
func RecordRateLimited(budget string) {
	rateLimitedTotal.WithLabelValues(budget).Inc()
}
