// Package metrics provides Prometheus instrumentation for the Cardly platform.
package metrics

import (
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardly",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OffersTotal counts offer state transitions by resulting status.
	OffersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "offers_total",
			Help:      "Total offer transitions by resulting status.",
		},
		[]string{"status"},
	)

	// CheckoutsInitiatedTotal counts checkout sessions opened.
	CheckoutsInitiatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "checkouts_initiated_total",
			Help:      "Total checkout sessions opened.",
		},
	)

	// PaymentsTotal counts payment outcomes by status.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "payments_total",
			Help:      "Total payment outcomes by final payment status.",
		},
		[]string{"status"},
	)

	// WebhookEventsTotal counts inbound provider webhook events by result.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "webhook_events_total",
			Help:      "Total inbound provider webhook events by processing result.",
		},
		[]string{"result"},
	)

	// DisputesResolvedTotal counts dispute resolutions by resolution type.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "disputes_resolved_total",
			Help:      "Total dispute resolutions by resolution.",
		},
		[]string{"resolution"},
	)

	// SweepRunsTotal counts expiration sweeper runs.
	SweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "sweep_runs_total",
			Help:      "Total expiration sweeper runs.",
		},
	)

	// OffersExpiredTotal counts offers expired by the sweeper.
	OffersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardly",
			Name:      "offers_expired_total",
			Help:      "Total offers transitioned to expired by the sweeper.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardly", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardly", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
)

var registerOnce sync.Once

// Register registers all collectors with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OffersTotal,
		CheckoutsInitiatedTotal,
		PaymentsTotal,
		WebhookEventsTotal,
		DisputesResolvedTotal,
		SweepRunsTotal,
		OffersExpiredTotal,
		DBOpenConnections,
		DBIdleConnections,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware instruments gin requests with counters and latency histograms.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CollectDBStats copies sql.DB pool stats into gauges. Call periodically.
func CollectDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	DBOpenConnections.Set(float64(stats.OpenConnections))
	DBIdleConnections.Set(float64(stats.Idle))
}
