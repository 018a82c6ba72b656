package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ordersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created on the backend",
		},
		[]string{"product"},
	)

	orderConflictsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_conflicts_recovered_total",
			Help: "Total number of ORDER_ALREADY_EXISTS conflicts recovered by reusing the existing order",
		},
		[]string{"product"},
	)

	statusChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_checks_total",
			Help: "Total number of authoritative order status checks",
		},
		[]string{"trigger", "observed"},
	)

	resultUnlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_unlocks_total",
			Help: "Total number of results unlocked after a confirmed payment",
		},
		[]string{"product"},
	)

	pollWindowsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_windows_expired_total",
			Help: "Total number of fallback poll loops that elapsed without observing paid",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ordersCreatedTotal)
	prometheus.MustRegister(orderConflictsRecoveredTotal)
	prometheus.MustRegister(statusChecksTotal)
	prometheus.MustRegister(resultUnlocksTotal)
	prometheus.MustRegister(pollWindowsExpiredTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordOrderCreated(product string) {
	ordersCreatedTotal.WithLabelValues(product).Inc()
}

func RecordConflictRecovered(product string) {
	orderConflictsRecoveredTotal.WithLabelValues(product).Inc()
}

func RecordStatusCheck(trigger, observed string) {
	statusChecksTotal.WithLabelValues(trigger, observed).Inc()
}

func RecordResultUnlocked(product string) {
	resultUnlocksTotal.WithLabelValues(product).Inc()
}

func RecordPollExpired() {
	pollWindowsExpiredTotal.Inc()
}
