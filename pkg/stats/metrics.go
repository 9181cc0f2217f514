package stats

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrowd"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// TicketsByStatus tracks the number of live tickets per lifecycle status.
	TicketsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tickets",
			Help:      "Number of in-memory tickets by status.",
		},
		[]string{"status"},
	)

	// TicketsTotal counts tickets by final outcome.
	TicketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_total",
			Help:      "Total tickets by outcome (created, released, refunded, closed).",
		},
		[]string{"outcome"},
	)

	// SettlementsTotal counts settlement attempts by kind and result.
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Total settlement attempts by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// SettledVolume sums the litoshis sent by successful settlements.
	SettledVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settled_litoshis_total",
		Help:      "Total amount of litoshis sent by settlements.",
	})

	// ExplorerCallsTotal counts calls to the blockchain explorer by method
	// and outcome.
	ExplorerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explorer_calls_total",
			Help:      "Total explorer calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// MonitorPollsTotal counts payment monitor polls by loop and outcome.
	MonitorPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_polls_total",
			Help:      "Total payment monitor polls by loop and outcome.",
		},
		[]string{"loop", "outcome"},
	)

	// ActiveMonitors tracks running payment monitors.
	ActiveMonitors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_monitors",
		Help:      "Number of currently running payment monitors.",
	})

	// NotificationsTotal counts outbound notifications by notifier and result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total notifications by notifier and result.",
		},
		[]string{"notifier", "result"},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		TicketsByStatus,
		TicketsTotal,
		SettlementsTotal,
		SettledVolume,
		ExplorerCallsTotal,
		MonitorPollsTotal,
		ActiveMonitors,
		NotificationsTotal,
		GoroutineCount,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
