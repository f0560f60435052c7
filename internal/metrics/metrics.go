package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kapa",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kapa",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"method", "route"})

	reportsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "ilv",
		Name:      "reports_closed_total",
		Help:      "ILV reports closed, by channel (token or direct).",
	}, []string{"via"})

	closeTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "ilv",
		Name:      "close_tokens_total",
		Help:      "Close token events (issued, rejected).",
	}, []string{"event"})

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "forms",
		Name:      "submissions_total",
		Help:      "Form submissions saved, by status.",
	}, []string{"status"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "notifications",
		Name:      "sent_total",
		Help:      "Notifications by delivery status.",
	}, []string{"status"})

	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kapa",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job runs.",
	}, []string{"job", "success"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kapa",
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Duration of scheduled job runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"job"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		reportsClosed,
		closeTokens,
		submissions,
		notifications,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func HTTPStarted()  { httpInFlight.Inc() }
func HTTPFinished() { httpInFlight.Dec() }

// ObserveHTTP records one finished request. Route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route, status string, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func ReportClosed(via string)          { reportsClosed.WithLabelValues(via).Inc() }
func CloseTokenEvent(event string)     { closeTokens.WithLabelValues(event).Inc() }
func SubmissionSaved(status string)    { submissions.WithLabelValues(status).Inc() }
func NotificationLogged(status string) { notifications.WithLabelValues(status).Inc() }

func RecordJob(job string, d time.Duration, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	jobRuns.WithLabelValues(job, result).Inc()
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
