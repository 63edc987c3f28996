package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupcheck_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dupcheck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ScanCount counts duplication scans by outcome
	ScanCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupcheck_scans_total",
			Help: "Total number of duplication scans",
		},
		[]string{"status"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dupcheck_scan_duration_seconds",
			Help:    "Duplication scan duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	PairsCompared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dupcheck_pairs_compared_total",
			Help: "Total number of submission pairs compared",
		},
	)

	FindingsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dupcheck_findings_written_total",
			Help: "Total number of duplication findings committed",
		},
	)

	// NotificationCount counts notification attempts by outcome
	NotificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupcheck_notifications_total",
			Help: "Total number of duplication notifications",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// InitPrometheus registers the collectors. Safe to call more than once.
func InitPrometheus() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCount,
			RequestDuration,
			ScanCount,
			ScanDuration,
			PairsCompared,
			FindingsWritten,
			NotificationCount,
		)
	})
}

// ObserveScan records the outcome of one scan.
func ObserveScan(status string, elapsed time.Duration, pairs, findings int) {
	ScanCount.WithLabelValues(status).Inc()
	ScanDuration.Observe(elapsed.Seconds())
	PairsCompared.Add(float64(pairs))
	FindingsWritten.Add(float64(findings))
}

func ObserveNotification(status string) {
	NotificationCount.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
