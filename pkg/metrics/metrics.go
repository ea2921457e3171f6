package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdoc_collections_total",
			Help: "Total number of live collections (internal column families)",
		},
	)

	PubsubSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvdoc_pubsub_subscribers",
			Help: "Current subscriber count per collection",
		},
		[]string{"collection"},
	)

	PubsubLaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdoc_pubsub_lagged_total",
			Help: "Total number of lag notifications sent to subscribers whose buffer was full",
		},
		[]string{"collection"},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdoc_backups_total",
			Help: "Total number of backup operations by final status",
		},
		[]string{"status"},
	)

	RestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdoc_restores_total",
			Help: "Total number of restore operations by final status",
		},
		[]string{"status"},
	)

	ImportItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdoc_import_items_total",
			Help: "Total number of documents ingested by bulk import, per collection",
		},
		[]string{"collection"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdoc_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvdoc_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdoc_backup_duration_seconds",
			Help:    "Time taken to complete a backup operation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdoc_restore_duration_seconds",
			Help:    "Time taken to complete a restore operation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdoc_import_duration_seconds",
			Help:    "Time taken to complete a bulk import in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(PubsubSubscribers)
	prometheus.MustRegister(PubsubLaggedTotal)
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(RestoresTotal)
	prometheus.MustRegister(ImportItemsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(BackupDuration)
	prometheus.MustRegister(RestoreDuration)
	prometheus.MustRegister(ImportDuration)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for observing into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
