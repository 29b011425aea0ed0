package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes scan and fetch metrics to Prometheus.
type Recorder struct {
	scansTotal   prometheus.Counter
	skippedTotal *prometheus.CounterVec
	results      prometheus.Gauge
	fetchErrors  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		scansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdpradar_scans_total",
			Help: "Total number of completed scans",
		}),
		skippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpradar_scan_skipped_total",
				Help: "Instruments excluded from a scan, by reason",
			},
			[]string{"reason"},
		),
		results: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdpradar_scan_results",
			Help: "Number of ranked rows in the latest scan",
		}),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpradar_fetch_errors_total",
				Help: "Market data fetch failures, by provider",
			},
			[]string{"provider"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdpradar_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScan records one finished scan.
func (r *Recorder) RecordScan(results int, skipped map[string]int) {
	r.scansTotal.Inc()
	r.results.Set(float64(results))
	for reason, n := range skipped {
		r.skippedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordFetchError records a failed upstream fetch.
func (r *Recorder) RecordFetchError(provider string) {
	r.fetchErrors.WithLabelValues(provider).Inc()
}

// ObserveDuration records how long op took since start.
func (r *Recorder) ObserveDuration(op string, start time.Time) {
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
