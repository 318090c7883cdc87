package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	seriesRequests *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec
	rowsReturned   *prometheus.CounterVec
	backfillRows   *prometheus.CounterVec
	lastClose      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		seriesRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantagrify_series_requests_total",
				Help: "Total number of series requests by resulting source label",
			},
			[]string{"source", "granularity"},
		),
		backendErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantagrify_backend_errors_total",
				Help: "Total number of backend errors encountered",
			},
			[]string{"backend", "type"},
		),
		rowsReturned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantagrify_rows_returned_total",
				Help: "Total rows returned to callers by contributing backend",
			},
			[]string{"backend"},
		),
		backfillRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantagrify_backfill_rows_total",
				Help: "Total rows routed to the warehouse backfill path",
			},
			[]string{"route"},
		),
		lastClose: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantagrify_last_close",
				Help: "Last close price returned for an instrument",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantagrify_operation_duration_seconds",
				Help:    "Duration of backend operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSeriesRequest records a completed series request.
func (r *Recorder) RecordSeriesRequest(source, granularity string) {
	r.seriesRequests.WithLabelValues(source, granularity).Inc()
}

// RecordError records a backend error occurrence.
func (r *Recorder) RecordError(backend, kind string) {
	r.backendErrors.WithLabelValues(backend, kind).Inc()
}

// RecordRows records rows contributed by a backend.
func (r *Recorder) RecordRows(backend string, n int) {
	r.rowsReturned.WithLabelValues(backend).Add(float64(n))
}

// RecordBackfill records rows routed toward the warehouse backfill path.
func (r *Recorder) RecordBackfill(route string, n int) {
	r.backfillRows.WithLabelValues(route).Add(float64(n))
}

// RecordLastClose records the last close price returned for a symbol.
func (r *Recorder) RecordLastClose(symbol string, price float64) {
	r.lastClose.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
