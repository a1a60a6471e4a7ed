package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Fill metrics
	FillBucketsTotal       *prometheus.CounterVec
	FillBucketDuration     *prometheus.HistogramVec
	RowsWrittenTotal       *prometheus.CounterVec
	RecoveriesTotal        *prometheus.CounterVec
	LoggingIncrementsTotal *prometheus.CounterVec
	FillLagSeconds         *prometheus.GaugeVec
	UpdatePassesTotal      *prometheus.CounterVec
	UpdatePassDuration     prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		FillBucketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_fill_buckets_total",
				Help: "Total number of buckets processed per stat",
			},
			[]string{"property", "status"},
		),
		FillBucketDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "countstat_fill_bucket_duration_seconds",
				Help:    "Time spent filling one bucket",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"property"},
		),
		RowsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_rows_written_total",
				Help: "Count rows written by pulls and rollups",
			},
			[]string{"property", "phase"},
		),
		RecoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_recoveries_total",
				Help: "Buckets rolled back after finding a STARTED fill state",
			},
			[]string{"property"},
		),
		LoggingIncrementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_logging_increments_total",
				Help: "Sum of inline increments applied to logging stats",
			},
			[]string{"property"},
		),
		FillLagSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "countstat_fill_lag_seconds",
				Help: "Seconds between now and the last filled bucket",
			},
			[]string{"property"},
		),
		UpdatePassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_update_passes_total",
				Help: "Update passes by outcome",
			},
			[]string{"status"},
		),
		UpdatePassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "countstat_update_pass_duration_seconds",
				Help:    "Wall time of a full update pass",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "countstat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "countstat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "countstat_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "countstat_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "countstat_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "countstat_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),
	}

	registry.MustRegister(
		m.FillBucketsTotal,
		m.FillBucketDuration,
		m.RowsWrittenTotal,
		m.RecoveriesTotal,
		m.LoggingIncrementsTotal,
		m.FillLagSeconds,
		m.UpdatePassesTotal,
		m.UpdatePassDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	return m
}

// The recorders below accept a nil receiver so callers can run without metrics.

// ObserveBucket records one filled (or failed) bucket.
func (m *Metrics) ObserveBucket(property string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.FillBucketsTotal.WithLabelValues(property, status).Inc()
	m.FillBucketDuration.WithLabelValues(property).Observe(d.Seconds())
}

// AddRows records rows written by a pull or rollup phase.
func (m *Metrics) AddRows(property, phase string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.RowsWrittenTotal.WithLabelValues(property, phase).Add(float64(rows))
}

// IncRecoveries records a rolled back bucket.
func (m *Metrics) IncRecoveries(property string) {
	if m == nil {
		return
	}
	m.RecoveriesTotal.WithLabelValues(property).Inc()
}

// AddLoggingIncrement records an inline increment.
func (m *Metrics) AddLoggingIncrement(property string, increment int64) {
	if m == nil {
		return
	}
	m.LoggingIncrementsTotal.WithLabelValues(property).Add(float64(increment))
}

// SetFillLag records how far behind now a stat's fill state is.
func (m *Metrics) SetFillLag(property string, lag time.Duration) {
	if m == nil {
		return
	}
	m.FillLagSeconds.WithLabelValues(property).Set(lag.Seconds())
}

// ObserveUpdatePass records a finished update pass.
func (m *Metrics) ObserveUpdatePass(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.UpdatePassesTotal.WithLabelValues(status).Inc()
	m.UpdatePassDuration.Observe(d.Seconds())
}

// RecordDBStats copies database/sql pool statistics into the DB gauges.
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
