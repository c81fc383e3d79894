package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "geomon_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	checkRuns    *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec

	breachesTotal   *prometheus.CounterVec
	dedupSuppressed prometheus.Counter

	emailsSent   prometheus.Counter
	emailsFailed prometheus.Counter

	upstreamErrors *prometheus.CounterVec

	ingestReadings prometheus.Counter
	ingestErrors   *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	loginTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		checkRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "check_runs_total",
				Help: "Total threshold check runs by instrument and result",
			},
			[]string{"instrument", "result"},
		)
		checkLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "check_latency_seconds",
				Help:    "Threshold check latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		breachesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "breaches_total",
				Help: "Total detected threshold breaches by instrument and severity",
			},
			[]string{"instrument", "severity"},
		)
		dedupSuppressed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "dedup_suppressed_total",
				Help: "Notifications suppressed by the dedup ledger",
			},
		)

		emailsSent = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "emails_sent_total",
				Help: "Notification emails delivered",
			},
		)
		emailsFailed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "emails_failed_total",
				Help: "Notification email delivery failures",
			},
		)

		upstreamErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_errors_total",
				Help: "Upstream fetch errors by source",
			},
			[]string{"source"},
		)

		ingestReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Sensor readings stored by the ingest service",
			},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Ingest errors by reason",
			},
			[]string{"reason"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		loginTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "login_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			checkRuns,
			checkLatency,
			breachesTotal,
			dedupSuppressed,
			emailsSent,
			emailsFailed,
			upstreamErrors,
			ingestReadings,
			ingestErrors,
			exportTotal,
			exportLatency,
			loginTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveCheck records one threshold check run.
func ObserveCheck(instrument, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if checkRuns != nil {
		checkRuns.WithLabelValues(instrument, result).Inc()
	}
	if checkLatency != nil {
		checkLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncBreach increments the breach counter.
func IncBreach(instrument, severity string) {
	if breachesTotal != nil {
		breachesTotal.WithLabelValues(instrument, severity).Inc()
	}
}

// IncDedupSuppressed counts a notification skipped by the ledger.
func IncDedupSuppressed() {
	if dedupSuppressed != nil {
		dedupSuppressed.Inc()
	}
}

// IncEmailSent counts a delivered notification.
func IncEmailSent() {
	if emailsSent != nil {
		emailsSent.Inc()
	}
}

// IncEmailFailed counts a failed delivery.
func IncEmailFailed() {
	if emailsFailed != nil {
		emailsFailed.Inc()
	}
}

// IncUpstreamError counts an upstream fetch failure.
func IncUpstreamError(source string) {
	if source == "" {
		source = "unknown"
	}
	if upstreamErrors != nil {
		upstreamErrors.WithLabelValues(source).Inc()
	}
}

// AddIngested counts stored readings.
func AddIngested(count int) {
	if count <= 0 {
		return
	}
	if ingestReadings != nil {
		ingestReadings.Add(float64(count))
	}
}

// IncIngestError counts an ingest failure.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncLogin counts a login attempt.
func IncLogin(result string) {
	if result == "" {
		result = resultSuccess
	}
	if loginTotal != nil {
		loginTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
