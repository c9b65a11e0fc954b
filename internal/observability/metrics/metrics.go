package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "billing_"

	resultSuccess = "success"
	resultError   = "error"

	periodComplete = "complete"
	periodPartial  = "partial"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	reportGenerateTotal   *prometheus.CounterVec
	reportGenerateLatency *prometheus.HistogramVec
	reportExportTotal     *prometheus.CounterVec
	reportExportLatency   *prometheus.HistogramVec
	reportSamples         prometheus.Histogram

	cutoffResolveTotal  *prometheus.CounterVec
	overrideWritesTotal *prometheus.CounterVec

	periodCompletenessTotal *prometheus.CounterVec
	reportCacheTotal        *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		reportGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_generate_total",
				Help: "Total report generations by result",
			},
			[]string{"result"},
		)
		reportGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_generate_latency_seconds",
				Help:    "Report generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		reportSamples = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_samples",
				Help:    "Samples aggregated per report",
				Buckets: prometheus.ExponentialBuckets(100, 4, 8),
			},
		)

		cutoffResolveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cutoff_resolve_total",
				Help: "Total cutoff resolutions by supplying level",
			},
			[]string{"level"},
		)
		overrideWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cutoff_override_writes_total",
				Help: "Total cutoff override writes by level and action",
			},
			[]string{"level", "action"},
		)

		periodCompletenessTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "period_completeness_total",
				Help: "Total evaluated billing periods by completeness",
			},
			[]string{"state"},
		)
		reportCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_cache_total",
				Help: "Report cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			reportGenerateTotal,
			reportGenerateLatency,
			reportExportTotal,
			reportExportLatency,
			reportSamples,
			cutoffResolveTotal,
			overrideWritesTotal,
			periodCompletenessTotal,
			reportCacheTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReportGenerate records report generation duration and result.
func ObserveReportGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reportGenerateTotal != nil {
		reportGenerateTotal.WithLabelValues(result).Inc()
	}
	if reportGenerateLatency != nil {
		reportGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveReportSamples records how many samples a report aggregated.
func ObserveReportSamples(count int) {
	if count < 0 {
		count = 0
	}
	if reportSamples != nil {
		reportSamples.Observe(float64(count))
	}
}

// IncCutoffResolve increments the resolution counter for the supplying level.
func IncCutoffResolve(level string) {
	if level == "" {
		level = "unknown"
	}
	if cutoffResolveTotal != nil {
		cutoffResolveTotal.WithLabelValues(level).Inc()
	}
}

// IncOverrideWrite increments the override write counter.
func IncOverrideWrite(level, action string) {
	if level == "" {
		level = "unknown"
	}
	if action == "" {
		action = "unknown"
	}
	if overrideWritesTotal != nil {
		overrideWritesTotal.WithLabelValues(level, action).Inc()
	}
}

// IncPeriodCompleteness counts one evaluated period.
func IncPeriodCompleteness(complete bool) {
	state := periodPartial
	if complete {
		state = periodComplete
	}
	if periodCompletenessTotal != nil {
		periodCompletenessTotal.WithLabelValues(state).Inc()
	}
}

// IncReportCache counts one cache lookup.
func IncReportCache(hit bool) {
	outcome := cacheMiss
	if hit {
		outcome = cacheHit
	}
	if reportCacheTotal != nil {
		reportCacheTotal.WithLabelValues(outcome).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
