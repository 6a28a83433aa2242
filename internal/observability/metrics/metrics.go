package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "meterprofile_"

	resultSuccess = "success"
	resultError   = "error"
	resultPartial = "partial"
)

var (
	registerOnce sync.Once

	previewTotal   *prometheus.CounterVec
	previewLatency *prometheus.HistogramVec
	fileTotal      *prometheus.CounterVec
	rowsDropped    *prometheus.CounterVec
	matchTotal     *prometheus.CounterVec

	saveTotal   *prometheus.CounterVec
	saveLatency *prometheus.HistogramVec
	saveItems   *prometheus.CounterVec
	mirrorTotal *prometheus.CounterVec

	comparisonTotal   *prometheus.CounterVec
	comparisonLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		previewTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_preview_total",
				Help: "Total import preview batches by result",
			},
			[]string{"result"},
		)
		previewLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "import_preview_latency_seconds",
				Help:    "Import preview latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		fileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_files_total",
				Help: "Total imported files by layout and result",
			},
			[]string{"layout", "result"},
		)
		rowsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_dropped_total",
				Help: "Rows dropped during normalization by reason",
			},
			[]string{"reason"},
		)
		matchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_matches_total",
				Help: "Import candidates by match type",
			},
			[]string{"type"},
		)

		saveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_save_total",
				Help: "Total save batches by result",
			},
			[]string{"result"},
		)
		saveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "import_save_latency_seconds",
				Help:    "Save batch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		saveItems = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_save_items_total",
				Help: "Saved meter items by outcome",
			},
			[]string{"outcome"},
		)
		mirrorTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_mirror_total",
				Help: "Reading mirror writes by result",
			},
			[]string{"result"},
		)

		comparisonTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "comparison_total",
				Help: "Total comparison queries by mode and result",
			},
			[]string{"mode", "result"},
		)
		comparisonLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "comparison_latency_seconds",
				Help:    "Comparison query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total comparison exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Comparison export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			previewTotal,
			previewLatency,
			fileTotal,
			rowsDropped,
			matchTotal,
			saveTotal,
			saveLatency,
			saveItems,
			mirrorTotal,
			comparisonTotal,
			comparisonLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePreview records preview batch duration and result.
func ObservePreview(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if previewTotal != nil {
		previewTotal.WithLabelValues(result).Inc()
	}
	if previewLatency != nil {
		previewLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncImportFile counts one processed file.
func IncImportFile(layout, result string) {
	if layout == "" {
		layout = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if fileTotal != nil {
		fileTotal.WithLabelValues(layout, result).Inc()
	}
}

// AddRowsDropped adds dropped rows for a reason.
func AddRowsDropped(reason string, count int) {
	if count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	if rowsDropped != nil {
		rowsDropped.WithLabelValues(reason).Add(float64(count))
	}
}

// IncMatch counts one candidate by match type.
func IncMatch(matchType string) {
	if matchType == "" {
		matchType = "unknown"
	}
	if matchTotal != nil {
		matchTotal.WithLabelValues(matchType).Inc()
	}
}

// ObserveSave records save batch duration and result.
func ObserveSave(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if saveTotal != nil {
		saveTotal.WithLabelValues(result).Inc()
	}
	if saveLatency != nil {
		saveLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddSaveItems adds save outcomes (created, updated, skipped, failed).
func AddSaveItems(outcome string, count int) {
	if count <= 0 {
		return
	}
	if saveItems != nil {
		saveItems.WithLabelValues(outcome).Add(float64(count))
	}
}

// IncMirror counts one reading mirror write.
func IncMirror(result string) {
	if result == "" {
		result = resultSuccess
	}
	if mirrorTotal != nil {
		mirrorTotal.WithLabelValues(result).Inc()
	}
}

// ObserveComparison records comparison latency and result.
func ObserveComparison(mode, result string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if comparisonTotal != nil {
		comparisonTotal.WithLabelValues(mode, result).Inc()
	}
	if comparisonLatency != nil {
		comparisonLatency.WithLabelValues(mode, result).Observe(duration.Seconds())
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

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultPartial = resultPartial
)
