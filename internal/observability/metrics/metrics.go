package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	metricPrefix = "fincas_"

	resultSuccess = "success"
	resultError   = "error"

	dispatchDelivered = "delivered"
	dispatchRejected  = "rejected"
	dispatchTransport = "transport"
)

var (
	registerOnce sync.Once

	batchRequests    *prometheus.CounterVec
	batchWarnings    *prometheus.CounterVec
	dispatchResults  *prometheus.CounterVec
	dispatchLatency  *prometheus.HistogramVec
	notifyResults    *prometheus.CounterVec
	auditWriteErrors prometheus.Counter
	auditExports     *prometheus.HistogramVec
	streamClients    prometheus.Gauge
)

// Init registers dispatch metrics. When db is non-nil the audit store pool and
// row count are exported as well.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		batchRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_requests_total",
				Help: "Total dispatch batches by verb",
			},
			[]string{"verb"},
		)
		batchWarnings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_rejections_total",
				Help: "Batches rejected before any call, by reason",
			},
			[]string{"reason"},
		)
		dispatchResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dispatch_results_total",
				Help: "Per-site dispatch outcomes by verb and result",
			},
			[]string{"verb", "result"},
		)
		dispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dispatch_latency_seconds",
				Help:    "Primary endpoint call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		notifyResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_results_total",
				Help: "Mirror notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		auditWriteErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_write_errors_total",
				Help: "Audit entries that could not be stored",
			},
		)
		auditExports = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "audit_export_seconds",
				Help:    "Audit export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_clients",
				Help: "Connected dispatch stream clients",
			},
		)

		prometheus.MustRegister(
			batchRequests,
			batchWarnings,
			dispatchResults,
			dispatchLatency,
			notifyResults,
			auditWriteErrors,
			auditExports,
			streamClients,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncBatch increments the batch counter.
func IncBatch(verb string) {
	if verb == "" {
		verb = "unknown"
	}
	if batchRequests != nil {
		batchRequests.WithLabelValues(verb).Inc()
	}
}

// IncBatchRejected increments the rejection counter.
func IncBatchRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if batchWarnings != nil {
		batchWarnings.WithLabelValues(reason).Inc()
	}
}

// ObserveDispatch records one primary call outcome and its latency.
func ObserveDispatch(verb, result string, duration time.Duration) {
	if verb == "" {
		verb = "unknown"
	}
	if result == "" {
		result = dispatchDelivered
	}
	if dispatchResults != nil {
		dispatchResults.WithLabelValues(verb, result).Inc()
	}
	if dispatchLatency != nil {
		dispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncNotify increments the mirror notification counter.
func IncNotify(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifyResults != nil {
		notifyResults.WithLabelValues(channel, result).Inc()
	}
}

// IncAuditWriteError increments the audit failure counter.
func IncAuditWriteError() {
	if auditWriteErrors != nil {
		auditWriteErrors.Inc()
	}
}

// ObserveAuditExport records export latency.
func ObserveAuditExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if auditExports != nil {
		auditExports.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddStreamClients adjusts the connected stream client gauge.
func AddStreamClients(delta int) {
	if streamClients != nil {
		streamClients.Add(float64(delta))
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(collectors.NewDBStatsCollector(db, "audit"))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "audit_entries",
			Help: "Stored audit entries",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM audit_logs")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	DispatchDelivered = dispatchDelivered
	DispatchRejected  = dispatchRejected
	DispatchTransport = dispatchTransport
)
