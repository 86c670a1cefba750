// Package metrics provides Prometheus metrics for the sync, ingestion and feedback pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for pipeline operations.
// It implements Recorder for the generic operation counters.
type PipelineMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	// Table sync
	tableRowsSynced   *prometheus.GaugeVec
	tableSyncDuration *prometheus.HistogramVec
	tableSyncFailures *prometheus.CounterVec
	tableLastSuccess  *prometheus.GaugeVec

	// Ingestion
	ingestFilesTotal     prometheus.Counter
	ingestWorkItemsTotal prometheus.Counter
	ingestErrorsTotal    prometheus.Counter

	// Reconciliation
	reconcileDeliveredTasks prometheus.Gauge

	// Feedback
	feedbackRowsTotal *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdash_operations_total",
			Help: "Total number of pipeline operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdash_operation_duration_seconds",
			Help:    "Duration of pipeline operations in seconds",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"operation"},
	)

	m.operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdash_operation_errors_total",
			Help: "Total number of pipeline errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	m.tableRowsSynced = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewdash_table_rows_synced",
			Help: "Rows loaded by the last successful sync of each table",
		},
		[]string{"table"},
	)

	m.tableSyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewdash_table_sync_duration_seconds",
			Help:    "Duration of table syncs in seconds, warehouse query included",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12), // 100ms to ~7min
		},
		[]string{"table"},
	)

	m.tableSyncFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdash_table_sync_failures_total",
			Help: "Total number of failed table syncs",
		},
		[]string{"table"},
	)

	m.tableLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewdash_table_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync of each table",
		},
		[]string{"table"},
	)

	m.ingestFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewdash_ingest_files_processed_total",
		Help: "Total number of delivery manifests parsed",
	})

	m.ingestWorkItemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewdash_ingest_work_items_total",
		Help: "Total number of work items upserted from manifests",
	})

	m.ingestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewdash_ingest_errors_total",
		Help: "Total number of ingestion error entries",
	})

	m.reconcileDeliveredTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reviewdash_delivered_tasks",
		Help: "Tasks marked delivered by the last reconciliation",
	})

	m.feedbackRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewdash_feedback_rows_total",
			Help: "Total number of feedback rows by outcome",
		},
		[]string{"outcome"}, // updated, not_found, error
	)
}

func (m *PipelineMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.operationErrors,
		m.tableRowsSynced,
		m.tableSyncDuration,
		m.tableSyncFailures,
		m.tableLastSuccess,
		m.ingestFilesTotal,
		m.ingestWorkItemsTotal,
		m.ingestErrorsTotal,
		m.reconcileDeliveredTasks,
		m.feedbackRowsTotal,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.operationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordTableSync records the outcome of one table sync. Rows are only
// recorded for successful syncs.
func (m *PipelineMetrics) RecordTableSync(table string, rows int, duration time.Duration, ok bool) {
	m.tableSyncDuration.WithLabelValues(table).Observe(duration.Seconds())
	if !ok {
		m.tableSyncFailures.WithLabelValues(table).Inc()
		m.operationsTotal.WithLabelValues(OpSyncTable, StatusError).Inc()
		return
	}
	m.tableRowsSynced.WithLabelValues(table).Set(float64(rows))
	m.tableLastSuccess.WithLabelValues(table).SetToCurrentTime()
	m.operationsTotal.WithLabelValues(OpSyncTable, StatusSuccess).Inc()
}

// RecordIngestion adds the counts of one ingestion run.
func (m *PipelineMetrics) RecordIngestion(files, workItems, errorCount int) {
	m.ingestFilesTotal.Add(float64(files))
	m.ingestWorkItemsTotal.Add(float64(workItems))
	m.ingestErrorsTotal.Add(float64(errorCount))
}

// RecordReconcile sets the delivered task gauge after a reconciliation.
func (m *PipelineMetrics) RecordReconcile(deliveredTasks int) {
	m.reconcileDeliveredTasks.Set(float64(deliveredTasks))
}

// RecordFeedback adds the outcome counts of one feedback batch.
func (m *PipelineMetrics) RecordFeedback(updated, notFound, failed int) {
	m.feedbackRowsTotal.WithLabelValues("updated").Add(float64(updated))
	m.feedbackRowsTotal.WithLabelValues("not_found").Add(float64(notFound))
	m.feedbackRowsTotal.WithLabelValues("error").Add(float64(failed))
}
