// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation label values recorded by the pipeline.
const (
	// OpSyncAll is one full warehouse sync run.
	OpSyncAll = "sync_all"
	// OpSyncTable is one table replace from the warehouse.
	OpSyncTable = "sync_table"
	// OpReconcile is one delivered status reconciliation pass.
	OpReconcile = "reconcile"
	// OpIngest is one delivery ingestion run.
	OpIngest = "ingest"
	// OpManifest is one manifest fetched and parsed during ingestion.
	OpManifest = "manifest"
	// OpFeedback is one feedback batch.
	OpFeedback = "feedback"
	// OpWarehouseQuery is one warehouse query, all pages included.
	OpWarehouseQuery = "warehouse_query"
	// OpAggregate is one dashboard aggregation read.
	OpAggregate = "aggregate"
	// OpAllowListRefresh is one reload of the quality dimension allow-list.
	OpAllowListRefresh = "allowlist_refresh"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart100B is the starting bucket for 100 byte histograms (100B to ~100MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second
