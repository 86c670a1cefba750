// Package metrics provides custom Prometheus metrics for reviewdash.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Pipeline components depend on it rather than on concrete collectors so
// tests can pass a capturing implementation.
type Recorder interface {
	// RecordOperation records an operation with its status.
	// The operation parameter describes what was performed (e.g., "sync_table", "ingest").
	// The status parameter indicates the outcome (e.g., "success", "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	// The errorType parameter is usually an error category such as "database".
	RecordError(operation, errorType string)
}

// NopRecorder discards everything recorded.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string) {}
