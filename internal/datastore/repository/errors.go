package repository

import "github.com/tphakala/reviewdash/internal/errors"

// Sentinel errors for repository operations.
var (
	// ErrWorkItemNotFound indicates the requested work item does not exist.
	ErrWorkItemNotFound = errors.NewStd("work item not found")

	// ErrSyncLogNotFound indicates the sync log row does not exist.
	ErrSyncLogNotFound = errors.NewStd("sync log not found")

	// ErrUnknownTable indicates a table name outside the dashboard schema.
	ErrUnknownTable = errors.NewStd("unknown table")

	// ErrInvalidRows indicates the rows passed to Replace are not a slice of models.
	ErrInvalidRows = errors.NewStd("rows must be a slice of models")
)
