package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/privacy"
)

// SyncLogRepository records table sync and ingestion runs.
type SyncLogRepository interface {
	// Start appends a row in the started state and returns it.
	Start(ctx context.Context, table, kind, runID string) (*datastore.SyncLog, error)
	// Finish closes a started row with its final status.
	Finish(ctx context.Context, id uint, status string, records int, message *string) error
	// List returns the most recent rows, newest first. An empty table matches all tables.
	List(ctx context.Context, table string, limit int) ([]datastore.SyncLog, error)
	// LatestCompleted returns the newest successful row of a table.
	LatestCompleted(ctx context.Context, table string) (*datastore.SyncLog, error)
}

type syncLogRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSyncLogRepository creates a new SyncLogRepository.
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db, now: time.Now}
}

func (r *syncLogRepository) Start(ctx context.Context, table, kind, runID string) (*datastore.SyncLog, error) {
	row := &datastore.SyncLog{
		Table:     table,
		StartedAt: r.now().UTC(),
		Status:    datastore.SyncStatusStarted,
		SyncKind:  kind,
		RunID:     runID,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *syncLogRepository) Finish(ctx context.Context, id uint, status string, records int, message *string) error {
	completed := r.now().UTC()
	result := r.db.WithContext(ctx).Model(&datastore.SyncLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_completed_at": completed,
			"sync_status":       status,
			"records_synced":    records,
			"error_message":     privacy.ScrubText(message),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncLogNotFound
	}
	return nil
}

func (r *syncLogRepository) List(ctx context.Context, table string, limit int) ([]datastore.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("sync_started_at DESC").Order("id DESC").Limit(limit)
	if table != "" {
		q = q.Where("table_name = ?", table)
	}
	var rows []datastore.SyncLog
	err := q.Find(&rows).Error
	return rows, err
}

func (r *syncLogRepository) LatestCompleted(ctx context.Context, table string) (*datastore.SyncLog, error) {
	var row datastore.SyncLog
	err := r.db.WithContext(ctx).
		Where("table_name = ? AND sync_status IN ?", table,
			[]string{datastore.SyncStatusCompleted, datastore.SyncStatusCompletedWithErrors}).
		Order("sync_completed_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSyncLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
