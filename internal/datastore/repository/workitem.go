package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/reviewdash/internal/datastore"
)

// deliveryColumns are overwritten when a manifest is ingested again.
// Statuses and client feedback are left as they are.
var deliveryColumns = []string{
	"task_id",
	"annotator_id",
	"colab_link",
	"ingestion_date",
	"delivery_date",
	"json_filename",
}

// WorkItemRepository handles delivered work items.
type WorkItemRepository interface {
	// UpsertDeliveries inserts items or refreshes their delivery columns.
	UpsertDeliveries(ctx context.Context, items []datastore.WorkItem, batchSize int) error
	// Get returns a work item by id.
	Get(ctx context.Context, workItemID string) (*datastore.WorkItem, error)
	// Count returns the number of stored work items.
	Count(ctx context.Context) (int64, error)
}

type workItemRepository struct {
	db *gorm.DB
}

// NewWorkItemRepository creates a new WorkItemRepository.
func NewWorkItemRepository(db *gorm.DB) WorkItemRepository {
	return &workItemRepository{db: db}
}

func (r *workItemRepository) UpsertDeliveries(ctx context.Context, items []datastore.WorkItem, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	// A manifest may repeat an id; the last occurrence wins, as it would row by row
	deduped := make([]datastore.WorkItem, 0, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		if pos, ok := index[items[i].WorkItemID]; ok {
			deduped[pos] = items[i]
			continue
		}
		index[items[i].WorkItemID] = len(deduped)
		deduped = append(deduped, items[i])
	}

	for i := range deduped {
		if deduped[i].TuringStatus == "" {
			deduped[i].TuringStatus = datastore.TuringStatusDelivered
		}
		if deduped[i].ClientStatus == "" {
			deduped[i].ClientStatus = datastore.ClientStatusPending
		}
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "work_item_id"}},
			DoUpdates: clause.AssignmentColumns(deliveryColumns),
		}).
		CreateInBatches(deduped, batchSize).Error
}

func (r *workItemRepository) Get(ctx context.Context, workItemID string) (*datastore.WorkItem, error) {
	var item datastore.WorkItem
	err := r.db.WithContext(ctx).Where("work_item_id = ?", workItemID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *workItemRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&datastore.WorkItem{}).Count(&n).Error
	return n, err
}
