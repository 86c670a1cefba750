// Package reconcile derives the delivered flags of tasks and review details
// from the collaboration links of ingested work items.
package reconcile

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
)

// defaultChunkSize keeps IN lists under the SQLite parameter limit
const defaultChunkSize = 900

// Result summarizes one reconciliation pass.
type Result struct {
	DeliveredLinks   int // distinct collaboration links found among work items
	DeliveredTasks   int // tasks flagged delivered
	ReviewRowsMarked int // review detail rows flagged delivered
}

// Reconciler recomputes delivered flags. It holds no state between passes
// and is safe for concurrent use, though concurrent passes serialize on the
// database.
type Reconciler struct {
	db        *gorm.DB
	chunkSize int
	log       logger.Logger
	metrics   metrics.Recorder
	gauge     func(deliveredTasks int)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMetrics records pass outcomes and the delivered task gauge.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(r *Reconciler) {
		if m == nil {
			return
		}
		r.metrics = m
		r.gauge = m.RecordReconcile
	}
}

// WithLogger sets the logger used for pass summaries.
func WithLogger(log logger.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a Reconciler. A non-positive chunkSize uses 900.
func New(db *gorm.DB, chunkSize int, opts ...Option) *Reconciler {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	r := &Reconciler{
		db:        db,
		chunkSize: chunkSize,
		log:       logger.Global().Module("reconcile"),
		metrics:   metrics.NopRecorder{},
		gauge:     func(int) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile clears every delivered flag and sets it again for tasks whose
// collaboration link appears among work items, then for the review details
// of those tasks. The pass runs in one transaction; on error nothing changes.
// Running it twice without intervening writes yields the same flags.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()
	var result Result

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var links []string
		if err := tx.Model(&datastore.WorkItem{}).
			Where("colab_link IS NOT NULL AND colab_link <> ''").
			Distinct().
			Pluck("colab_link", &links).Error; err != nil {
			return stepError(err, "collect_links")
		}
		result.DeliveredLinks = len(links)

		if err := tx.Model(&datastore.Task{}).
			Where("is_delivered = ?", true).
			Update("is_delivered", false).Error; err != nil {
			return stepError(err, "clear_tasks")
		}
		for chunk := range repository.Chunk(links, r.chunkSize) {
			if err := tx.Model(&datastore.Task{}).
				Where("colab_link IN ?", chunk).
				Update("is_delivered", true).Error; err != nil {
				return stepError(err, "mark_tasks")
			}
		}

		var taskIDs []int64
		if err := tx.Model(&datastore.Task{}).
			Where("is_delivered = ?", true).
			Pluck("id", &taskIDs).Error; err != nil {
			return stepError(err, "collect_tasks")
		}
		result.DeliveredTasks = len(taskIDs)

		if err := tx.Model(&datastore.ReviewDetail{}).
			Where("is_delivered = ?", true).
			Update("is_delivered", false).Error; err != nil {
			return stepError(err, "clear_review_details")
		}
		for chunk := range repository.Chunk(taskIDs, r.chunkSize) {
			res := tx.Model(&datastore.ReviewDetail{}).
				Where("conversation_id IN ?", chunk).
				Update("is_delivered", true)
			if res.Error != nil {
				return stepError(res.Error, "mark_review_details")
			}
			result.ReviewRowsMarked += int(res.RowsAffected)
		}
		return nil
	})

	elapsed := time.Since(start)
	r.metrics.RecordDuration(metrics.OpReconcile, elapsed.Seconds())
	if err != nil {
		r.metrics.RecordOperation(metrics.OpReconcile, metrics.StatusError)
		r.metrics.RecordError(metrics.OpReconcile, string(errors.CategoryReconcile))
		r.log.Error("delivered status reconciliation failed",
			logger.Error(err),
			logger.Duration("elapsed", elapsed))
		return Result{}, err
	}

	r.metrics.RecordOperation(metrics.OpReconcile, metrics.StatusSuccess)
	r.gauge(result.DeliveredTasks)
	r.log.Info("delivered status reconciled",
		logger.Int("links", result.DeliveredLinks),
		logger.Int("tasks", result.DeliveredTasks),
		logger.Int("review_rows", result.ReviewRowsMarked),
		logger.Duration("elapsed", elapsed))
	return result, nil
}

func stepError(err error, step string) error {
	return errors.New(err).
		Component("reconcile").
		Category(errors.CategoryReconcile).
		Context("step", step).
		Build()
}
