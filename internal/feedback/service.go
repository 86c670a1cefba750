// Package feedback applies client verdicts to delivered work items.
//
// A verdict is stored verbatim as the client status. REJECTED sends the work
// item back to Rework, APPROVED or APPROVE marks it Delivered again, and any
// other verdict leaves the Turing side status alone.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
)

// EventFeedbackApplied is published after every applied batch.
const EventFeedbackApplied = "feedback.applied"

// noneValue is what spreadsheet exports write into empty optional cells.
const noneValue = "None"

const rowSavepoint = "feedback_row"

// Publisher sends pipeline events, typically over MQTT.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Metrics is the subset of pipeline metrics the service records.
type Metrics interface {
	metrics.Recorder
	RecordFeedback(updated, notFound, failed int)
}

type nopMetrics struct{ metrics.NopRecorder }

func (nopMetrics) RecordFeedback(int, int, int) {}

// Result counts the outcome of one batch. A row without a work item id
// counts as not found and gets an entry in ErrorDetails. A row without a
// verdict is in TotalRows only.
type Result struct {
	TotalRows    int      `json:"total_rows"`
	Updated      int      `json:"updated_count"`
	NotFound     int      `json:"not_found_count"`
	Errors       int      `json:"error_count"`
	ErrorDetails []string `json:"error_details,omitempty"`
}

// Service applies feedback batches.
type Service struct {
	db        *gorm.DB
	log       logger.Logger
	metrics   Metrics
	publisher Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records batch outcomes.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPublisher publishes an event after each applied batch.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a Service writing to store.
func NewService(store *datastore.Store, opts ...Option) *Service {
	s := &Service{
		db:      store.DB(),
		log:     logger.Global().Module("feedback"),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TuringStatusFor returns the Turing side status after a client verdict.
func TuringStatusFor(verdict, current string) string {
	switch cases.Fold().String(strings.TrimSpace(verdict)) {
	case "rejected":
		return datastore.TuringStatusRework
	case "approved", "approve":
		return datastore.TuringStatusDelivered
	default:
		return current
	}
}

// Apply updates the work items named in rows within one transaction. A row
// that fails is rolled back to its savepoint and counted; the others still
// commit. The error is non-nil only when the batch as a whole failed.
func (s *Service) Apply(ctx context.Context, rows []Row) (*Result, error) {
	start := time.Now()
	result := &Result{TotalRows: len(rows)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.applyRow(tx, i+1, &rows[i], result)
		}
		return nil
	})

	s.metrics.RecordDuration(metrics.OpFeedback, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(metrics.OpFeedback, metrics.StatusError)
		s.log.Error("feedback batch failed", logger.Int("rows", len(rows)), logger.Error(err))
		return nil, errors.New(err).
			Component("feedback").
			Category(errors.CategoryFeedback).
			Context("operation", "apply").
			Context("rows", len(rows)).
			Build()
	}

	status := metrics.StatusSuccess
	if result.Errors > 0 {
		status = metrics.StatusPartial
	}
	s.metrics.RecordOperation(metrics.OpFeedback, status)
	s.metrics.RecordFeedback(result.Updated, result.NotFound, result.Errors)

	s.log.Info("feedback applied",
		logger.Int("rows", result.TotalRows),
		logger.Int("updated", result.Updated),
		logger.Int("not_found", result.NotFound),
		logger.Int("errors", result.Errors))

	if s.publisher != nil {
		if err := s.publisher.Publish(context.WithoutCancel(ctx), EventFeedbackApplied, result); err != nil {
			s.log.Warn("failed to publish feedback event", logger.Error(err))
		}
	}
	return result, nil
}

func (s *Service) applyRow(tx *gorm.DB, rowNum int, row *Row, result *Result) {
	id := strings.TrimSpace(row.WorkItemID)
	verdict := strings.TrimSpace(row.Verdict)
	if verdict == "" {
		return
	}
	if id == "" {
		s.log.Warn("feedback row without work item id", logger.Int("row", rowNum))
		result.NotFound++
		result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("Row %d: missing work item id", rowNum))
		return
	}

	if err := tx.SavePoint(rowSavepoint).Error; err != nil {
		s.rowFailed(result, id, err)
		return
	}

	found, err := s.updateWorkItem(tx, id, verdict, row)
	if err != nil {
		if rbErr := tx.RollbackTo(rowSavepoint).Error; rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		s.rowFailed(result, id, err)
		return
	}
	if !found {
		s.log.Warn("work item not found", logger.String("work_item_id", id))
		result.NotFound++
		return
	}
	result.Updated++
}

func (s *Service) updateWorkItem(tx *gorm.DB, id, verdict string, row *Row) (bool, error) {
	var item datastore.WorkItem
	err := tx.Select("work_item_id", "turing_status").
		Where("work_item_id = ?", id).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	updates := map[string]any{
		"client_status": verdict,
		"turing_status": TuringStatusFor(verdict, item.TuringStatus),
	}
	if v := presentValue(row.TaskLevelFeedback); v != nil {
		updates["task_level_feedback"] = *v
	}
	if v := presentValue(row.ErrorCategories); v != nil {
		updates["error_categories"] = *v
	}

	if err := tx.Model(&datastore.WorkItem{}).Where("work_item_id = ?", id).Updates(updates).Error; err != nil {
		return false, err
	}
	if updates["turing_status"] != item.TuringStatus {
		s.log.Debug("turing status changed",
			logger.String("work_item_id", id),
			logger.String("verdict", verdict),
			logger.String("turing_status", updates["turing_status"].(string)))
	}
	return true, nil
}

func (s *Service) rowFailed(result *Result, id string, err error) {
	s.log.Error("failed to update work item", logger.String("work_item_id", id), logger.Error(err))
	result.Errors++
	result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("%s: %v", id, err))
}

// presentValue drops empty and "None" optional values.
func presentValue(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || s == noneValue {
		return nil
	}
	return &s
}
