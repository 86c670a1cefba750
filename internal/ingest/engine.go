// Package ingest loads delivered work items from manifests in object storage.
//
// Partitions are the first level folders under the configured prefix, one per
// delivery batch. A manifest's last modified time is taken as the delivery
// date of every work item in it.
package ingest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/objectstore"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
	"github.com/tphakala/reviewdash/internal/reconcile"
)

// EventIngestCompleted is published after every ingestion run.
const EventIngestCompleted = "ingest.completed"

// Sync log kinds of an ingestion run
const (
	kindManual    = "manual"
	kindScheduled = "scheduled"
)

// maxLoggedErrors bounds the errors kept in the sync log message.
const maxLoggedErrors = 10

// Reconciler recomputes delivered flags once work items changed.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Publisher sends pipeline events, typically over MQTT.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Notifier alerts operators about runs with errors.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Metrics is the subset of pipeline metrics the engine records.
type Metrics interface {
	metrics.Recorder
	RecordIngestion(files, workItems, errorCount int)
}

type nopMetrics struct{ metrics.NopRecorder }

func (nopMetrics) RecordIngestion(int, int, int) {}

// Result summarizes one ingestion run.
type Result struct {
	Status            string   `json:"status"`
	FilesProcessed    int      `json:"files_processed"`
	WorkItemsIngested int      `json:"work_items_ingested"`
	DurationSeconds   float64  `json:"duration_seconds"`
	Errors            []string `json:"errors"`
}

// Engine runs ingestion. Runs are not serialized against each other.
type Engine struct {
	store      objectstore.Store
	workItems  repository.WorkItemRepository
	syncLogs   repository.SyncLogRepository
	reconciler Reconciler

	linkTemplate string
	extensions   []string
	batchSize    int

	log       logger.Logger
	metrics   Metrics
	publisher Publisher
	notifier  Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics records ingestion counts.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithPublisher publishes a completion event after each run.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithNotifier alerts on runs that end with errors.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithBatchSize sets the rows per upsert statement.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// New creates an Engine reading from store and writing to db.
func New(store objectstore.Store, db *datastore.Store, reconciler Reconciler, settings *conf.IngestSettings, opts ...Option) *Engine {
	template := settings.CollabLinkTemplate
	if template == "" {
		template = conf.DefaultCollabLinkTemplate
	}
	extensions := settings.Extensions
	if len(extensions) == 0 {
		extensions = []string{".json"}
	}

	e := &Engine{
		store:        store,
		workItems:    repository.NewWorkItemRepository(db.DB()),
		syncLogs:     repository.NewSyncLogRepository(db.DB()),
		reconciler:   reconciler,
		linkTemplate: template,
		extensions:   extensions,
		log:          logger.Global().Module("ingest"),
		metrics:      nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CollabLink returns the collaboration link of a task.
func (e *Engine) CollabLink(taskID string) string {
	return fmt.Sprintf(e.linkTemplate, taskID)
}

// ListPartitions returns the sorted partition names.
func (e *Engine) ListPartitions(ctx context.Context) ([]string, error) {
	return e.store.ListPartitions(ctx)
}

// ListManifests returns the manifests in partition, by key.
func (e *Engine) ListManifests(ctx context.Context, partition string) ([]objectstore.ObjectInfo, error) {
	objects, err := e.store.ListObjects(ctx, partition)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(objects, func(o objectstore.ObjectInfo) bool {
		return !e.isManifest(o.Key)
	}), nil
}

func (e *Engine) isManifest(key string) bool {
	lower := strings.ToLower(key)
	return slices.ContainsFunc(e.extensions, func(ext string) bool {
		return strings.HasSuffix(lower, strings.ToLower(ext))
	})
}

// Ingest reads every manifest of partition, or of all partitions when
// partition is empty, and upserts the work items found. Unreadable files and
// malformed items are reported in Result.Errors and do not stop the run.
// An error is returned only when the run could not start or partitions could
// not be listed.
func (e *Engine) Ingest(ctx context.Context, partition string) (*Result, error) {
	start := time.Now()
	kind := kindScheduled
	if partition != "" {
		kind = kindManual
	}

	entry, err := e.syncLogs.Start(ctx, datastore.TableWorkItem, kind, "")
	if err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryDatabase).
			Context("operation", "open_sync_log").
			Build()
	}

	log := e.log.With(logger.String("kind", kind))
	log.Info("ingestion started", logger.String("partition", partition))

	partitions := []string{partition}
	if partition == "" {
		partitions, err = e.store.ListPartitions(ctx)
		if err != nil {
			msg := err.Error()
			e.finish(ctx, entry.ID, datastore.SyncStatusFailed, 0, &msg)
			e.metrics.RecordOperation(metrics.OpIngest, metrics.StatusError)
			e.metrics.RecordError(metrics.OpIngest, string(errors.CategoryObjectStore))
			return nil, errors.New(err).
				Component("ingest").
				Category(errors.CategoryIngestion).
				Context("operation", "list_partitions").
				Build()
		}
	}

	if len(partitions) == 0 {
		log.Warn("no partitions found to process")
		msg := "No folders found"
		e.finish(ctx, entry.ID, datastore.SyncStatusCompleted, 0, &msg)
		return &Result{
			Status:          datastore.SyncStatusCompleted,
			DurationSeconds: time.Since(start).Seconds(),
			Errors:          []string{msg},
		}, nil
	}

	result := &Result{}
	for _, p := range partitions {
		e.ingestPartition(ctx, p, result, log)
	}

	if _, err := e.reconciler.Reconcile(ctx); err != nil {
		log.Error("reconciliation after ingestion failed", logger.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to update is_delivered status: %v", err))
	}

	result.Status = datastore.SyncStatusCompleted
	var message *string
	if len(result.Errors) > 0 {
		result.Status = datastore.SyncStatusCompletedWithErrors
		joined := strings.Join(result.Errors[:min(len(result.Errors), maxLoggedErrors)], "; ")
		message = &joined
	}
	result.DurationSeconds = time.Since(start).Seconds()

	e.finish(ctx, entry.ID, result.Status, result.WorkItemsIngested, message)
	e.record(result)

	log.Info("ingestion finished",
		logger.String("status", result.Status),
		logger.Int("files", result.FilesProcessed),
		logger.Int("work_items", result.WorkItemsIngested),
		logger.Int("errors", len(result.Errors)),
		logger.Float64("duration_seconds", result.DurationSeconds))

	if len(result.Errors) > 0 && e.notifier != nil {
		body := fmt.Sprintf("Ingestion finished with %d errors: %s", len(result.Errors), *message)
		if err := e.notifier.Notify(context.WithoutCancel(ctx), "Delivery ingestion had errors", body); err != nil {
			log.Warn("failed to send ingestion alert", logger.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(context.WithoutCancel(ctx), EventIngestCompleted, result); err != nil {
			log.Warn("failed to publish ingestion event", logger.Error(err))
		}
	}

	return result, nil
}

func (e *Engine) ingestPartition(ctx context.Context, partition string, result *Result, log logger.Logger) {
	log = log.With(logger.String("partition", partition))

	manifests, err := e.ListManifests(ctx, partition)
	if err != nil {
		log.Error("failed to list manifests", logger.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Could not list %s: %v", partition, err))
		return
	}
	log.Info("processing partition", logger.Int("manifests", len(manifests)))

	for _, object := range manifests {
		e.ingestManifest(ctx, partition, object, result, log)
	}
}

func (e *Engine) ingestManifest(ctx context.Context, partition string, object objectstore.ObjectInfo, result *Result, log logger.Logger) {
	start := time.Now()
	defer func() { e.metrics.RecordDuration(metrics.OpManifest, time.Since(start).Seconds()) }()

	filename := object.Name()

	data, err := e.store.GetObject(ctx, object.Key)
	if err != nil || len(data) == 0 {
		log.Error("failed to read manifest", logger.String("key", object.Key), logger.Error(err))
		result.Errors = append(result.Errors, "Could not read "+object.Key)
		return
	}

	manifest, err := ParseManifest(data, filename)
	if err != nil {
		log.Warn("skipping unparseable manifest", logger.String("key", object.Key), logger.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Error processing %s: %v", object.Key, err))
		return
	}
	for _, msg := range manifest.Warnings {
		log.Warn("manifest has no work items", logger.String("key", object.Key), logger.String("reason", msg))
	}
	for _, msg := range manifest.Errors {
		log.Warn("skipping work item", logger.String("reason", msg))
	}
	result.Errors = append(result.Errors, manifest.Errors...)

	deliveryDate := object.LastModified.UTC()
	items := make([]datastore.WorkItem, 0, len(manifest.Items))
	for _, mi := range manifest.Items {
		items = append(items, datastore.WorkItem{
			WorkItemID:         mi.WorkItemID,
			TaskID:             mi.TaskID,
			AnnotatorID:        mi.AnnotatorID,
			CollabLink:         e.CollabLink(mi.TaskID),
			IngestionPartition: partition,
			DeliveryDate:       &deliveryDate,
			SourceFilename:     filename,
		})
	}

	if len(items) > 0 {
		if err := e.workItems.UpsertDeliveries(ctx, items, e.batchSize); err != nil {
			log.Error("failed to upsert work items", logger.String("key", object.Key), logger.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing %s: %v", object.Key, err))
			return
		}
		result.WorkItemsIngested += len(items)
	}
	result.FilesProcessed++

	log.Debug("manifest ingested",
		logger.String("file", filename),
		logger.Int("work_items", len(items)))
}

func (e *Engine) finish(ctx context.Context, id uint, status string, records int, message *string) {
	if err := e.syncLogs.Finish(context.WithoutCancel(ctx), id, status, records, message); err != nil {
		e.log.Warn("failed to close sync log entry", logger.Error(err))
	}
}

func (e *Engine) record(result *Result) {
	status := metrics.StatusSuccess
	if result.Status == datastore.SyncStatusCompletedWithErrors {
		status = metrics.StatusPartial
	}
	e.metrics.RecordOperation(metrics.OpIngest, status)
	e.metrics.RecordDuration(metrics.OpIngest, result.DurationSeconds)
	e.metrics.RecordIngestion(result.FilesProcessed, result.WorkItemsIngested, len(result.Errors))
}
