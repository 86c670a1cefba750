// Package datasync loads the dashboard tables from the warehouse.
//
// A run replaces contributor, task_reviewed_info, task and review_detail in
// that order, then reconciles delivered flags. Each table is contained: a
// failed table is recorded in the sync log and the run moves on.
package datasync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
	"github.com/tphakala/reviewdash/internal/reconcile"
	"github.com/tphakala/reviewdash/internal/warehouse"
)

// Kind tells what triggered a sync.
type Kind string

const (
	KindInitial   Kind = "initial"
	KindScheduled Kind = "scheduled"
	KindManual    Kind = "manual"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindInitial, KindScheduled, KindManual:
		return k, nil
	default:
		return "", errors.Newf("unknown sync kind %q", s).
			Component("datasync").
			Category(errors.CategoryValidation).
			Build()
	}
}

// EventSyncCompleted is published after every SyncAll.
const EventSyncCompleted = "sync.completed"

// ErrUnknownTable is returned by SyncTable for tables it does not load.
var ErrUnknownTable = errors.NewStd("table is not synced from the warehouse")

// Reconciler recomputes delivered flags after tables are replaced.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Publisher sends pipeline events, typically over MQTT.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Notifier alerts operators about failed runs.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Metrics is the subset of pipeline metrics the orchestrator records.
type Metrics interface {
	metrics.Recorder
	RecordTableSync(table string, rows int, duration time.Duration, ok bool)
}

type nopMetrics struct{ metrics.NopRecorder }

func (nopMetrics) RecordTableSync(string, int, time.Duration, bool) {}

// SyncCompleted is the payload of EventSyncCompleted.
type SyncCompleted struct {
	RunID           string            `json:"run_id"`
	Kind            Kind              `json:"kind"`
	Tables          map[string]bool   `json:"tables"`
	Reconcile       *reconcile.Result `json:"reconcile,omitempty"`
	ReconcileError  string            `json:"reconcile_error,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// tableLoader maps the rows of one warehouse query to a slice of models.
type tableLoader struct {
	name  string
	query func(*warehouse.Queries) warehouse.Query
	load  func(o *Orchestrator, rows []warehouse.Row) (any, error)
}

// syncOrder is load-bearing: task and review_detail read the lookup table,
// and reconciliation must follow the last replace or its flags are lost.
var syncOrder = []tableLoader{
	{
		name:  datastore.TableContributor,
		query: (*warehouse.Queries).Contributors,
		load:  func(_ *Orchestrator, rows []warehouse.Row) (any, error) { return mapContributors(rows) },
	},
	{
		name:  datastore.TableTaskReviewedInfo,
		query: (*warehouse.Queries).TaskReviewedInfo,
		load:  func(_ *Orchestrator, rows []warehouse.Row) (any, error) { return mapTaskReviewedInfo(rows) },
	},
	{
		name:  datastore.TableTask,
		query: (*warehouse.Queries).Tasks,
		load: func(o *Orchestrator, rows []warehouse.Row) (any, error) {
			return mapTasks(rows, o.settings.ProjectStartDate)
		},
	},
	{
		name:  datastore.TableReviewDetail,
		query: (*warehouse.Queries).ReviewDetails,
		load:  func(_ *Orchestrator, rows []warehouse.Row) (any, error) { return mapReviewDetails(rows) },
	},
}

// Tables returns the synced table names in sync order.
func Tables() []string {
	names := make([]string, len(syncOrder))
	for i, t := range syncOrder {
		names[i] = t.name
	}
	return names
}

// Orchestrator runs table syncs. Concurrent runs are not serialized.
type Orchestrator struct {
	client     warehouse.Client
	queries    *warehouse.Queries
	tables     repository.TableRepository
	syncLogs   repository.SyncLogRepository
	reconciler Reconciler
	settings   conf.SyncSettings

	log       logger.Logger
	metrics   Metrics
	publisher Publisher
	notifier  Notifier
	newRunID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records table sync outcomes.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithPublisher publishes a completion event after each SyncAll.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithNotifier alerts when a table or the reconciliation fails.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator writing to store.
func New(client warehouse.Client, queries *warehouse.Queries, store *datastore.Store, reconciler Reconciler, settings *conf.SyncSettings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:     client,
		queries:    queries,
		tables:     repository.NewTableRepository(store.DB(), store.Dialect()),
		syncLogs:   repository.NewSyncLogRepository(store.DB()),
		reconciler: reconciler,
		settings:   *settings,
		log:        logger.Global().Module("datasync"),
		metrics:    nopMetrics{},
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncAll replaces every table in order and then reconciles delivered flags.
// The returned map holds one entry per table; a reconciliation failure is
// logged and alerted but does not change it.
func (o *Orchestrator) SyncAll(ctx context.Context, kind Kind) map[string]bool {
	start := time.Now()
	runID := o.newRunID()
	log := o.log.With(logger.String("run_id", runID), logger.String("kind", string(kind)))
	log.Info("sync run started")

	results := make(map[string]bool, len(syncOrder))
	var failed []string
	for _, t := range syncOrder {
		ok := o.syncTable(ctx, t, kind, runID, log)
		results[t.name] = ok
		if !ok {
			failed = append(failed, t.name)
		}
	}

	event := SyncCompleted{RunID: runID, Kind: kind, Tables: results}

	reconciled, err := o.reconciler.Reconcile(ctx)
	if err != nil {
		event.ReconcileError = err.Error()
		log.Error("reconciliation after sync failed", logger.Error(err))
		o.notify(ctx, "Delivered status reconciliation failed",
			fmt.Sprintf("Sync run %s (%s): %v", runID, kind, err))
	} else {
		event.Reconcile = &reconciled
	}

	elapsed := time.Since(start)
	event.DurationSeconds = elapsed.Seconds()

	status := metrics.StatusSuccess
	if len(failed) > 0 {
		status = metrics.StatusPartial
		o.notify(ctx, "Warehouse sync failed",
			fmt.Sprintf("Sync run %s (%s) failed for tables: %v", runID, kind, failed))
	}
	o.metrics.RecordOperation(metrics.OpSyncAll, status)
	o.metrics.RecordDuration(metrics.OpSyncAll, elapsed.Seconds())

	o.publish(ctx, event)

	log.Info("sync run finished",
		logger.Int("tables", len(results)),
		logger.Int("failed", len(failed)),
		logger.Duration("elapsed", elapsed))
	return results
}

// SyncTable replaces a single table. Replacing task or review_detail resets
// their delivered flags, so reconciliation runs again after those.
// The error is only set for a table that is not synced.
func (o *Orchestrator) SyncTable(ctx context.Context, name string, kind Kind) (bool, error) {
	for _, t := range syncOrder {
		if t.name != name {
			continue
		}

		runID := o.newRunID()
		log := o.log.With(logger.String("run_id", runID), logger.String("kind", string(kind)))
		ok := o.syncTable(ctx, t, kind, runID, log)

		if ok && (name == datastore.TableTask || name == datastore.TableReviewDetail) {
			if _, err := o.reconciler.Reconcile(ctx); err != nil {
				log.Error("reconciliation after table sync failed",
					logger.String("table", name),
					logger.Error(err))
			}
		}
		if !ok {
			o.notify(ctx, "Warehouse sync failed",
				fmt.Sprintf("Sync run %s (%s) failed for table %s", runID, kind, name))
		}
		return ok, nil
	}

	return false, errors.New(ErrUnknownTable).
		Component("datasync").
		Category(errors.CategoryValidation).
		Context("table", name).
		Build()
}

// syncTable runs one table sync and records it in the sync log. Errors and
// panics stop here.
func (o *Orchestrator) syncTable(ctx context.Context, t tableLoader, kind Kind, runID string, log logger.Logger) (ok bool) {
	start := time.Now()
	log = log.With(logger.String("table", t.name))

	entry, err := o.syncLogs.Start(ctx, t.name, string(kind), runID)
	if err != nil {
		log.Error("failed to open sync log entry", logger.Error(err))
		o.metrics.RecordTableSync(t.name, 0, time.Since(start), false)
		return false
	}

	var rows int
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s sync: %v", t.name, r)
			log.Error("table sync panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			ok = false
		}

		// the log entry is closed even when ctx was cancelled mid run
		finishCtx := context.WithoutCancel(ctx)
		elapsed := time.Since(start)
		if ok {
			if ferr := o.syncLogs.Finish(finishCtx, entry.ID, datastore.SyncStatusCompleted, rows, nil); ferr != nil {
				log.Warn("failed to close sync log entry", logger.Error(ferr))
			}
			log.Info("table synced", logger.Int("rows", rows), logger.Duration("elapsed", elapsed))
		} else {
			msg := err.Error()
			if ferr := o.syncLogs.Finish(finishCtx, entry.ID, datastore.SyncStatusFailed, 0, &msg); ferr != nil {
				log.Warn("failed to close sync log entry", logger.Error(ferr))
			}
			log.Error("table sync failed", logger.Error(err), logger.Duration("elapsed", elapsed))
			o.metrics.RecordError(metrics.OpSyncTable, errorType(err))
		}
		o.metrics.RecordTableSync(t.name, rows, elapsed, ok)
	}()

	rows, err = o.replace(ctx, t)
	return err == nil
}

func (o *Orchestrator) replace(ctx context.Context, t tableLoader) (int, error) {
	queryStart := time.Now()
	result, err := o.client.Query(ctx, t.query(o.queries))
	o.metrics.RecordDuration(metrics.OpWarehouseQuery, time.Since(queryStart).Seconds())
	if err != nil {
		return 0, err
	}

	models, err := t.load(o, result)
	if err != nil {
		return 0, errors.New(err).
			Component("datasync").
			Category(errors.CategorySync).
			TableContext(t.name, len(result)).
			Context("operation", "map_rows").
			Build()
	}

	return o.tables.Replace(ctx, t.name, models, repository.ReplaceOptions{
		BatchSize:  o.settings.BatchSize,
		ShadowSwap: o.settings.ShadowSwap,
	})
}

func (o *Orchestrator) notify(ctx context.Context, title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), title, message); err != nil {
		o.log.Warn("failed to send sync alert", logger.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, event SyncCompleted) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), EventSyncCompleted, event); err != nil {
		o.log.Warn("failed to publish sync event", logger.Error(err))
	}
}

func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
