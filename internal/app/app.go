// Package app wires settings into the pipeline components shared by the
// CLI commands and the server.
package app

import (
	"context"
	"sync"

	"github.com/tphakala/reviewdash/internal/aggregate"
	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/datasync"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/feedback"
	"github.com/tphakala/reviewdash/internal/ingest"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/mqtt"
	"github.com/tphakala/reviewdash/internal/notification"
	"github.com/tphakala/reviewdash/internal/objectstore"
	"github.com/tphakala/reviewdash/internal/observability"
	"github.com/tphakala/reviewdash/internal/reconcile"
	"github.com/tphakala/reviewdash/internal/warehouse"
)

// App owns the long-lived components. Warehouse and object store backed
// components are created on first use, so commands that never touch them
// do not need their credentials.
type App struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics
	Store    *datastore.Store

	reconciler *reconcile.Reconciler
	publisher  *mqtt.Publisher
	notifier   *notification.Notifier
	log        logger.Logger

	mu        sync.Mutex
	warehouse warehouse.Client
	queries   *warehouse.Queries
	objects   objectstore.Store
	syncer    *datasync.Orchestrator
	ingester  *ingest.Engine
	stats     *aggregate.Engine
	feedback  *feedback.Service
}

// New opens the relational store and sets up metrics and event delivery.
func New(ctx context.Context, settings *conf.Settings) (*App, error) {
	log := logger.Global().Module("app")

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}

	store, err := datastore.Open(ctx, &settings.Database, logger.Global().Module("datastore"))
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings: settings,
		Metrics:  m,
		Store:    store,
		log:      log,
	}
	a.reconciler = reconcile.New(store.DB(), settings.Reconcile.ChunkSize, reconcile.WithMetrics(m.Pipeline))

	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(&settings.MQTT, m.MQTT)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.publisher = mqtt.NewPublisher(client, settings.MQTT.Topic)
	}

	if settings.Notification.Enabled {
		n, err := notification.NewNotifier(&settings.Notification, m.Notification)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.notifier = n
	}

	return a, nil
}

// Close disconnects from the broker and closes the store.
func (a *App) Close() error {
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.Store.Close()
}

// SyncLogs returns the sync audit log repository.
func (a *App) SyncLogs() repository.SyncLogRepository {
	return repository.NewSyncLogRepository(a.Store.DB())
}

// Syncer returns the warehouse sync orchestrator.
func (a *App) Syncer(ctx context.Context) (*datasync.Orchestrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.syncer != nil {
		return a.syncer, nil
	}
	if err := a.initWarehouse(ctx); err != nil {
		return nil, err
	}

	opts := []datasync.Option{datasync.WithMetrics(a.Metrics.Pipeline)}
	if a.publisher != nil {
		opts = append(opts, datasync.WithPublisher(a.publisher))
	}
	if a.notifier != nil {
		opts = append(opts, datasync.WithNotifier(a.notifier))
	}
	a.syncer = datasync.New(a.warehouse, a.queries, a.Store, a.reconciler, &a.Settings.Sync, opts...)
	return a.syncer, nil
}

// Ingester returns the delivery ingestion engine.
func (a *App) Ingester(ctx context.Context) (*ingest.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ingester != nil {
		return a.ingester, nil
	}
	if a.objects == nil {
		objects, err := objectstore.New(ctx, &a.Settings.ObjectStore, logger.Global().Module("objectstore"))
		if err != nil {
			return nil, err
		}
		a.objects = objects
	}

	opts := []ingest.Option{ingest.WithMetrics(a.Metrics.Pipeline)}
	if a.publisher != nil {
		opts = append(opts, ingest.WithPublisher(a.publisher))
	}
	if a.notifier != nil {
		opts = append(opts, ingest.WithNotifier(a.notifier))
	}
	a.ingester = ingest.New(a.objects, a.Store, a.reconciler, &a.Settings.Ingest, opts...)
	return a.ingester, nil
}

// Stats returns the aggregation engine.
func (a *App) Stats(ctx context.Context) (*aggregate.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stats != nil {
		return a.stats, nil
	}
	if err := a.initWarehouse(ctx); err != nil {
		return nil, err
	}

	allow := aggregate.NewAllowList(a.warehouse, a.queries.AllowedDimensions(), a.Metrics.Pipeline)
	a.stats = aggregate.New(a.Store, allow, aggregate.WithMetrics(a.Metrics.Pipeline))
	return a.stats, nil
}

// Feedback returns the client feedback service.
func (a *App) Feedback() *feedback.Service {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.feedback == nil {
		opts := []feedback.Option{feedback.WithMetrics(a.Metrics.Pipeline)}
		if a.publisher != nil {
			opts = append(opts, feedback.WithPublisher(a.publisher))
		}
		a.feedback = feedback.NewService(a.Store, opts...)
	}
	return a.feedback
}

// initWarehouse creates the warehouse client; callers hold a.mu.
func (a *App) initWarehouse(ctx context.Context) error {
	if a.warehouse != nil {
		return nil
	}

	ws := &a.Settings.Warehouse
	queries, err := warehouse.NewQueries(ws.ProjectID, ws.Dataset, ws.ProjectFilter)
	if err != nil {
		return err
	}
	client, err := warehouse.NewBigQueryClient(ctx, ws, logger.Global().Module("warehouse"))
	if err != nil {
		return err
	}

	a.warehouse = client
	a.queries = queries
	return nil
}

// Run builds an App, calls fn and closes the App again.
func Run(ctx context.Context, settings *conf.Settings, fn func(ctx context.Context, a *App) error) error {
	a, err := New(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("failed to close store", logger.Error(err))
		}
	}()
	return fn(ctx, a)
}
