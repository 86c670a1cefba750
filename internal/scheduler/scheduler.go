// Package scheduler triggers warehouse syncs, object-store ingestion and
// dimension allow-list refreshes on fixed intervals while the server runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datasync"
	"github.com/tphakala/reviewdash/internal/ingest"
	"github.com/tphakala/reviewdash/internal/logger"
)

// Syncer runs a full warehouse sync.
type Syncer interface {
	SyncAll(ctx context.Context, kind datasync.Kind) map[string]bool
}

// Ingester ingests every object-store partition when partition is empty.
type Ingester interface {
	Ingest(ctx context.Context, partition string) (*ingest.Result, error)
}

// Refresher reloads the dimension allow-list.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Scheduler owns one goroutine per enabled job. Runs of the same job never
// overlap: the next tick is only consumed after the previous run returned.
type Scheduler struct {
	settings  conf.SchedulerSettings
	syncer    Syncer
	ingester  Ingester
	refresher Refresher
	log       logger.Logger
}

// New creates a scheduler. Any of the job targets may be nil to disable it.
func New(settings conf.SchedulerSettings, syncer Syncer, ingester Ingester, refresher Refresher) *Scheduler {
	return &Scheduler{
		settings:  settings,
		syncer:    syncer,
		ingester:  ingester,
		refresher: refresher,
		log:       logger.Global().Module("scheduler"),
	}
}

// Run blocks until ctx is cancelled and all running jobs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if s.syncer != nil && (s.settings.SyncOnStart || s.settings.SyncInterval > 0) {
		wg.Go(func() { s.syncLoop(ctx) })
	}
	if s.ingester != nil && s.settings.IngestInterval > 0 {
		wg.Go(func() { s.every(ctx, "ingest", s.settings.IngestInterval, s.runIngest) })
	}
	if s.refresher != nil && s.settings.DimensionRefreshInterval > 0 {
		wg.Go(func() { s.every(ctx, "dimension_refresh", s.settings.DimensionRefreshInterval, s.runRefresh) })
	}

	s.log.Info("scheduler started",
		logger.Duration("sync_interval", s.settings.SyncInterval),
		logger.Duration("ingest_interval", s.settings.IngestInterval),
		logger.Duration("dimension_refresh_interval", s.settings.DimensionRefreshInterval),
		logger.Bool("sync_on_start", s.settings.SyncOnStart))

	<-ctx.Done()
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	if s.settings.SyncOnStart {
		s.runSync(ctx, datasync.KindInitial)
	}
	if s.settings.SyncInterval <= 0 {
		return
	}
	s.every(ctx, "sync", s.settings.SyncInterval, func(ctx context.Context) {
		s.runSync(ctx, datasync.KindScheduled)
	})
}

func (s *Scheduler) every(ctx context.Context, job string, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Debug("scheduled job triggered", logger.String("job", job))
			run(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context, kind datasync.Kind) {
	results := s.syncer.SyncAll(ctx, kind)
	failed := 0
	for _, ok := range results {
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn("scheduled sync finished with failures",
			logger.String("kind", string(kind)),
			logger.Int("failed_tables", failed))
	}
}

func (s *Scheduler) runIngest(ctx context.Context) {
	result, err := s.ingester.Ingest(ctx, "")
	if err != nil {
		s.log.Error("scheduled ingestion failed", logger.Error(err))
		return
	}
	s.log.Info("scheduled ingestion finished",
		logger.String("status", result.Status),
		logger.Int("files_processed", result.FilesProcessed),
		logger.Int("work_items_ingested", result.WorkItemsIngested),
		logger.Int("errors", len(result.Errors)))
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	n, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.log.Error("dimension allow-list refresh failed", logger.Error(err))
		return
	}
	s.log.Debug("dimension allow-list refreshed", logger.Int("dimensions", n))
}
