package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
	"github.com/tphakala/reviewdash/internal/warehouse"
)

const allowListKey = "allowed_dimensions"

// AllowList caches the quality dimension names enabled for the project.
// Entries never expire; Refresh replaces them.
type AllowList struct {
	client warehouse.Client
	query  warehouse.Query
	cache  *cache.Cache
	loadMu sync.Mutex

	log     logger.Logger
	metrics metrics.Recorder
}

// NewAllowList creates an allow-list loaded on first use by running query.
func NewAllowList(client warehouse.Client, query warehouse.Query, rec metrics.Recorder) *AllowList {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &AllowList{
		client: client,
		query:  query,
		// no janitor goroutine, nothing expires
		cache:   cache.New(cache.NoExpiration, 0),
		log:     logger.Global().Module("aggregate"),
		metrics: rec,
	}
}

// Names returns the allowed dimension names, loading them when the cache is
// empty. A failed load yields an empty set and is retried on the next call.
func (a *AllowList) Names(ctx context.Context) map[string]struct{} {
	if names, ok := a.cached(); ok {
		return names
	}

	a.loadMu.Lock()
	defer a.loadMu.Unlock()
	if names, ok := a.cached(); ok {
		return names
	}

	names, err := a.load(ctx)
	if err != nil {
		a.log.Error("failed to load allowed quality dimensions", logger.Error(err))
		return map[string]struct{}{}
	}
	return names
}

// Contains reports whether name is an allowed dimension.
func (a *AllowList) Contains(ctx context.Context, name string) bool {
	_, ok := a.Names(ctx)[name]
	return ok
}

// Refresh reloads the allow-list and returns the number of names loaded.
// On failure the cache is left empty so the next read retries.
func (a *AllowList) Refresh(ctx context.Context) (int, error) {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	a.cache.Delete(allowListKey)
	names, err := a.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

func (a *AllowList) cached() (map[string]struct{}, bool) {
	v, found := a.cache.Get(allowListKey)
	if !found {
		return nil, false
	}
	names, ok := v.(map[string]struct{})
	return names, ok
}

func (a *AllowList) load(ctx context.Context) (map[string]struct{}, error) {
	start := time.Now()
	rows, err := a.client.Query(ctx, a.query)
	a.metrics.RecordDuration(metrics.OpAllowListRefresh, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordOperation(metrics.OpAllowListRefresh, metrics.StatusError)
		return nil, errors.New(err).
			Component("aggregate").
			Category(errors.CategoryWarehouse).
			Context("operation", "load_allowed_dimensions").
			Build()
	}

	names := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if name := row.String("name"); name != nil && *name != "" {
			names[*name] = struct{}{}
		}
	}
	a.cache.Set(allowListKey, names, cache.NoExpiration)
	a.metrics.RecordOperation(metrics.OpAllowListRefresh, metrics.StatusSuccess)

	a.log.Info("loaded allowed quality dimensions", logger.Int("count", len(names)))
	return names, nil
}
