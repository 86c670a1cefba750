package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datasync"
	"github.com/tphakala/reviewdash/internal/ingest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu       sync.Mutex
	kinds    []datasync.Kind
	ingests  int
	refreshs int
}

func (r *recorder) SyncAll(_ context.Context, kind datasync.Kind) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return map[string]bool{"task": true, "review_detail": false}
}

func (r *recorder) Ingest(context.Context, string) (*ingest.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingests++
	return &ingest.Result{Status: "completed"}, nil
}

func (r *recorder) Refresh(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshs++
	return 3, nil
}

func (r *recorder) snapshot() (kinds []datasync.Kind, ingests, refreshs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]datasync.Kind(nil), r.kinds...), r.ingests, r.refreshs
}

func runFor(t *testing.T, s *Scheduler, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_InitialSyncThenScheduled(t *testing.T) {
	r := &recorder{}
	s := New(conf.SchedulerSettings{SyncOnStart: true, SyncInterval: 10 * time.Millisecond}, r, nil, nil)

	runFor(t, s, func() bool {
		kinds, _, _ := r.snapshot()
		return len(kinds) >= 2
	})

	kinds, _, _ := r.snapshot()
	assert.Equal(t, datasync.KindInitial, kinds[0])
	for _, k := range kinds[1:] {
		assert.Equal(t, datasync.KindScheduled, k)
	}
}

func TestScheduler_IngestAndRefresh(t *testing.T) {
	r := &recorder{}
	s := New(conf.SchedulerSettings{
		IngestInterval:           10 * time.Millisecond,
		DimensionRefreshInterval: 10 * time.Millisecond,
	}, r, r, r)

	runFor(t, s, func() bool {
		_, ingests, refreshs := r.snapshot()
		return ingests >= 1 && refreshs >= 1
	})

	kinds, _, _ := r.snapshot()
	assert.Empty(t, kinds, "sync runs neither at start nor on a timer when both are off")
}

func TestScheduler_NothingEnabledStopsOnCancel(t *testing.T) {
	s := New(conf.SchedulerSettings{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	s.Run(ctx)
}
