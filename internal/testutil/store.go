package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/logger"
)

// NewTestStore opens a migrated in-memory SQLite store closed at test cleanup.
func NewTestStore(t *testing.T) *datastore.Store {
	t.Helper()
	settings := &conf.DatabaseSettings{Type: datastore.DialectSQLite}
	settings.SQLite.Path = ":memory:"
	store, err := datastore.Open(t.Context(), settings, logger.NewSlogLogger(testWriter{t}, logger.LogLevelWarn, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// testWriter sends log output to t.Log so it only shows for failing tests.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
