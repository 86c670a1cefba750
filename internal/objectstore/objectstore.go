// Package objectstore lists and reads delivery manifests from object storage.
//
// Objects are grouped into partitions, the first level of "folders" under the
// configured prefix. ListObjects walks a partition at any depth, and the keys
// it returns are passed back unchanged to GetObject.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// Supported backends
const (
	TypeGCS   = "gcs"
	TypeLocal = "local"
	TypeSFTP  = "sftp"
	TypeFTP   = "ftp"
)

// ErrObjectNotFound is returned by GetObject for a missing key.
var ErrObjectNotFound = errors.NewStd("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Name returns the last path segment of the key.
func (o ObjectInfo) Name() string { return path.Base(o.Key) }

// Store is a read only view of the delivery bucket.
type Store interface {
	// ListPartitions returns the sorted partition names under the prefix.
	ListPartitions(ctx context.Context) ([]string, error)
	// ListObjects returns every object inside a partition, subfolders included.
	ListObjects(ctx context.Context, partition string) ([]ObjectInfo, error)
	// GetObject returns the content of the object stored under key.
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// New creates the configured backend, rate limited when a limit is set.
func New(ctx context.Context, settings *conf.ObjectStoreSettings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("objectstore")
	}

	var (
		store Store
		err   error
	)
	switch settings.Type {
	case TypeGCS:
		store, err = NewGCSStore(ctx, settings, log)
	case TypeLocal:
		store, err = NewLocalStore(settings.Local.Path, settings.Prefix, log)
	case TypeSFTP:
		store, err = NewSFTPStore(settings, log)
	case TypeFTP:
		store, err = NewFTPStore(settings, log)
	default:
		err = fmt.Errorf("unsupported object store type %q", settings.Type)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Context("store_type", settings.Type).
			Build()
	}

	if settings.RateLimit > 0 {
		store = WithRateLimit(store, rate.NewLimiter(rate.Limit(settings.RateLimit), 1))
	}
	return store, nil
}

// cleanPrefix normalizes a key prefix to "a/b" form without surrounding slashes.
func cleanPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix)
}

// partitionKey joins prefix and partition.
func partitionKey(prefix, partition string) string {
	return path.Join(prefix, strings.Trim(partition, "/"))
}

// validPartition rejects names that would escape the prefix.
func validPartition(partition string) error {
	p := strings.Trim(partition, "/")
	if p == "" || p == "." || p == ".." || strings.Contains(p, "/") {
		return fmt.Errorf("invalid partition %q", partition)
	}
	return nil
}

func sortObjects(objects []ObjectInfo) {
	slices.SortFunc(objects, func(a, b ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
}

func wrapErr(err error, backend, operation, key string) error {
	if errors.Is(err, ErrObjectNotFound) {
		return err
	}
	b := errors.New(err).
		Component("objectstore").
		Category(errors.CategoryObjectStore).
		Context("backend", backend).
		Context("operation", operation)
	if key != "" {
		b = b.ObjectContext(key)
	}
	return b.Build()
}
