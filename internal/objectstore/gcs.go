package objectstore

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// GCSStore reads a Google Cloud Storage bucket through the JSON API.
type GCSStore struct {
	service *storage.Service
	bucket  string
	prefix  string
	log     logger.Logger
}

// NewGCSStore creates a GCS backend. Extra options follow the configured
// ones, tests pass option.WithHTTPClient.
func NewGCSStore(ctx context.Context, settings *conf.ObjectStoreSettings, log logger.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if log == nil {
		log = logger.Global().Module("objectstore")
	}

	clientOpts := []option.ClientOption{option.WithScopes(storage.DevstorageReadOnlyScope)}
	if settings.GCS.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(settings.GCS.CredentialsFile))
	}
	if settings.GCS.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(settings.GCS.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := storage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	return &GCSStore{
		service: service,
		bucket:  settings.GCS.Bucket,
		prefix:  cleanPrefix(settings.Prefix),
		log:     log.Module("gcs"),
	}, nil
}

func (s *GCSStore) listPrefix(p string) string {
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *GCSStore) ListPartitions(ctx context.Context) ([]string, error) {
	prefix := s.listPrefix(s.prefix)

	var partitions []string
	err := s.service.Objects.List(s.bucket).
		Prefix(prefix).
		Fields("nextPageToken", "prefixes").
		Pages(ctx, func(page *storage.Objects) error {
			for _, p := range page.Prefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
				if name != "" {
					partitions = append(partitions, name)
				}
			}
			return nil
		})
	if err != nil {
		return nil, wrapErr(err, TypeGCS, "list_partitions", "")
	}

	slices.Sort(partitions)
	return slices.Compact(partitions), nil
}

func (s *GCSStore) ListObjects(ctx context.Context, partition string) ([]ObjectInfo, error) {
	if err := validPartition(partition); err != nil {
		return nil, wrapErr(err, TypeGCS, "list_objects", "")
	}
	prefix := s.listPrefix(partitionKey(s.prefix, partition))

	var objects []ObjectInfo
	err := s.service.Objects.List(s.bucket).
		Prefix(prefix).
		Fields("nextPageToken", "items(name,size,updated)").
		Pages(ctx, func(page *storage.Objects) error {
			for _, obj := range page.Items {
				if strings.HasSuffix(obj.Name, "/") {
					continue
				}
				updated, err := time.Parse(time.RFC3339Nano, obj.Updated)
				if err != nil {
					s.log.Warn("object has unparseable update time",
						logger.String("key", obj.Name),
						logger.String("updated", obj.Updated))
				}
				objects = append(objects, ObjectInfo{
					Key:          obj.Name,
					LastModified: updated.UTC(),
					Size:         int64(obj.Size), //nolint:gosec // object sizes fit in int64
				})
			}
			return nil
		})
	if err != nil {
		return nil, wrapErr(err, TypeGCS, "list_objects", prefix)
	}

	sortObjects(objects)
	return objects, nil
}

func (s *GCSStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.service.Objects.Get(s.bucket, key).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, wrapErr(err, TypeGCS, "get_object", key)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(err, TypeGCS, "read_object", key)
	}
	return data, nil
}
