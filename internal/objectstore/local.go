package objectstore

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// LocalStore reads partitions from a directory tree. Partitions are the
// subdirectories under the prefix and an object's modification time is its
// last modified timestamp.
type LocalStore struct {
	fs     afero.Fs
	prefix string
	log    logger.Logger
}

// NewLocalStore serves the directory root.
func NewLocalStore(root, prefix string, log logger.Logger) (*LocalStore, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root), prefix, log), nil
}

// NewLocalStoreFs serves an existing filesystem, tests use an in-memory one.
func NewLocalStoreFs(fsys afero.Fs, prefix string, log logger.Logger) *LocalStore {
	if log == nil {
		log = logger.Global().Module("objectstore")
	}
	return &LocalStore{fs: fsys, prefix: cleanPrefix(prefix), log: log.Module("local")}
}

func (s *LocalStore) dir(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + p
}

func (s *LocalStore) ListPartitions(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir(s.prefix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, wrapErr(err, TypeLocal, "list_partitions", "")
	}

	partitions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			partitions = append(partitions, e.Name())
		}
	}
	slices.Sort(partitions)
	return partitions, ctx.Err()
}

func (s *LocalStore) ListObjects(ctx context.Context, partition string) ([]ObjectInfo, error) {
	if err := validPartition(partition); err != nil {
		return nil, wrapErr(err, TypeLocal, "list_objects", "")
	}
	base := partitionKey(s.prefix, partition)

	var objects []ObjectInfo
	err := afero.Walk(s.fs, s.dir(base), func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Key:          strings.TrimPrefix(filepath.ToSlash(p), "/"),
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, wrapErr(err, TypeLocal, "list_objects", base)
	}
	sortObjects(objects)
	return objects, nil
}

func (s *LocalStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.dir(path.Clean(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, wrapErr(err, TypeLocal, "get_object", key)
	}
	return data, nil
}
