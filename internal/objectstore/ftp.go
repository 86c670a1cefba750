package objectstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// FTPStore reads partitions from a directory on an FTP server.
type FTPStore struct {
	addr     string
	username string
	password string
	timeout  time.Duration
	prefix   string
	log      logger.Logger
}

// NewFTPStore creates an FTP backend. The connection is opened lazily.
func NewFTPStore(settings *conf.ObjectStoreSettings, log logger.Logger) (*FTPStore, error) {
	if log == nil {
		log = logger.Global().Module("objectstore")
	}
	cfg := settings.FTP
	if cfg.Host == "" {
		return nil, fmt.Errorf("ftp: host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 21
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	username := cfg.Username
	if username == "" {
		username = "anonymous"
	}

	return &FTPStore{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username: username,
		password: cfg.Password,
		timeout:  timeout,
		prefix:   cleanPrefix(settings.Prefix),
		log:      log.Module("ftp"),
	}, nil
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp: failed to connect: %w", err)
	}
	if err := conn.Login(s.username, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp: login failed: %w", err)
	}
	return conn, nil
}

func (s *FTPStore) quit(conn *ftp.ServerConn) {
	if err := conn.Quit(); err != nil {
		s.log.Debug("failed to close FTP connection", logger.Error(err))
	}
}

func (s *FTPStore) dir(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func (s *FTPStore) ListPartitions(ctx context.Context) ([]string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeFTP, "connect", "")
	}
	defer s.quit(conn)

	entries, err := conn.List(s.dir(s.prefix))
	if err != nil {
		return nil, wrapErr(err, TypeFTP, "list_partitions", "")
	}
	return ftpPartitions(entries), nil
}

func (s *FTPStore) ListObjects(ctx context.Context, partition string) ([]ObjectInfo, error) {
	if err := validPartition(partition); err != nil {
		return nil, wrapErr(err, TypeFTP, "list_objects", "")
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeFTP, "connect", "")
	}
	defer s.quit(conn)

	base := partitionKey(s.prefix, partition)
	var entries []*ftp.Entry
	for walker := conn.Walk(base); walker.Next(); {
		if err := walker.Err(); err != nil {
			return nil, wrapErr(err, TypeFTP, "list_objects", walker.Path())
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// entries are named relative to base so nested manifests keep their folder
		entry := *walker.Stat()
		entry.Name = strings.TrimPrefix(strings.TrimPrefix(walker.Path(), base), "/")
		entries = append(entries, &entry)
	}
	return ftpObjects(base, entries), nil
}

func (s *FTPStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeFTP, "connect", key)
	}
	defer s.quit(conn)

	resp, err := conn.Retr(key)
	if err != nil {
		if isFTPNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, wrapErr(err, TypeFTP, "get_object", key)
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, wrapErr(err, TypeFTP, "read_object", key)
	}
	return data, nil
}

func ftpPartitions(entries []*ftp.Entry) []string {
	partitions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == ftp.EntryTypeFolder && e.Name != "." && e.Name != ".." {
			partitions = append(partitions, e.Name)
		}
	}
	slices.Sort(partitions)
	return partitions
}

func ftpObjects(base string, entries []*ftp.Entry) []ObjectInfo {
	objects := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          path.Join(base, e.Name),
			LastModified: e.Time.UTC(),
			Size:         int64(e.Size), //nolint:gosec // file sizes fit in int64
		})
	}
	sortObjects(objects)
	return objects
}

// isFTPNotFound matches the 550 reply servers send for missing files.
func isFTPNotFound(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}
