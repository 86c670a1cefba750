package objectstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// sftpConnectFunc opens a client and returns a function releasing it.
type sftpConnectFunc func(ctx context.Context) (*sftp.Client, func(), error)

// SFTPStore reads partitions from a directory on an SFTP server. Every call
// opens its own connection.
type SFTPStore struct {
	prefix  string
	connect sftpConnectFunc
	log     logger.Logger
}

// NewSFTPStore creates an SFTP backend. The connection is opened lazily.
func NewSFTPStore(settings *conf.ObjectStoreSettings, log logger.Logger) (*SFTPStore, error) {
	if log == nil {
		log = logger.Global().Module("objectstore")
	}
	cfg := settings.SFTP
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp: host is required")
	}
	if cfg.KeyFile == "" && cfg.Password == "" {
		return nil, fmt.Errorf("sftp: no authentication method provided")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &sftpDialer{
		addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username:       cfg.Username,
		password:       cfg.Password,
		keyFile:        cfg.KeyFile,
		knownHostsFile: cfg.KnownHostsFile,
		timeout:        timeout,
	}

	l := log.Module("sftp")
	if cfg.KnownHostsFile == "" {
		l.Warn("sftp host key verification disabled", logger.String("host", cfg.Host))
	}

	return &SFTPStore{prefix: cleanPrefix(settings.Prefix), connect: dialer.connect, log: l}, nil
}

type sftpDialer struct {
	addr           string
	username       string
	password       string
	keyFile        string
	knownHostsFile string
	timeout        time.Duration
}

func (d *sftpDialer) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:            d.username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // opt-in via empty known hosts file
		Timeout:         d.timeout,
	}

	if d.knownHostsFile != "" {
		callback, err := knownhosts.New(d.knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to load known hosts: %w", err)
		}
		config.HostKeyCallback = callback
	}

	switch {
	case d.keyFile != "":
		key, err := os.ReadFile(d.keyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	default:
		config.Auth = []ssh.AuthMethod{ssh.Password(d.password)}
	}
	return config, nil
}

// connect dials in a goroutine so a cancelled context does not wait for the SSH handshake.
func (d *sftpDialer) connect(ctx context.Context) (*sftp.Client, func(), error) {
	config, err := d.clientConfig()
	if err != nil {
		return nil, nil, err
	}

	type connResult struct {
		client  *sftp.Client
		sshConn *ssh.Client
		err     error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		sshConn, err := ssh.Dial("tcp", d.addr, config)
		if err != nil {
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to connect: %w", err)}
			return
		}
		client, err := sftp.NewClient(sshConn)
		if err != nil {
			_ = sshConn.Close()
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to create client: %w", err)}
			return
		}
		resultChan <- connResult{client: client, sshConn: sshConn}
	}()

	select {
	case <-ctx.Done():
		// Release a connection that completes after cancellation
		go func() {
			if r := <-resultChan; r.err == nil {
				_ = r.client.Close()
				_ = r.sshConn.Close()
			}
		}()
		return nil, nil, ctx.Err()
	case r := <-resultChan:
		if r.err != nil {
			return nil, nil, r.err
		}
		return r.client, func() {
			_ = r.client.Close()
			_ = r.sshConn.Close()
		}, nil
	}
}

func (s *SFTPStore) dir(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func (s *SFTPStore) ListPartitions(ctx context.Context) ([]string, error) {
	client, release, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeSFTP, "connect", "")
	}
	defer release()

	entries, err := client.ReadDir(s.dir(s.prefix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, wrapErr(err, TypeSFTP, "list_partitions", "")
	}

	partitions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			partitions = append(partitions, e.Name())
		}
	}
	slices.Sort(partitions)
	return partitions, nil
}

func (s *SFTPStore) ListObjects(ctx context.Context, partition string) ([]ObjectInfo, error) {
	if err := validPartition(partition); err != nil {
		return nil, wrapErr(err, TypeSFTP, "list_objects", "")
	}
	client, release, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeSFTP, "connect", "")
	}
	defer release()

	base := partitionKey(s.prefix, partition)
	var objects []ObjectInfo
	for walker := client.Walk(base); walker.Step(); {
		if err := walker.Err(); err != nil {
			return nil, wrapErr(err, TypeSFTP, "list_objects", walker.Path())
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := walker.Stat()
		if !info.Mode().IsRegular() {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          walker.Path(),
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
	}
	sortObjects(objects)
	return objects, nil
}

func (s *SFTPStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	client, release, err := s.connect(ctx)
	if err != nil {
		return nil, wrapErr(err, TypeSFTP, "connect", key)
	}
	defer release()

	f, err := client.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, wrapErr(err, TypeSFTP, "get_object", key)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, wrapErr(err, TypeSFTP, "read_object", key)
	}
	return data, nil
}
