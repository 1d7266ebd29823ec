package source

import (
	"context"
	"errors"
	"io"
	"net/textproto"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"

	"scan-indexer/internal/config"
	"scan-indexer/internal/ftppool"
)

// fakeFTP serves a fixed tree. globSupport controls whether NLST expands
// patterns.
type fakeFTP struct {
	mu          sync.Mutex
	dirs        map[string][]*ftp.Entry
	files       map[string]string
	globSupport bool
	failNext    atomic.Int32
	hang        chan struct{}
	quits       atomic.Int32
}

func (f *fakeFTP) dial(context.Context) (ftppool.Session, error) {
	return &fakeSession{srv: f}, nil
}

type fakeSession struct {
	srv *fakeFTP
}

var errConnReset = errors.New("read tcp: connection reset by peer")

func (s *fakeSession) fail() error {
	if s.srv.hang != nil {
		<-s.srv.hang
	}
	if s.srv.failNext.Load() > 0 {
		s.srv.failNext.Add(-1)
		return errConnReset
	}
	return nil
}

func (s *fakeSession) List(p string) ([]*ftp.Entry, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	entries, ok := s.srv.dirs[p]
	if !ok {
		return nil, &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such directory"}
	}
	return entries, nil
}

func (s *fakeSession) NameList(p string) ([]string, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	dir, pattern := p, ""
	if strings.ContainsAny(path.Base(p), "*?[") {
		if !s.srv.globSupport {
			return nil, &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file"}
		}
		dir, pattern = path.Dir(p), path.Base(p)
	}
	entries, ok := s.srv.dirs[dir]
	if !ok {
		return nil, &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such directory"}
	}
	var out []string
	for _, e := range entries {
		if pattern != "" {
			if ok, _ := path.Match(pattern, e.Name); !ok {
				continue
			}
		}
		out = append(out, dir+"/"+e.Name)
	}
	return out, nil
}

func (s *fakeSession) Retr(p string) (io.ReadCloser, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	content, ok := s.srv.files[p]
	if !ok {
		return nil, &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file"}
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *fakeSession) NoOp() error { return nil }
func (s *fakeSession) Quit() error {
	s.srv.quits.Add(1)
	return nil
}

func newFakeFTP() *fakeFTP {
	return &fakeFTP{
		dirs: map[string][]*ftp.Entry{
			"/Film List": {
				{Name: "as001", Type: ftp.EntryTypeFolder},
				{Name: "as002", Type: ftp.EntryTypeFolder},
				{Name: "bx003", Type: ftp.EntryTypeFolder},
				{Name: "notes.txt", Type: ftp.EntryTypeFile},
				{Name: ".", Type: ftp.EntryTypeFolder},
			},
		},
		files: map[string]string{
			"/Film List/as001/strategy.ini": "[S]\nV=1\nStrategyName=R1\n",
		},
	}
}

func newTestFTPSource(srv *fakeFTP, deadline time.Duration) *FTPSource {
	pool := ftppool.New("ftp1", srv.dial, ftppool.Config{Size: 2, CheckoutTimeout: time.Second})
	return NewFTP(config.ServerConfig{Name: "ftp1", OpDeadline: deadline}, pool)
}

func TestFTPListEntries(t *testing.T) {
	t.Parallel()

	src := newTestFTPSource(newFakeFTP(), time.Second)
	defer func() { _ = src.Close() }()

	entries, err := src.ListEntries(context.Background(), "/Film List")
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries (dot skipped), got %d", len(entries))
	}
	for _, e := range entries {
		wantDir := e.Name != "notes.txt"
		if e.IsDir != wantDir {
			t.Errorf("Entry %s: expected IsDir=%v, got %v", e.Name, wantDir, e.IsDir)
		}
	}
}

func TestFTPMissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	src := newTestFTPSource(newFakeFTP(), time.Second)
	defer func() { _ = src.Close() }()

	entries, err := src.ListEntries(context.Background(), "/nowhere")
	if err != nil {
		t.Fatalf("Expected nil error for 550, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestFTPListGlob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		globSupport bool
	}{
		{name: "server side glob", globSupport: true},
		{name: "fallback to plain NLST", globSupport: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newFakeFTP()
			srv.globSupport = tt.globSupport
			src := newTestFTPSource(srv, time.Second)
			defer func() { _ = src.Close() }()

			entries, err := src.ListGlob(context.Background(), "/Film List", "as*")
			if err != nil {
				t.Fatalf("ListGlob failed: %v", err)
			}
			got := entryNames(entries)
			if len(got) != 2 || got[0] != "as001" || got[1] != "as002" {
				t.Errorf("Expected [as001 as002], got %v", got)
			}
		})
	}
}

func TestFTPConnectionErrorRetriedOnFreshSession(t *testing.T) {
	t.Parallel()

	srv := newFakeFTP()
	srv.failNext.Store(1)
	src := newTestFTPSource(srv, time.Second)
	defer func() { _ = src.Close() }()

	entries, err := src.ListEntries(context.Background(), "/Film List")
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(entries) == 0 {
		t.Error("Expected entries after retry")
	}
	if srv.quits.Load() != 1 {
		t.Errorf("Expected the failed session to be closed, got %d quits", srv.quits.Load())
	}
}

func TestFTPConnectionErrorTwiceIsListingFailed(t *testing.T) {
	t.Parallel()

	srv := newFakeFTP()
	srv.failNext.Store(2)
	src := newTestFTPSource(srv, time.Second)
	defer func() { _ = src.Close() }()

	_, err := src.ListEntries(context.Background(), "/Film List")
	if !errors.Is(err, ErrListingFailed) {
		t.Errorf("Expected ErrListingFailed, got %v", err)
	}
}

func TestFTPDeadline(t *testing.T) {
	t.Parallel()

	srv := newFakeFTP()
	srv.hang = make(chan struct{})
	src := newTestFTPSource(srv, 20*time.Millisecond)
	defer func() { _ = src.Close() }()

	_, err := src.ListEntries(context.Background(), "/Film List")
	if !errors.Is(err, ErrListingFailed) {
		t.Errorf("Expected ErrListingFailed on deadline, got %v", err)
	}
	close(srv.hang)
}

func TestFTPReadHead(t *testing.T) {
	t.Parallel()

	src := newTestFTPSource(newFakeFTP(), time.Second)
	defer func() { _ = src.Close() }()

	lines, err := src.ReadHead(context.Background(), "/Film List/as001/strategy.ini", 6)
	if err != nil {
		t.Fatalf("ReadHead failed: %v", err)
	}
	if len(lines) != 3 || lines[2] != "StrategyName=R1" {
		t.Errorf("Unexpected lines %q", lines)
	}

	if _, err := src.ReadHead(context.Background(), "/Film List/as002/strategy.ini", 6); !errors.Is(err, ErrReadFailed) {
		t.Errorf("Expected ErrReadFailed, got %v", err)
	}
}

func TestFTPUnavailable(t *testing.T) {
	t.Parallel()

	dial := func(context.Context) (ftppool.Session, error) {
		return nil, errors.New("connection refused")
	}
	pool := ftppool.New("down", dial, ftppool.Config{Size: 1, CheckoutTimeout: time.Second, RetryBackoff: time.Millisecond})
	src := NewFTP(config.ServerConfig{Name: "down"}, pool)
	defer func() { _ = src.Close() }()

	_, err := src.ListEntries(context.Background(), "/")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable, got %v", err)
	}
}

func TestRegistryReusesSources(t *testing.T) {
	t.Parallel()

	opened := 0
	reg := NewRegistry(func(cfg config.ServerConfig) (Source, error) {
		opened++
		return NewFilesystem(cfg.Name, config.SourceLocal, LocalRetryConfig()), nil
	})

	cfg := config.ServerConfig{Name: "A", Source: config.SourceLocal}
	s1, err := reg.Get(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := reg.Get(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 || opened != 1 {
		t.Errorf("Expected one shared source, opened %d", opened)
	}
	if len(reg.PoolStats()) != 0 {
		t.Error("Expected no pool stats for filesystem sources")
	}
	if err := reg.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenSelectsVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source config.SourceKind
		want   config.SourceKind
	}{
		{config.SourceLocal, config.SourceLocal},
		{config.SourceNetwork, config.SourceNetwork},
		{config.SourceFTP, config.SourceFTP},
	}
	for _, tt := range tests {
		s, err := Open(config.ServerConfig{Name: "x", Source: tt.source, Address: "127.0.0.1", Port: 21})
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", tt.source, err)
		}
		if s.Kind() != tt.want {
			t.Errorf("Open(%s).Kind() = %s", tt.source, s.Kind())
		}
		_ = s.Close()
	}

	if _, err := Open(config.ServerConfig{Name: "x", Source: "s3"}); err == nil {
		t.Error("Expected error for unknown source")
	}
}
