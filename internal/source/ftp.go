package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"

	"scan-indexer/internal/config"
	"scan-indexer/internal/ftppool"
	"scan-indexer/internal/logging"
)

// maxHeadBytes bounds how much of a file ReadHead pulls over FTP.
const maxHeadBytes = 64 << 10

var errDeadline = errors.New("operation deadline exceeded")

// FTPSource lists an FTP server through a session pool.
type FTPSource struct {
	server   string
	pool     *ftppool.Pool
	deadline time.Duration
}

// NewFTP creates an FTP source on top of pool. The source owns the pool.
func NewFTP(cfg config.ServerConfig, pool *ftppool.Pool) *FTPSource {
	deadline := cfg.OpDeadline
	if deadline <= 0 {
		deadline = config.DefaultOpDeadline
	}
	return &FTPSource{server: cfg.Name, pool: pool, deadline: deadline}
}

func (s *FTPSource) Kind() config.SourceKind { return config.SourceFTP }

// Pool exposes the session pool for stats collection.
func (s *FTPSource) Pool() *ftppool.Pool { return s.pool }

func (s *FTPSource) Close() error { return s.pool.Close() }

func (s *FTPSource) ListEntries(ctx context.Context, dir string) ([]Entry, error) {
	start := time.Now()
	var out []Entry
	err := s.run(ctx, "list", dir, func(c *ftppool.Conn) error {
		entries, err := c.List(dir)
		if err != nil {
			return err
		}
		out = make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." || e.Name == "" {
				continue
			}
			out = append(out, Entry{Name: path.Base(e.Name), IsDir: e.Type == ftp.EntryTypeFolder})
		}
		return nil
	})
	s.observe("list", start, err)
	if err != nil {
		return s.fail(dir, err)
	}
	return out, nil
}

// ListGlob sends NLST with a glob argument. Servers without glob support
// either fail or return nothing; both cases fall back to a plain NLST
// filtered locally. NLST carries no type information, so every name is
// reported as a directory.
func (s *FTPSource) ListGlob(ctx context.Context, dir, pattern string) ([]Entry, error) {
	start := time.Now()
	var names map[string]struct{}
	err := s.run(ctx, "glob", dir, func(c *ftppool.Conn) error {
		var err error
		names, err = globNames(c, dir, pattern)
		return err
	})
	s.observe("glob", start, err)
	if err != nil {
		return s.fail(dir, err)
	}

	out := make([]Entry, 0, len(names))
	for n := range names {
		out = append(out, Entry{Name: n, IsDir: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func globNames(c ftppool.Session, dir, pattern string) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	collect := func(list []string, filter bool) {
		for _, n := range list {
			n = path.Base(n)
			if n == "." || n == ".." || n == "" {
				continue
			}
			if filter {
				if ok, _ := path.Match(pattern, n); !ok {
					continue
				}
			}
			names[n] = struct{}{}
		}
	}

	list, err := c.NameList(Join(dir, pattern))
	if err == nil && len(list) > 0 {
		collect(list, true)
		// Some servers truncate the first globbed reply; a second probe
		// is unioned in.
		if again, err := c.NameList(Join(dir, pattern)); err == nil {
			collect(again, true)
		}
		return names, nil
	}
	if err != nil && !isProtocolError(err) {
		return nil, err
	}

	all, err := c.NameList(dir)
	if err != nil {
		return nil, err
	}
	collect(all, true)
	return names, nil
}

func (s *FTPSource) ReadHead(ctx context.Context, file string, n int) ([]string, error) {
	start := time.Now()
	var lines []string
	err := s.run(ctx, "read", file, func(c *ftppool.Conn) error {
		r, err := c.Retr(file)
		if err != nil {
			return err
		}
		lines, err = scanLines(bufio.NewScanner(io.LimitReader(r, maxHeadBytes)), n)
		// Drain so the transfer completes cleanly before the next command.
		_, _ = io.Copy(io.Discard, io.LimitReader(r, maxHeadBytes))
		if cerr := r.Close(); err == nil && cerr != nil && !isProtocolError(cerr) {
			err = cerr
		}
		return err
	})
	s.observe("read", start, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w: %w", s.server, file, ErrReadFailed, err)
	}
	return lines, nil
}

// run checks out a session and runs fn under the per-operation deadline.
// A connection-level failure retires the session and is retried once on a
// fresh one. A session stuck past the deadline is released, as unhealthy,
// only when its call finally returns.
func (s *FTPSource) run(ctx context.Context, op, target string, fn func(*ftppool.Conn) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, ftppool.ErrDial) {
				return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
			}
			return err
		}

		err = s.callWithDeadline(ctx, c, fn)
		if err == nil {
			if attempt > 0 {
				logging.Info("%s %s succeeded on retry for %s", s.server, op, target)
				if o := observe(); o != nil {
					o.ObserveRetry(s.server, op, true)
				}
			}
			return nil
		}
		lastErr = err
		if isProtocolError(err) || errors.Is(err, errDeadline) || ctx.Err() != nil {
			return err
		}
		logging.Debug("%s %s connection error for %s: %v", s.server, op, target, err)
	}
	if o := observe(); o != nil {
		o.ObserveRetry(s.server, op, false)
	}
	return lastErr
}

func (s *FTPSource) callWithDeadline(ctx context.Context, c *ftppool.Conn, fn func(*ftppool.Conn) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(c) }()

	timer := time.NewTimer(s.deadline)
	defer timer.Stop()

	select {
	case err := <-done:
		s.pool.Release(c, sessionHealthy(err))
		return err
	case <-timer.C:
		go func() {
			<-done
			s.pool.Release(c, false)
		}()
		return errDeadline
	case <-ctx.Done():
		go func() {
			<-done
			s.pool.Release(c, false)
		}()
		return ctx.Err()
	}
}

// fail maps a listing error: 550 becomes an empty result, errors the
// traversal handles itself pass through, anything else is ErrListingFailed.
func (s *FTPSource) fail(dir string, err error) ([]Entry, error) {
	if isNoSuchDir(err) {
		logging.Debug("%s skipping %s: %v", s.server, dir, err)
		return nil, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrSourceUnavailable) {
		return nil, err
	}
	return nil, fmt.Errorf("%s %s: %w: %w", s.server, dir, ErrListingFailed, err)
}

func (s *FTPSource) observe(op string, start time.Time, err error) {
	if o := observe(); o != nil {
		o.ObserveOperation(s.server, string(config.SourceFTP), op, time.Since(start).Seconds(), err)
	}
}

func isProtocolError(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr)
}

// isNoSuchDir matches 550 replies: missing directory or permission denied.
func isNoSuchDir(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

// sessionHealthy keeps sessions whose failure was an ordinary server reply.
// 421 means the server is closing the control connection.
func sessionHealthy(err error) bool {
	if err == nil {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code != ftp.StatusNotAvailable
	}
	return false
}
