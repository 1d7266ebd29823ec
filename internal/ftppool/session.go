package ftppool

import (
	"context"
	"fmt"
	"io"

	"github.com/jlaffaye/ftp"

	"scan-indexer/internal/config"
)

// Session is the subset of an FTP control connection used by the indexer.
type Session interface {
	// List returns entries using MLSD when the server supports it, LIST otherwise.
	List(path string) ([]*ftp.Entry, error)
	// NameList issues NLST, which accepts a glob pattern on most servers.
	NameList(path string) ([]string, error)
	// Retr opens a file for reading. The caller must close it before
	// issuing another command on the session.
	Retr(path string) (io.ReadCloser, error)
	NoOp() error
	Quit() error
}

// Dialer opens a new logged-in session.
type Dialer func(ctx context.Context) (Session, error)

type ftpSession struct {
	conn *ftp.ServerConn
}

func (s *ftpSession) List(path string) ([]*ftp.Entry, error) { return s.conn.List(path) }
func (s *ftpSession) NameList(path string) ([]string, error) { return s.conn.NameList(path) }
func (s *ftpSession) NoOp() error                            { return s.conn.NoOp() }
func (s *ftpSession) Quit() error                            { return s.conn.Quit() }

func (s *ftpSession) Retr(path string) (io.ReadCloser, error) {
	resp, err := s.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DialFTP returns a Dialer for the server described by cfg.
func DialFTP(cfg config.ServerConfig) Dialer {
	return func(ctx context.Context) (Session, error) {
		conn, err := ftp.Dial(cfg.Addr(),
			ftp.DialWithTimeout(cfg.Timeout),
			ftp.DialWithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
		}
		if err := conn.Login(cfg.User, cfg.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("login %s@%s: %w", cfg.User, cfg.Addr(), err)
		}
		return &ftpSession{conn: conn}, nil
	}
}
