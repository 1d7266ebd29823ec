package ftppool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scan-indexer/internal/logging"
)

var (
	// ErrPoolExhausted is returned when no session frees up within the
	// checkout timeout. Callers should treat it as backpressure.
	ErrPoolExhausted = errors.New("ftp pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("ftp pool closed")
	// ErrDial wraps connection and login failures.
	ErrDial = errors.New("ftp dial failed")
)

// Config controls pool sizing and health checks.
type Config struct {
	// Size is the maximum number of live sessions (0 = 4)
	Size int
	// CheckoutTimeout bounds how long Acquire waits for a free slot
	CheckoutTimeout time.Duration
	// StaleAfter is the idle time after which a session is probed before reuse
	StaleAfter time.Duration
	// DialRetries is the number of extra dial attempts on failure
	DialRetries int
	// RetryBackoff is the pause between dial attempts
	RetryBackoff time.Duration
}

// DefaultConfig returns defaults suitable for a single FTP server.
func DefaultConfig() Config {
	return Config{
		Size:            4,
		CheckoutTimeout: 30 * time.Second,
		StaleAfter:      60 * time.Second,
		DialRetries:     1,
		RetryBackoff:    200 * time.Millisecond,
	}
}

// Conn is a checked-out session. Return it with Pool.Release.
type Conn struct {
	Session
	lastUsed time.Time
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Size         int   `json:"size"`
	InUse        int   `json:"inUse"`
	Idle         int   `json:"idle"`
	Dials        int64 `json:"dials"`
	DialFailures int64 `json:"dialFailures"`
	Exhausted    int64 `json:"exhausted"`
	StaleDropped int64 `json:"staleDropped"`
}

// Pool is a bounded set of reusable sessions. It is safe for concurrent use.
type Pool struct {
	name   string
	dial   Dialer
	config Config

	// slots holds one token per checked-out session
	slots chan struct{}

	mu     sync.Mutex
	idle   []*Conn
	closed bool

	dials        atomic.Int64
	dialFailures atomic.Int64
	exhausted    atomic.Int64
	staleDropped atomic.Int64
}

// New creates a pool. No session is opened until the first Acquire.
func New(name string, dial Dialer, config Config) *Pool {
	def := DefaultConfig()
	if config.Size <= 0 {
		config.Size = def.Size
	}
	if config.CheckoutTimeout <= 0 {
		config.CheckoutTimeout = def.CheckoutTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.DialRetries < 0 {
		config.DialRetries = 0
	}

	return &Pool{
		name:   name,
		dial:   dial,
		config: config,
		slots:  make(chan struct{}, config.Size),
	}
}

// Name returns the server name the pool was created for.
func (p *Pool) Name() string {
	return p.name
}

// Acquire checks out a session, dialing a new one if none is idle.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.config.CheckoutTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		p.exhausted.Add(1)
		logging.Debug("FTP pool %s exhausted after %v", p.name, p.config.CheckoutTimeout)
		return nil, fmt.Errorf("%s: %w", p.name, ErrPoolExhausted)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		c := p.popIdle()
		if c == nil {
			break
		}
		if time.Since(c.lastUsed) <= p.config.StaleAfter {
			return c, nil
		}
		if err := c.NoOp(); err == nil {
			return c, nil
		}
		p.staleDropped.Add(1)
		logging.Debug("FTP pool %s dropping stale session", p.name)
		_ = c.Quit()
	}

	s, err := p.dialWithRetry(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return &Conn{Session: s, lastUsed: time.Now()}, nil
}

// Release returns a session to the pool. Unhealthy sessions are closed and
// their slot is freed for a fresh dial.
func (p *Pool) Release(c *Conn, healthy bool) {
	if c == nil {
		return
	}
	defer func() { <-p.slots }()

	p.mu.Lock()
	if healthy && !p.closed {
		c.lastUsed = time.Now()
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	_ = c.Quit()
}

// Close quits every idle session. Sessions still checked out are closed when
// they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		_ = c.Quit()
	}
	return nil
}

// Stats returns current usage counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	return Stats{
		Size:         p.config.Size,
		InUse:        len(p.slots),
		Idle:         idle,
		Dials:        p.dials.Load(),
		DialFailures: p.dialFailures.Load(),
		Exhausted:    p.exhausted.Load(),
		StaleDropped: p.staleDropped.Load(),
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// popIdle takes the most recently used idle session.
func (p *Pool) popIdle() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil
	}
	c := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return c
}

func (p *Pool) dialWithRetry(ctx context.Context) (Session, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.DialRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.config.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		p.dials.Add(1)
		s, err := p.dial(ctx)
		if err == nil {
			if attempt > 0 {
				logging.Info("FTP pool %s dial succeeded on retry %d", p.name, attempt)
			}
			return s, nil
		}
		lastErr = err
		p.dialFailures.Add(1)
		logging.Debug("FTP pool %s dial attempt %d failed: %v", p.name, attempt+1, err)
	}

	logging.Warn("FTP pool %s could not open a session: %v", p.name, lastErr)
	return nil, fmt.Errorf("%s: %w: %w", p.name, ErrDial, lastErr)
}
