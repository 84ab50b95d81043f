// Package sshpool maintains a bounded pool of authenticated SSH
// connections to remote Docker hosts, keyed by host, user, and credential.
//
// Connections are reused across requests. Before reuse a connection is
// health-checked with a cheap no-op command unless a recent check is still
// cached. Connections idle past the configured timeout are evicted on the
// next Acquire; eviction piggybacks on access, there is no sweeper
// goroutine. A weighted semaphore bounds simultaneous connection
// establishments so a burst of requests cannot storm the remote sshd.
package sshpool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jkeevk/aimlul-admin/internal/logutil"
)

const (
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultHealthTTL      = 30 * time.Second
	DefaultHealthTimeout  = 3 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultMaxDials       = 3

	healthProbeCommand = "echo healthcheck"
)

// ErrPoolClosed is returned by Acquire after CloseAll.
var ErrPoolClosed = errors.New("sshpool: pool is closed")

// ConnectError reports that establishing a new connection failed or timed
// out. The pool never retries; that decision belongs to the caller.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Config tunes a Pool. Zero values fall back to the package defaults.
type Config struct {
	IdleTimeout    time.Duration
	HealthTTL      time.Duration
	HealthTimeout  time.Duration
	ConnectTimeout time.Duration
	MaxDials       int64
	Dial           Dialer

	// Now is the clock used for idle and health-cache accounting.
	// Overridden in tests.
	Now func() time.Time
}

// Conn is a checked-out pool connection. It must be returned through
// Release or MarkUnhealthy exactly once.
type Conn struct {
	key       string
	transport Transport

	// The fields below are protected by the owning pool's mutex.
	lastUsed  time.Time
	checkedAt time.Time
	healthy   bool
	inUse     bool
	pooled    bool
}

// Transport returns the underlying remote-shell connection.
func (c *Conn) Transport() Transport { return c.transport }

// Pool owns a set of SSH connections keyed by host/user/credential.
type Pool struct {
	cfg     Config
	dialSem *semaphore.Weighted

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// New creates a Pool. Config fields left zero use the package defaults,
// and a nil Dial uses DialSSH.
func New(cfg Config) *Pool {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultHealthTTL
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxDials <= 0 {
		cfg.MaxDials = DefaultMaxDials
	}
	if cfg.Dial == nil {
		cfg.Dial = DialSSH
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		cfg:     cfg,
		dialSem: semaphore.NewWeighted(cfg.MaxDials),
		conns:   make(map[string]*Conn),
	}
}

// poolKey builds the identity key for a connection. The credential
// participates (as a fingerprint) so connections authenticated with
// different credentials are never shared.
func poolKey(host, user, password string) string {
	sum := sha256.Sum256([]byte(password))
	return host + "|" + user + "|" + hex.EncodeToString(sum[:8])
}

// Acquire returns a healthy connection for the key, reusing an idle one
// when possible and dialing otherwise. Establishment failures are returned
// as *ConnectError.
func (p *Pool) Acquire(ctx context.Context, host, user, password string) (*Conn, error) {
	key := poolKey(host, user, password)

	c, err := p.checkout(ctx, key)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	return p.dial(ctx, key, host, user, password)
}

// checkout returns an existing idle healthy connection for key, or nil if
// the caller must dial a fresh one.
func (p *Pool) checkout(ctx context.Context, key string) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.evictIdleLocked()

	c, ok := p.conns[key]
	if !ok || c.inUse {
		p.mu.Unlock()
		return nil, nil
	}

	now := p.cfg.Now()
	if !c.healthy {
		delete(p.conns, key)
		p.mu.Unlock()
		c.transport.Close()
		return nil, nil
	}

	if now.Sub(c.checkedAt) < p.cfg.HealthTTL {
		c.inUse = true
		c.lastUsed = now
		p.mu.Unlock()
		return c, nil
	}

	// Stale health entry: probe outside the lock. Marking the connection
	// in use first keeps other callers off it during the probe.
	c.inUse = true
	p.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.HealthTimeout)
	defer cancel()
	if _, _, err := c.transport.Run(probeCtx, healthProbeCommand); err != nil {
		log.Printf("[sshpool] health check failed for %s: %v", logutil.SanitizeForLog(c.key), err)
		p.mu.Lock()
		delete(p.conns, key)
		p.mu.Unlock()
		c.transport.Close()
		return nil, nil
	}

	p.mu.Lock()
	now = p.cfg.Now()
	c.checkedAt = now
	c.lastUsed = now
	p.mu.Unlock()
	return c, nil
}

// dial establishes a new connection under the dial semaphore. The pool's
// lock is never held across the network call.
func (p *Pool) dial(ctx context.Context, key, host, user, password string) (*Conn, error) {
	// The semaphore bounds simultaneous establishments, not reuses.
	if err := p.dialSem.Acquire(ctx, 1); err != nil {
		return nil, &ConnectError{Host: host, Err: err}
	}
	defer p.dialSem.Release(1)

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	t, err := p.cfg.Dial(dialCtx, host, user, password)
	if err != nil {
		return nil, &ConnectError{Host: host, Err: err}
	}

	now := p.cfg.Now()
	c := &Conn{
		key:       key,
		transport: t,
		lastUsed:  now,
		checkedAt: now,
		healthy:   true,
		inUse:     true,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		t.Close()
		return nil, ErrPoolClosed
	}
	if _, taken := p.conns[key]; taken {
		// Another connection for this key is checked out. Hand this one
		// out unpooled so it is closed on release instead of retained,
		// keeping at most one pooled connection per key.
		c.pooled = false
	} else {
		c.pooled = true
		p.conns[key] = c
	}
	p.mu.Unlock()

	log.Printf("[sshpool] connected to %s@%s", user, logutil.SanitizeForLog(host))
	return c, nil
}

// Release returns a connection to the idle set. Unpooled overflow
// connections are closed instead of retained.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	c.inUse = false
	c.lastUsed = p.cfg.Now()
	drop := !c.pooled || p.closed
	if drop && c.pooled {
		delete(p.conns, c.key)
	}
	p.mu.Unlock()
	if drop {
		c.transport.Close()
	}
}

// MarkUnhealthy flags a connection so the next Acquire for its key
// discards and replaces it instead of reusing it.
func (p *Pool) MarkUnhealthy(c *Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	c.healthy = false
	c.inUse = false
	c.lastUsed = p.cfg.Now()
	pooled := c.pooled
	p.mu.Unlock()
	if !pooled {
		c.transport.Close()
	}
}

// With acquires a connection, runs fn with its transport, and guarantees
// the connection is returned to the pool on every exit path. A non-nil
// error from fn marks the connection unhealthy so the next Acquire
// replaces it.
func (p *Pool) With(ctx context.Context, host, user, password string, fn func(Transport) error) error {
	c, err := p.Acquire(ctx, host, user, password)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.MarkUnhealthy(c)
		} else {
			p.Release(c)
		}
	}()
	err = fn(c.Transport())
	return err
}

// evictIdleLocked closes and removes connections idle past the timeout.
// Called with p.mu held on every Acquire.
func (p *Pool) evictIdleLocked() {
	now := p.cfg.Now()
	for key, c := range p.conns {
		if c.inUse {
			continue
		}
		if now.Sub(c.lastUsed) > p.cfg.IdleTimeout {
			delete(p.conns, key)
			c.transport.Close()
			log.Printf("[sshpool] evicted idle connection %s", logutil.SanitizeForLog(c.key))
		}
	}
}

// Size returns the number of pooled connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseAll closes every tracked connection, tolerating individual close
// failures, and marks the pool closed.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.closed = true
	p.mu.Unlock()

	for _, c := range conns {
		if err := c.transport.Close(); err != nil {
			log.Printf("[sshpool] close %s: %v", c.key, err)
		}
	}
	if len(conns) > 0 {
		log.Printf("[sshpool] closed all %d connection(s)", len(conns))
	}
}
