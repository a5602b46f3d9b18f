package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/passagekit/passage/internal/metrics"
)

var (
	// ErrPoolExhausted is returned when no connection frees up within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")
)

// ConnFactory creates a new store connection.
type ConnFactory func(ctx context.Context) (VectorStore, error)

// PoolConfig holds configuration for the connection pool.
type PoolConfig struct {
	// Size is the maximum number of live connections.
	Size int

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration
}

// PoolConn is one checked-out connection. Return it with Pool.Release or
// Pool.Discard; both are safe to call more than once.
type PoolConn struct {
	store    VectorStore
	released bool
}

// Store returns the underlying connection.
func (c *PoolConn) Store() VectorStore { return c.store }

// Pool is a fixed-size connection pool. Connections are created lazily up
// to the configured size, and waiters are served in arrival order. A
// single mutex guards all pool state; no lock is held during connection
// creation or close.
type Pool struct {
	mu   sync.Mutex
	idle []VectorStore
	// Each waiter gets a buffered channel. A non-nil store transfers
	// ownership directly; nil means a slot freed up and the waiter
	// should retry.
	waiters []chan VectorStore
	created int
	inUse   int
	closed  bool

	size           int
	acquireTimeout time.Duration
	factory        ConnFactory
}

// PoolStats reports pool occupancy.
type PoolStats struct {
	InUse   int `json:"in_use"`
	Idle    int `json:"idle"`
	Waiting int `json:"waiting"`
	Size    int `json:"size"`
}

// NewPool creates a connection pool.
func NewPool(factory ConnFactory, cfg PoolConfig) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = 4
	}
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pool{
		size:           size,
		acquireTimeout: timeout,
		factory:        factory,
	}
}

// Acquire returns a connection, creating one if the pool is below size,
// or waiting until one frees up. Waiting is bounded by the acquire
// timeout and the context, whichever ends first.
func (p *Pool) Acquire(ctx context.Context) (*PoolConn, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			store := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.inUse++
			p.updateGauge()
			p.mu.Unlock()
			return &PoolConn{store: store}, nil
		}

		if p.created < p.size {
			p.created++
			p.inUse++
			p.updateGauge()
			p.mu.Unlock()

			store, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.created--
				p.inUse--
				p.updateGauge()
				p.wakeOneLocked()
				p.mu.Unlock()
				return nil, fmt.Errorf("failed to create store connection: %w", err)
			}
			return &PoolConn{store: store}, nil
		}

		w := make(chan VectorStore, 1)
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		select {
		case store := <-w:
			if store != nil {
				// Ownership transferred; in-use accounting is unchanged
				return &PoolConn{store: store}, nil
			}
			// A slot freed up; retry
		case <-ctx.Done():
			if store := p.cancelWait(w); store != nil {
				return &PoolConn{store: store}, nil
			}
			return nil, ctx.Err()
		case <-timer.C:
			if store := p.cancelWait(w); store != nil {
				return &PoolConn{store: store}, nil
			}
			return nil, ErrPoolExhausted
		}
	}
}

// Release returns a healthy connection. The longest waiter receives it
// directly; otherwise it goes idle. Releasing the same checkout twice is
// a no-op.
func (p *Pool) Release(conn *PoolConn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if conn.released {
		p.mu.Unlock()
		return
	}
	conn.released = true

	if p.closed {
		p.created--
		p.inUse--
		p.updateGauge()
		p.mu.Unlock()
		conn.store.Close()
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w <- conn.store
		p.mu.Unlock()
		return
	}

	p.idle = append(p.idle, conn.store)
	p.inUse--
	p.updateGauge()
	p.mu.Unlock()
}

// Discard closes a broken connection and frees its slot so a replacement
// can be created. Discarding the same checkout twice is a no-op.
func (p *Pool) Discard(conn *PoolConn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if conn.released {
		p.mu.Unlock()
		return
	}
	conn.released = true
	p.created--
	p.inUse--
	p.updateGauge()
	p.wakeOneLocked()
	p.mu.Unlock()

	conn.store.Close()
}

// Close closes idle connections and rejects future acquires. Checked-out
// connections are closed as they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.created -= len(idle)
	p.updateGauge()
	p.mu.Unlock()

	for _, w := range waiters {
		w <- nil
	}

	var firstErr error
	for _, store := range idle {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns current pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		InUse:   p.inUse,
		Idle:    len(p.idle),
		Waiting: len(p.waiters),
		Size:    p.size,
	}
}

// cancelWait removes w from the queue and recovers anything that was
// handed off concurrently with the cancellation.
func (p *Pool) cancelWait(w chan VectorStore) VectorStore {
	p.mu.Lock()
	for i, waiter := range p.waiters {
		if waiter == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	select {
	case store := <-w:
		if store != nil {
			return store
		}
		// A freed-slot signal raced with the cancellation; pass it on
		// so another waiter is not left sleeping.
		p.mu.Lock()
		p.wakeOneLocked()
		p.mu.Unlock()
		return nil
	default:
		return nil
	}
}

// wakeOneLocked signals the longest waiter that a slot freed up. Caller
// holds the lock.
func (p *Pool) wakeOneLocked() {
	if len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	w <- nil
}

// updateGauge reports in-use connections. Caller holds the lock.
func (p *Pool) updateGauge() {
	metrics.SetPoolInUse(p.inUse)
}
