package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// trackingFactory hands out fakeConns and remembers every one it made.
type trackingFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
	// searchErrs[i] is installed on the i-th connection; conns beyond the
	// slice are healthy.
	searchErrs []error
	results    []SearchResult
}

func (f *trackingFactory) make(ctx context.Context) (VectorStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := &fakeConn{results: f.results}
	if i := len(f.conns); i < len(f.searchErrs) {
		conn.searchErr = f.searchErrs[i]
	}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *trackingFactory) madeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *trackingFactory) totalSearches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.conns {
		c.mu.Lock()
		total += c.searches
		c.mu.Unlock()
	}
	return total
}

func testPooledConfig() PooledStoreConfig {
	return PooledStoreConfig{
		Pool:    PoolConfig{Size: 2, AcquireTimeout: time.Second},
		Breaker: BreakerConfig{FailureThreshold: 5, OpenDuration: time.Minute},
		Retry:   RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Logger:  slog.New(slog.DiscardHandler),
	}
}

func TestPooledStore_SearchReturnsResults(t *testing.T) {
	factory := &trackingFactory{
		results: []SearchResult{{ID: "c1", Content: "hello", Score: 0.9}},
	}
	s := NewPooledStore(factory.make, testPooledConfig())
	defer s.Close()

	results, err := s.Search(context.Background(), "docs", []float32{0.1, 0.2}, 10, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Errorf("unexpected results: %+v", results)
	}

	if snap := s.BreakerSnapshot(); snap.State != "closed" {
		t.Errorf("expected closed breaker, got %s", snap.State)
	}
	if stats := s.PoolStats(); stats.InUse != 0 || stats.Idle != 1 {
		t.Errorf("expected connection returned to pool, got %+v", stats)
	}
}

func TestPooledStore_RetriesOnFreshConnection(t *testing.T) {
	down := status.Error(codes.Unavailable, "server down")
	factory := &trackingFactory{
		searchErrs: []error{down, down},
		results:    []SearchResult{{ID: "c1", Score: 0.5}},
	}
	s := NewPooledStore(factory.make, testPooledConfig())
	defer s.Close()

	results, err := s.Search(context.Background(), "docs", []float32{0.1}, 10, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	// Each failed attempt discards its connection and the next attempt
	// gets a fresh one
	if got := factory.madeCount(); got != 3 {
		t.Errorf("expected 3 connections created, got %d", got)
	}
	for i, conn := range factory.conns[:2] {
		if !conn.isClosed() {
			t.Errorf("expected broken connection %d to be closed", i)
		}
	}

	snap := s.BreakerSnapshot()
	if snap.State != "closed" || snap.Failures != 0 {
		t.Errorf("expected healthy breaker after recovery, got %+v", snap)
	}
}

func TestPooledStore_PermanentErrorNotRetried(t *testing.T) {
	bad := status.Error(codes.InvalidArgument, "bad vector")
	factory := &trackingFactory{searchErrs: []error{bad}}
	s := NewPooledStore(factory.make, testPooledConfig())
	defer s.Close()

	_, err := s.Search(context.Background(), "docs", []float32{0.1}, 10, 0, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := factory.totalSearches(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}

	// The connection itself is fine and goes back to the pool
	if stats := s.PoolStats(); stats.Idle != 1 {
		t.Errorf("expected connection released, got %+v", stats)
	}
	if snap := s.BreakerSnapshot(); snap.Failures != 1 {
		t.Errorf("expected 1 breaker failure, got %+v", snap)
	}
}

func TestPooledStore_BreakerOpensAndRejects(t *testing.T) {
	bad := status.Error(codes.InvalidArgument, "bad vector")
	factory := &trackingFactory{searchErrs: []error{bad}}

	cfg := testPooledConfig()
	cfg.Breaker.FailureThreshold = 2
	s := NewPooledStore(factory.make, cfg)
	defer s.Close()

	for i := 0; i < 2; i++ {
		if _, err := s.Search(context.Background(), "docs", []float32{0.1}, 10, 0, nil); err == nil {
			t.Fatal("expected store error")
		}
	}

	_, err := s.Search(context.Background(), "docs", []float32{0.1}, 10, 0, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := factory.totalSearches(); got != 2 {
		t.Errorf("expected rejected call to skip the store, got %d searches", got)
	}
	if snap := s.BreakerSnapshot(); snap.State != "open" {
		t.Errorf("expected open breaker, got %s", snap.State)
	}
}

func TestPooledStore_PoolExhaustionDoesNotTripBreaker(t *testing.T) {
	factory := &trackingFactory{}

	cfg := testPooledConfig()
	cfg.Pool = PoolConfig{Size: 1, AcquireTimeout: 30 * time.Millisecond}
	s := NewPooledStore(factory.make, cfg)
	defer s.Close()

	held, err := s.pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = s.Search(context.Background(), "docs", []float32{0.1}, 10, 0, nil)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	snap := s.BreakerSnapshot()
	if snap.State != "closed" || snap.Failures != 0 {
		t.Errorf("expected breaker untouched by pool exhaustion, got %+v", snap)
	}

	s.pool.Release(held)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy store after release, got %v", err)
	}
}
