package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// PooledStoreConfig configures the resilient store.
type PooledStoreConfig struct {
	Pool    PoolConfig
	Breaker BreakerConfig
	Retry   RetryConfig
	Logger  *slog.Logger
}

// PooledStore implements VectorStore by running every operation through
// the circuit breaker, a pooled connection and the retry policy, in that
// order. Pool exhaustion does not count as a store failure; only the
// operation outcome feeds the breaker.
type PooledStore struct {
	pool    *Pool
	breaker *Breaker
	retry   RetryConfig
	logger  *slog.Logger
}

// NewPooledStore creates a resilient store backed by factory connections.
func NewPooledStore(factory ConnFactory, cfg PooledStoreConfig) *PooledStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.Logger == nil {
		breakerCfg.Logger = logger
	}
	return &PooledStore{
		pool:    NewPool(factory, cfg.Pool),
		breaker: NewBreaker(breakerCfg),
		retry:   retry,
		logger:  logger,
	}
}

// do runs op with retries and records the final outcome in the breaker.
// Each attempt checks out its own connection, so a broken connection
// discarded after one attempt is not reused by the next. Operations
// already in flight when the breaker opens complete normally.
func (s *PooledStore) do(ctx context.Context, op func(VectorStore) error) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("store unavailable: %w", ErrCircuitOpen)
	}

	err := withRetry(ctx, s.retry, func() error {
		conn, acquireErr := s.pool.Acquire(ctx)
		if acquireErr != nil {
			// Pool errors are not transient, so withRetry stops here
			return acquireErr
		}

		if opErr := op(conn.Store()); opErr != nil {
			if isConnectionError(opErr) {
				s.logger.Warn("discarding broken store connection", "error", opErr)
				s.pool.Discard(conn)
			} else {
				s.pool.Release(conn)
			}
			return opErr
		}

		s.pool.Release(conn)
		return nil
	})

	if err != nil {
		if !isAcquireError(err) {
			s.breaker.RecordFailure()
		}
		return err
	}

	s.breaker.RecordSuccess()
	return nil
}

// isAcquireError reports whether err came from getting a connection
// rather than from the store operation itself. Only store outcomes feed
// the breaker.
func isAcquireError(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrPoolClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// EnsureCollection creates the collection if it does not exist yet
func (s *PooledStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	return s.do(ctx, func(conn VectorStore) error {
		return conn.EnsureCollection(ctx, collection, dimension)
	})
}

// CollectionExists checks if a collection exists
func (s *PooledStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.do(ctx, func(conn VectorStore) error {
		var opErr error
		exists, opErr = conn.CollectionExists(ctx, collection)
		return opErr
	})
	return exists, err
}

// DeleteCollection deletes a collection
func (s *PooledStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.do(ctx, func(conn VectorStore) error {
		return conn.DeleteCollection(ctx, collection)
	})
}

// Upsert inserts or updates chunks in the vector store
func (s *PooledStore) Upsert(ctx context.Context, collection string, chunks []Chunk) error {
	return s.do(ctx, func(conn VectorStore) error {
		return conn.Upsert(ctx, collection, chunks)
	})
}

// Search performs similarity search
func (s *PooledStore) Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32, filter map[string]string) ([]SearchResult, error) {
	var results []SearchResult
	err := s.do(ctx, func(conn VectorStore) error {
		var opErr error
		results, opErr = conn.Search(ctx, collection, vector, topK, minScore, filter)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteByDocument removes all chunks belonging to a document
func (s *PooledStore) DeleteByDocument(ctx context.Context, collection string, documentID string) error {
	return s.do(ctx, func(conn VectorStore) error {
		return conn.DeleteByDocument(ctx, collection, documentID)
	})
}

// HealthCheck verifies the store is reachable
func (s *PooledStore) HealthCheck(ctx context.Context) error {
	return s.do(ctx, func(conn VectorStore) error {
		return conn.HealthCheck(ctx)
	})
}

// Close closes the pool and its connections
func (s *PooledStore) Close() error {
	return s.pool.Close()
}

// BreakerSnapshot returns the breaker state for health reporting.
func (s *PooledStore) BreakerSnapshot() BreakerSnapshot {
	return s.breaker.Snapshot()
}

// PoolStats returns pool occupancy for health reporting.
func (s *PooledStore) PoolStats() PoolStats {
	return s.pool.Stats()
}

// Ensure PooledStore implements VectorStore
var _ VectorStore = (*PooledStore)(nil)
