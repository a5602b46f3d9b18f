package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/passagekit/passage/internal/metrics"
)

// ErrCircuitOpen is returned when the breaker rejects an operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects operations until the open duration elapses.
	BreakerOpen
	// BreakerHalfOpen allows a single probe operation.
	BreakerHalfOpen
)

// String returns the state name used in logs and metrics.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// OpenDuration is how long the circuit stays open before allowing
	// a probe.
	OpenDuration time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker implements the circuit breaker pattern for store operations.
// Consecutive failures open the circuit; after the open duration a single
// probe is let through, and its outcome decides between closing and
// re-opening.
type Breaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	opens    int // consecutive opens without a successful close
	probing  bool

	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time
	logger           *slog.Logger
}

// BreakerSnapshot is a point-in-time view of the breaker.
type BreakerSnapshot struct {
	State            string    `json:"state"`
	Failures         int       `json:"failures"`
	OpenedAt         time.Time `json:"opened_at"`
	ConsecutiveOpens int       `json:"consecutive_opens"`
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	openDuration := cfg.OpenDuration
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: threshold,
		openDuration:     openDuration,
		now:              now,
		logger:           logger,
	}
}

// Allow reports whether an operation may proceed. In the half-open state
// only one in-flight probe is admitted at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful operation. A successful probe closes
// the circuit; a late success from an operation that started before the
// circuit opened has no effect on the open state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.transition(BreakerClosed)
		b.failures = 0
		b.opens = 0
		b.probing = false
	case BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure records a failed operation.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		// Failed probe re-opens the circuit
		b.probing = false
		b.open()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.open()
		}
	default:
		// Late failure from an operation that started before the
		// circuit opened; the open timer is not extended.
		b.failures++
	}
}

// State returns the current state, applying the open-to-half-open
// transition if the open duration has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Snapshot returns a point-in-time view for health reporting.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return BreakerSnapshot{
		State:            b.state.String(),
		Failures:         b.failures,
		OpenedAt:         b.openedAt,
		ConsecutiveOpens: b.opens,
	}
}

// open transitions to the open state. Caller holds the lock.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.opens++
	b.transition(BreakerOpen)
}

// maybeHalfOpen moves an expired open circuit to half-open. Caller holds
// the lock.
func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.openDuration {
		b.probing = false
		b.transition(BreakerHalfOpen)
	}
}

// transition switches state and records the metric. Caller holds the lock.
func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metrics.IncBreakerTransition(to.String())

	level := slog.LevelInfo
	if to == BreakerOpen {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "circuit breaker state change",
		"from", from.String(),
		"to", to.String(),
		"failures", b.failures,
		"consecutive_opens", b.opens)
}
