package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Dialer opens and verifies a primary store connection. It must bound its own
// attempt: the gate dials with a context that is never cancelled by callers.
type Dialer func(ctx context.Context) (DBPool, error)

// PostgresDialer returns a Dialer that builds a pgx pool for url and pings it
// within timeout. A pool that fails its ping is closed before returning.
func PostgresDialer(url string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (DBPool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		pool, err := pgxpool.New(dialCtx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(dialCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return pool, nil
	}
}

// CircuitState is the position of the gate.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GateState is a point-in-time view of the gate. Until is zero while closed.
type GateState struct {
	Circuit CircuitState
	Until   time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithMetrics exports state transitions.
func WithMetrics(m *observability.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// Gate is a circuit breaker around the primary store connection. While the
// circuit is open no connection attempt is made; once the cooldown elapses the
// next Acquire dials again. Concurrent Acquire calls share a single dial.
type Gate struct {
	dial     Dialer
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
	metrics  *observability.Metrics
	dials    singleflight.Group

	mu        sync.Mutex
	pool      DBPool
	openUntil time.Time
}

// NewGate creates a closed gate. A nil dialer means there is no primary store
// configured and the gate always reports ErrUnavailable.
func NewGate(dial Dialer, cooldown time.Duration, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		dial:     dial,
		cooldown: cooldown,
		now:      time.Now,
		log:      logger.Named("gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire returns a usable primary handle or ErrUnavailable. It never blocks
// longer than one dial attempt, and returns early when ctx ends. A dial is
// shared by every waiting caller, so it does not inherit any one caller's
// cancellation.
func (g *Gate) Acquire(ctx context.Context) (DBPool, error) {
	if g.dial == nil {
		return nil, schemas.ErrUnavailable
	}

	g.mu.Lock()
	if g.pool != nil {
		pool := g.pool
		g.mu.Unlock()
		return pool, nil
	}
	if now := g.now(); now.Before(g.openUntil) {
		g.mu.Unlock()
		return nil, schemas.ErrUnavailable
	}
	g.mu.Unlock()

	ch := g.dials.DoChan("primary", func() (interface{}, error) {
		return g.connect(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, schemas.ErrUnavailable
		}
		return res.Val.(DBPool), nil
	case <-ctx.Done():
		return nil, schemas.ErrUnavailable
	}
}

func (g *Gate) connect(ctx context.Context) (DBPool, error) {
	// A caller that lost the race to a finished dial finds the pool already
	// set, or the circuit opened by that dial's failure.
	g.mu.Lock()
	if g.pool != nil {
		pool := g.pool
		g.mu.Unlock()
		return pool, nil
	}
	if g.now().Before(g.openUntil) {
		g.mu.Unlock()
		return nil, schemas.ErrUnavailable
	}
	g.mu.Unlock()

	pool, err := g.dial(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		// An aborted attempt says nothing about the primary.
		if !errors.Is(err, context.Canceled) {
			g.openLocked(err)
		}
		return nil, err
	}
	wasOpen := !g.openUntil.IsZero()
	g.pool = pool
	g.openUntil = time.Time{}
	if wasOpen {
		g.log.Info("Primary store reachable again, circuit closed.")
	}
	g.metrics.SetGateOpen(false)
	return pool, nil
}

// Trip reports a connectivity failure observed while using a handle from
// Acquire. The handle is closed and the circuit opens for one cooldown.
func (g *Gate) Trip(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
	g.openLocked(cause)
}

func (g *Gate) openLocked(cause error) {
	g.openUntil = g.now().Add(g.cooldown)
	g.log.Warn("Primary store unavailable, circuit opened.",
		zap.Error(cause),
		zap.Time("retry_after", g.openUntil),
	)
	g.metrics.SetGateOpen(true)
}

// State reports whether the circuit is open and until when.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool == nil && g.now().Before(g.openUntil) {
		return GateState{Circuit: CircuitOpen, Until: g.openUntil}
	}
	return GateState{Circuit: CircuitClosed}
}

// Close releases the cached handle, if any.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
}

// isConnectivityError separates transport failures, which should trip the
// gate, from statement errors such as constraint violations.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	return !errors.As(err, &pgErr)
}
