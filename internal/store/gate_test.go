package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// -- Test Helpers --

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakePool satisfies DBPool for tests that never run SQL.
type fakePool struct {
	DBPool
	closed atomic.Bool
}

func (p *fakePool) Close() { p.closed.Store(true) }

// scriptedDialer returns the queued results in order and counts calls.
type scriptedDialer struct {
	mu      sync.Mutex
	calls   int
	results []error
	pools   []*fakePool
}

func (d *scriptedDialer) Dial(ctx context.Context) (DBPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.results) && d.results[i] != nil {
		return nil, d.results[i]
	}
	p := &fakePool{}
	d.pools = append(d.pools, p)
	return p, nil
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errRefused = errors.New("connection refused")

// -- Test Cases --

func TestGateWithoutPrimary(t *testing.T) {
	g := NewGate(nil, 10*time.Second, zap.NewNop())

	_, err := g.Acquire(context.Background())
	assert.ErrorIs(t, err, schemas.ErrUnavailable)
	assert.Equal(t, CircuitClosed, g.State().Circuit)
}

func TestGateCachesHandle(t *testing.T) {
	dialer := &scriptedDialer{}
	g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop())

	first, err := g.Acquire(context.Background())
	require.NoError(t, err)
	second, err := g.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.Calls())
	assert.Equal(t, GateState{Circuit: CircuitClosed}, g.State())
}

func TestGateCooldown(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	t.Run("failure opens the circuit and suppresses dials", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		dialer := &scriptedDialer{results: []error{errRefused}}
		g := NewGate(dialer.Dial, 10*time.Second, zap.New(core), WithClock(clock.Now))

		_, err := g.Acquire(ctx)
		assert.ErrorIs(t, err, schemas.ErrUnavailable)
		assert.Equal(t, 1, dialer.Calls())

		state := g.State()
		assert.Equal(t, CircuitOpen, state.Circuit)
		assert.Equal(t, clock.Now().Add(10*time.Second), state.Until)
		assert.Equal(t, 1, logs.FilterMessage("Primary store unavailable, circuit opened.").Len())

		clock.Advance(9 * time.Second)
		_, err = g.Acquire(ctx)
		assert.ErrorIs(t, err, schemas.ErrUnavailable)
		assert.Equal(t, 1, dialer.Calls(), "no dial may happen inside the cooldown")
	})

	t.Run("success after cooldown closes the circuit", func(t *testing.T) {
		dialer := &scriptedDialer{results: []error{errRefused, nil}}
		g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop(), WithClock(clock.Now))

		_, err := g.Acquire(ctx)
		require.ErrorIs(t, err, schemas.ErrUnavailable)

		clock.Advance(10 * time.Second)
		db, err := g.Acquire(ctx)
		require.NoError(t, err)
		assert.NotNil(t, db)
		assert.Equal(t, 2, dialer.Calls())
		assert.Equal(t, CircuitClosed, g.State().Circuit)
	})

	t.Run("failure after cooldown reopens with a fresh window", func(t *testing.T) {
		dialer := &scriptedDialer{results: []error{errRefused, errRefused}}
		g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop(), WithClock(clock.Now))

		_, _ = g.Acquire(ctx)
		clock.Advance(11 * time.Second)
		_, err := g.Acquire(ctx)
		assert.ErrorIs(t, err, schemas.ErrUnavailable)
		assert.Equal(t, 2, dialer.Calls())
		assert.Equal(t, clock.Now().Add(10*time.Second), g.State().Until)
	})
}

func TestGateTrip(t *testing.T) {
	clock := newFakeClock()
	dialer := &scriptedDialer{}
	g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop(), WithClock(clock.Now))

	_, err := g.Acquire(context.Background())
	require.NoError(t, err)

	g.Trip(errRefused)

	require.Len(t, dialer.pools, 1)
	assert.True(t, dialer.pools[0].closed.Load(), "tripping must release the handle")
	assert.Equal(t, CircuitOpen, g.State().Circuit)

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, schemas.ErrUnavailable)
	assert.Equal(t, 1, dialer.Calls())

	clock.Advance(10 * time.Second)
	_, err = g.Acquire(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, dialer.Calls())
}

func TestGateCollapsesConcurrentDials(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	var calls atomic.Int32
	dial := func(ctx context.Context) (DBPool, error) {
		calls.Add(1)
		<-release
		return &fakePool{}, nil
	}
	g := NewGate(dial, 10*time.Second, zap.NewNop())

	const callers = 16
	var wg sync.WaitGroup
	results := make([]DBPool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := g.Acquire(context.Background())
			assert.NoError(t, err)
			results[i] = db
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, db := range results {
		assert.Same(t, results[0], db)
	}
}

func TestGateIgnoresCallerCancellation(t *testing.T) {
	// The dial fails only if it sees a cancelled context.
	var calls atomic.Int32
	dial := func(ctx context.Context) (DBPool, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &fakePool{}, nil
	}
	g := NewGate(dial, 10*time.Second, zap.NewNop())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = g.Acquire(cancelled)

	db, err := g.Acquire(context.Background())
	require.NoError(t, err, "an aborted caller must not open the circuit for everyone else")
	assert.NotNil(t, db)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, CircuitClosed, g.State().Circuit)
}

func TestGateCancelledDialKeepsCircuitClosed(t *testing.T) {
	dialer := &scriptedDialer{results: []error{fmt.Errorf("dial aborted: %w", context.Canceled)}}
	g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop())

	_, err := g.Acquire(context.Background())
	assert.ErrorIs(t, err, schemas.ErrUnavailable)
	assert.Equal(t, CircuitClosed, g.State().Circuit)

	_, err = g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.Calls())
}

func TestGateConnectRechecksCooldown(t *testing.T) {
	clock := newFakeClock()
	dialer := &scriptedDialer{results: []error{errRefused}}
	g := NewGate(dialer.Dial, 10*time.Second, zap.NewNop(), WithClock(clock.Now))

	_, err := g.Acquire(context.Background())
	require.ErrorIs(t, err, schemas.ErrUnavailable)

	// A caller that passed the cooldown check before the failure landed.
	_, err = g.connect(context.Background())
	assert.ErrorIs(t, err, schemas.ErrUnavailable)
	assert.Equal(t, 1, dialer.Calls(), "no second dial inside the same cooldown")
}

func TestGateClose(t *testing.T) {
	dialer := &scriptedDialer{}
	g := NewGate(dialer.Dial, time.Second, zap.NewNop())
	_, err := g.Acquire(context.Background())
	require.NoError(t, err)

	g.Close()
	assert.True(t, dialer.pools[0].closed.Load())
	assert.Equal(t, CircuitClosed, g.State().Circuit)
}

func TestIsConnectivityError(t *testing.T) {
	assert.False(t, isConnectivityError(nil))
	assert.False(t, isConnectivityError(context.Canceled))
	assert.True(t, isConnectivityError(errRefused))
	assert.False(t, isConnectivityError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
}
