package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"go.uber.org/zap"
)

// DefaultRetention is the snapshot cap used when none is configured.
const DefaultRetention = 200

// Storage modes reported by Mode.
const (
	ModePrimary  = "primary"
	ModeFallback = "fallback"
)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRetention caps the snapshot kept by Append.
func WithRetention(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.retention = n
		}
	}
}

// WithAdapterMetrics records which store answered each query.
func WithAdapterMetrics(m *observability.Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// Adapter is the single persistence surface of the core. Reads go to the
// primary store while the gate allows it and fall back to an in-memory cache
// backed by the snapshot file otherwise. Writes go through all three layers.
//
// The cache and the fallback file always describe the same snapshot. The cache
// is replaced before the file is written and is never mutated in place.
type Adapter struct {
	gate      *Gate
	repo      *Repository
	fallback  *FileStore
	retention int
	log       *zap.Logger
	metrics   *observability.Metrics

	// writeMu serializes read-modify-write cycles on the snapshot.
	writeMu sync.Mutex

	mu     sync.RWMutex
	cache  []schemas.AlertRecord
	cached bool
}

var _ schemas.AlertStore = (*Adapter)(nil)

// NewAdapter wires the gate and the fallback file into an Adapter.
func NewAdapter(gate *Gate, fallback *FileStore, logger *zap.Logger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		gate:      gate,
		repo:      NewRepository(logger),
		fallback:  fallback,
		retention: DefaultRetention,
		log:       logger.Named("store"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Gate exposes the circuit breaker for health reporting.
func (a *Adapter) Gate() *Gate { return a.gate }

// EnsureSchema prepares the primary store. It is a no-op while the primary is
// unavailable.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	db, ok := a.primary(ctx)
	if !ok {
		a.log.Warn("Primary store unavailable, skipping schema setup.")
		return nil
	}
	if err := a.repo.EnsureSchema(ctx, db); err != nil {
		a.primaryFailed(err)
		return err
	}
	return nil
}

// Mode reports which store is currently serving reads.
func (a *Adapter) Mode(ctx context.Context) string {
	if _, ok := a.primary(ctx); ok {
		return ModePrimary
	}
	return ModeFallback
}

// -- Reads --

// Query returns up to limit alerts matching filter, newest first. It never
// fails: when no store can be read the result is empty with SourceNone.
func (a *Adapter) Query(ctx context.Context, limit int, filter schemas.StatusFilter) schemas.QueryResult {
	if db, ok := a.primary(ctx); ok {
		alerts, err := a.repo.List(ctx, db, limit, filter)
		if err == nil {
			a.metrics.ObserveQuery(string(schemas.SourcePrimary))
			return schemas.QueryResult{Alerts: alerts, Source: schemas.SourcePrimary}
		}
		a.log.Warn("Primary query failed, serving snapshot.", zap.Error(err))
		a.primaryFailed(err)
	}

	snapshot, source := a.snapshot()
	a.metrics.ObserveQuery(string(source))
	return schemas.QueryResult{Alerts: selectAlerts(snapshot, limit, filter), Source: source}
}

// Get looks up one alert, primary first and snapshot second.
func (a *Adapter) Get(ctx context.Context, id string) (schemas.AlertRecord, error) {
	if db, ok := a.primary(ctx); ok {
		rec, err := a.repo.Get(ctx, db, id)
		switch {
		case err == nil:
			return rec, nil
		case !errors.Is(err, schemas.ErrNotFound):
			a.log.Warn("Primary lookup failed, checking snapshot.", zap.String("id", id), zap.Error(err))
			a.primaryFailed(err)
		}
	}

	snapshot, _ := a.snapshot()
	if i := indexOf(snapshot, id); i >= 0 {
		return snapshot[i], nil
	}
	return schemas.AlertRecord{}, schemas.ErrNotFound
}

// snapshot returns the cached snapshot, loading it from the fallback file on
// first use. A missing or unreadable file leaves the cache empty.
func (a *Adapter) snapshot() ([]schemas.AlertRecord, schemas.QuerySource) {
	a.mu.RLock()
	if a.cached {
		s := a.cache
		a.mu.RUnlock()
		return s, schemas.SourceCache
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached {
		return a.cache, schemas.SourceCache
	}

	records, err := a.fallback.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.log.Error("Failed to read fallback snapshot.", zap.String("path", a.fallback.Path()), zap.Error(err))
		}
		return nil, schemas.SourceNone
	}
	a.cache = records
	a.cached = true
	a.log.Info("Loaded fallback snapshot.", zap.Int("alerts", len(records)))
	return records, schemas.SourceFallback
}

// invalidate drops the cache so the next read reloads the fallback file.
func (a *Adapter) invalidate() {
	a.mu.Lock()
	a.cache = nil
	a.cached = false
	a.mu.Unlock()
}

// -- Writes --

// Write replaces the snapshot with records and pushes them to the primary
// store when it is reachable. Only a fallback failure is reported as an error;
// the cache holds the snapshot regardless.
func (a *Adapter) Write(ctx context.Context, records []schemas.AlertRecord) (schemas.WriteAck, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.writeThrough(ctx, records, records)
}

// Append merges alerts into the current snapshot, drops the oldest entries
// beyond the retention cap and writes the result through. Only the new alerts
// are sent to the primary store.
func (a *Adapter) Append(ctx context.Context, alerts []schemas.AlertRecord) (schemas.WriteAck, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	current, _ := a.snapshot()
	if len(alerts) == 0 {
		return schemas.WriteAck{Records: len(current)}, nil
	}

	merged := make([]schemas.AlertRecord, 0, len(alerts)+len(current))
	merged = append(merged, alerts...)
	merged = append(merged, current...)
	// The snapshot is kept newest first, so the retention cut drops the oldest.
	return a.writeThrough(ctx, selectAlerts(merged, a.retention, schemas.FilterAll), alerts)
}

// writeThrough installs snapshot in the cache and the fallback file, then
// inserts fresh into the primary store. Callers hold writeMu.
func (a *Adapter) writeThrough(ctx context.Context, snapshot, fresh []schemas.AlertRecord) (schemas.WriteAck, error) {
	snapshot = slices.Clone(snapshot)
	if snapshot == nil {
		snapshot = []schemas.AlertRecord{}
	}

	a.mu.Lock()
	a.cache = snapshot
	a.cached = true
	a.mu.Unlock()

	ack := schemas.WriteAck{Records: len(snapshot)}
	var saveErr error
	if err := a.fallback.Save(snapshot); err != nil {
		a.log.Error("Failed to persist fallback snapshot.", zap.Error(err))
		saveErr = fmt.Errorf("failed to persist fallback snapshot: %w", err)
	} else {
		ack.Persisted = true
	}

	if len(fresh) > 0 {
		if db, ok := a.primary(ctx); ok {
			if err := a.repo.Insert(ctx, db, fresh); err != nil {
				a.log.Warn("Primary insert failed, snapshot kept in fallback.", zap.Int("alerts", len(fresh)), zap.Error(err))
				a.primaryFailed(err)
			} else {
				ack.Primary = true
			}
		}
	}
	return ack, saveErr
}

// UpdateStatus changes the status of one alert in the primary store and in
// the snapshot, wherever the id is present.
func (a *Adapter) UpdateStatus(ctx context.Context, id string, status schemas.AlertStatus) (schemas.AlertRecord, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	var updated schemas.AlertRecord
	found, durable := false, false

	if db, ok := a.primary(ctx); ok {
		rec, err := a.repo.UpdateStatus(ctx, db, id, status)
		switch {
		case err == nil:
			updated, found, durable = rec, true, true
		case errors.Is(err, schemas.ErrNotFound):
		default:
			a.log.Warn("Primary status update failed.", zap.String("id", id), zap.Error(err))
			a.primaryFailed(err)
		}
	}

	current, _ := a.snapshot()
	if i := indexOf(current, id); i >= 0 {
		if !found {
			updated, found = current[i], true
			updated.Status = status
		}
		if current[i].Status != status {
			next := slices.Clone(current)
			next[i].Status = status
			// A durable primary update outranks a failed snapshot save.
			if _, err := a.writeThrough(ctx, next, nil); err != nil && !durable {
				return updated, err
			}
		}
	}

	if !found {
		return schemas.AlertRecord{}, schemas.ErrNotFound
	}
	return updated, nil
}

// -- Primary Helpers --

func (a *Adapter) primary(ctx context.Context) (DBPool, bool) {
	if a.gate == nil {
		return nil, false
	}
	db, err := a.gate.Acquire(ctx)
	if err != nil {
		return nil, false
	}
	return db, true
}

// primaryFailed opens the gate when err indicates the connection is gone.
func (a *Adapter) primaryFailed(err error) {
	if isConnectivityError(err) {
		a.gate.Trip(err)
	}
}

// -- Snapshot Helpers --

// selectAlerts filters, orders newest first and truncates. The input is not
// modified.
func selectAlerts(snapshot []schemas.AlertRecord, limit int, filter schemas.StatusFilter) []schemas.AlertRecord {
	out := make([]schemas.AlertRecord, 0, len(snapshot))
	for _, a := range snapshot {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(x, y schemas.AlertRecord) int {
		return strings.Compare(y.Timestamp, x.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func indexOf(records []schemas.AlertRecord, id string) int {
	return slices.IndexFunc(records, func(a schemas.AlertRecord) bool { return a.ID == id })
}

// GateState reports the circuit position of the primary store gate.
func (a *Adapter) GateState() GateState {
	if a.gate == nil {
		return GateState{Circuit: CircuitOpen}
	}
	return a.gate.State()
}
