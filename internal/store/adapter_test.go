package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
)

// -- Test Helpers --

func fallbackOnlyAdapter(t *testing.T, opts ...AdapterOption) (*Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "threats.json")
	gate := NewGate(nil, 10*time.Second, zap.NewNop())
	return NewAdapter(gate, NewFileStore(path), zap.NewNop(), opts...), path
}

func primaryAdapter(t *testing.T) (*Adapter, pgxmock.PgxPoolIface, string) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	path := filepath.Join(t.TempDir(), "threats.json")
	dial := func(ctx context.Context) (DBPool, error) { return mockPool, nil }
	gate := NewGate(dial, 10*time.Second, zap.NewNop())
	return NewAdapter(gate, NewFileStore(path), zap.NewNop()), mockPool, path
}

func alertsAt(n int) []schemas.AlertRecord {
	out := make([]schemas.AlertRecord, n)
	for i := range out {
		out[i] = sampleAlert(fmt.Sprintf("a%d", i), fmt.Sprintf("2024-03-01 12:00:%02d", i))
	}
	return out
}

func ids(alerts []schemas.AlertRecord) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

// -- Fallback Mode --

func TestAdapterQueryFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing readable is reported as unavailable", func(t *testing.T) {
		a, _ := fallbackOnlyAdapter(t)
		res := a.Query(ctx, 10, schemas.FilterAll)
		assert.Equal(t, schemas.SourceNone, res.Source)
		assert.False(t, res.Available())
		assert.Empty(t, res.Alerts)
	})

	t.Run("file is loaded once then served from cache", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "threats.json")
		require.NoError(t, NewFileStore(path).Save(alertsAt(3)))
		a := NewAdapter(NewGate(nil, time.Second, zap.NewNop()), NewFileStore(path), zap.NewNop())

		first := a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, schemas.SourceFallback, first.Source)
		assert.Equal(t, []string{"a2", "a1", "a0"}, ids(first.Alerts))

		// A later file change is not seen without the watcher.
		require.NoError(t, os.Remove(path))
		second := a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, schemas.SourceCache, second.Source)
		assert.Len(t, second.Alerts, 3)
	})

	t.Run("filter applies before limit", func(t *testing.T) {
		a, _ := fallbackOnlyAdapter(t)
		records := alertsAt(5)
		records[4].Status = schemas.StatusResolved
		records[3].Status = schemas.StatusResolved
		_, err := a.Write(ctx, records)
		require.NoError(t, err)

		active := a.Query(ctx, 2, schemas.FilterActive)
		assert.Equal(t, []string{"a2", "a1"}, ids(active.Alerts))

		resolved := a.Query(ctx, 0, schemas.FilterResolved)
		assert.Equal(t, []string{"a4", "a3"}, ids(resolved.Alerts))

		all := a.Query(ctx, 0, schemas.FilterAll)
		assert.Len(t, all.Alerts, 5)
	})
}

func TestAdapterWriteFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("write replaces cache and file", func(t *testing.T) {
		a, path := fallbackOnlyAdapter(t)
		_, err := a.Write(ctx, alertsAt(4))
		require.NoError(t, err)

		ack, err := a.Write(ctx, alertsAt(2))
		require.NoError(t, err)
		assert.Equal(t, schemas.WriteAck{Records: 2, Persisted: true, Primary: false}, ack)

		onDisk, err := NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Equal(t, ids(a.Query(ctx, 0, schemas.FilterAll).Alerts), ids(selectAlerts(onDisk, 0, schemas.FilterAll)))
	})

	t.Run("caller mutation does not leak into the cache", func(t *testing.T) {
		a, _ := fallbackOnlyAdapter(t)
		records := alertsAt(1)
		_, err := a.Write(ctx, records)
		require.NoError(t, err)

		records[0].RiskScore = 1
		got := a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, 80.5, got.Alerts[0].RiskScore)
	})

	t.Run("fallback failure is reported but the cache keeps the snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing-dir", "threats.json")
		a := NewAdapter(NewGate(nil, time.Second, zap.NewNop()), NewFileStore(path), zap.NewNop())

		ack, err := a.Write(ctx, alertsAt(2))
		require.Error(t, err)
		assert.False(t, ack.Persisted)

		res := a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, schemas.SourceCache, res.Source)
		assert.Len(t, res.Alerts, 2)
	})
}

func TestAdapterAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("prepends and applies retention", func(t *testing.T) {
		a, path := fallbackOnlyAdapter(t, WithRetention(3))
		existing := alertsAt(2)
		_, err := a.Write(ctx, existing)
		require.NoError(t, err)

		fresh := []schemas.AlertRecord{
			sampleAlert("n1", "2024-03-01 13:00:00"),
			sampleAlert("n2", "2024-03-01 13:00:01"),
		}
		ack, err := a.Append(ctx, fresh)
		require.NoError(t, err)
		assert.Equal(t, 3, ack.Records)

		onDisk, err := NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"n2", "n1", "a1"}, ids(onDisk))
	})

	t.Run("empty append writes nothing", func(t *testing.T) {
		a, path := fallbackOnlyAdapter(t)
		ack, err := a.Append(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, ack.Records)
		_, statErr := os.Stat(path)
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	})

	t.Run("retention bounds the snapshot across many appends", func(t *testing.T) {
		a, _ := fallbackOnlyAdapter(t)
		for i := 0; i < 30; i++ {
			batch := make([]schemas.AlertRecord, 10)
			for j := range batch {
				batch[j] = sampleAlert(fmt.Sprintf("b%d-%d", i, j), fmt.Sprintf("2024-03-01 12:%02d:%02d", i, j))
			}
			_, err := a.Append(ctx, batch)
			require.NoError(t, err)
		}
		res := a.Query(ctx, 0, schemas.FilterAll)
		assert.Len(t, res.Alerts, DefaultRetention)
		assert.Equal(t, "b29-9", res.Alerts[0].ID)
	})
}

func TestAdapterUpdateStatusFallback(t *testing.T) {
	ctx := context.Background()
	a, path := fallbackOnlyAdapter(t)
	_, err := a.Write(ctx, alertsAt(3))
	require.NoError(t, err)

	updated, err := a.UpdateStatus(ctx, "a1", schemas.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusResolved, updated.Status)
	assert.Equal(t, "a1", updated.ID)

	onDisk, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusResolved, onDisk[1].Status)

	again, err := a.UpdateStatus(ctx, "a1", schemas.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, updated, again)

	_, err = a.UpdateStatus(ctx, "nope", schemas.StatusResolved)
	assert.ErrorIs(t, err, schemas.ErrNotFound)

	got, err := a.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusResolved, got.Status)
	_, err = a.Get(ctx, "nope")
	assert.ErrorIs(t, err, schemas.ErrNotFound)
}

func TestAdapterMode(t *testing.T) {
	a, _ := fallbackOnlyAdapter(t)
	assert.Equal(t, ModeFallback, a.Mode(context.Background()))

	p, _, _ := primaryAdapter(t)
	assert.Equal(t, ModePrimary, p.Mode(context.Background()))
}

// -- Primary Mode --

func TestAdapterQueryPrimary(t *testing.T) {
	ctx := context.Background()

	t.Run("primary answers when reachable", func(t *testing.T) {
		a, mockPool, _ := primaryAdapter(t)
		row := sampleAlert("p1", "2024-03-01 12:00:00")
		mockPool.ExpectQuery(flexibleSQLMatcher("FROM alerts ORDER BY timestamp DESC LIMIT $1")).
			WithArgs(5).
			WillReturnRows(alertRows(row))

		res := a.Query(ctx, 5, schemas.FilterAll)
		assert.Equal(t, schemas.SourcePrimary, res.Source)
		assert.Equal(t, []schemas.AlertRecord{row}, res.Alerts)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("mid-query failure trips the gate and serves the snapshot", func(t *testing.T) {
		a, mockPool, path := primaryAdapter(t)
		require.NoError(t, NewFileStore(path).Save(alertsAt(2)))
		mockPool.ExpectQuery("FROM alerts").WillReturnError(errRefused)

		res := a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, schemas.SourceFallback, res.Source)
		assert.Equal(t, []string{"a1", "a0"}, ids(res.Alerts))
		assert.Equal(t, CircuitOpen, a.Gate().State().Circuit)

		// While open the primary is not touched again.
		res = a.Query(ctx, 0, schemas.FilterAll)
		assert.Equal(t, schemas.SourceCache, res.Source)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestAdapterWritePrimary(t *testing.T) {
	ctx := context.Background()

	t.Run("write reaches every layer", func(t *testing.T) {
		a, mockPool, _ := primaryAdapter(t)
		rec := sampleAlert("w1", "2024-03-01 12:00:00")

		mockPool.ExpectBegin()
		mockPool.ExpectBatch().ExpectExec(flexibleSQLMatcher(sqlInsertAlert)).
			WithArgs(insertArgs(rec)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		ack, err := a.Write(ctx, []schemas.AlertRecord{rec})
		require.NoError(t, err)
		assert.Equal(t, schemas.WriteAck{Records: 1, Persisted: true, Primary: true}, ack)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("primary failure does not fail the write", func(t *testing.T) {
		a, mockPool, path := primaryAdapter(t)
		mockPool.ExpectBegin().WillReturnError(errRefused)

		ack, err := a.Write(ctx, alertsAt(2))
		require.NoError(t, err)
		assert.True(t, ack.Persisted)
		assert.False(t, ack.Primary)
		assert.Equal(t, CircuitOpen, a.Gate().State().Circuit)

		onDisk, err := NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Len(t, onDisk, 2)
	})
}

func TestAdapterUpdateStatusPrimary(t *testing.T) {
	ctx := context.Background()

	t.Run("primary row is returned when the snapshot lacks it", func(t *testing.T) {
		a, mockPool, _ := primaryAdapter(t)
		resolved := sampleAlert("p7", "2024-03-01 12:00:00")
		resolved.Status = schemas.StatusResolved
		mockPool.ExpectQuery(flexibleSQLMatcher("UPDATE alerts SET status = $2")).
			WithArgs("p7", "Resolved").
			WillReturnRows(alertRows(resolved))

		got, err := a.UpdateStatus(ctx, "p7", schemas.StatusResolved)
		require.NoError(t, err)
		assert.Equal(t, resolved, got)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown everywhere is not found", func(t *testing.T) {
		a, mockPool, _ := primaryAdapter(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("UPDATE alerts SET status = $2")).
			WithArgs("ghost", "Resolved").
			WillReturnRows(alertRows())

		_, err := a.UpdateStatus(ctx, "ghost", schemas.StatusResolved)
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})
}

func TestSelectAlerts(t *testing.T) {
	snapshot := []schemas.AlertRecord{
		sampleAlert("mid", "2024-03-01 12:00:05"),
		sampleAlert("old", "2024-03-01 11:59:59"),
		sampleAlert("new", "2024-03-01 12:10:00"),
	}
	got := selectAlerts(snapshot, 2, schemas.FilterAll)
	assert.Equal(t, []string{"new", "mid"}, ids(got))
	assert.Equal(t, "mid", snapshot[0].ID, "input must not be reordered")
}
