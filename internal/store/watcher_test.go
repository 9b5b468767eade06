package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aegiscore/api/schemas"
)

func TestWatchFallbackReloadsExternalChanges(t *testing.T) {
	a, path := fallbackOnlyAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := a.Write(ctx, alertsAt(1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.WatchFallback(ctx) }()

	// Another process rewrites the snapshot. Keep rewriting until the watcher
	// is registered and the change becomes visible.
	other := NewFileStore(path)
	assert.Eventually(t, func() bool {
		if err := other.Save(alertsAt(4)); err != nil {
			return false
		}
		res := a.Query(ctx, 0, schemas.FilterAll)
		return len(res.Alerts) == 4
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
