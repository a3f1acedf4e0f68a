package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInbox(t *testing.T) *Inbox {
	t.Helper()
	inbox, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inbox.Close() })
	return inbox
}

func TestMarkSeen_DedupesPerChannel(t *testing.T) {
	inbox := openInbox(t)
	ctx := context.Background()

	first, err := inbox.MarkSeen(ctx, "evt-1", "customer.7.orders", "order.status.updated")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := inbox.MarkSeen(ctx, "evt-1", "customer.7.orders", "order.status.updated")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := inbox.MarkSeen(ctx, "evt-1", "restaurant.3.orders", "order.status.updated")
	require.NoError(t, err)
	assert.True(t, other)

	n, err := inbox.Count(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkSeen_ConcurrentRedeliveries(t *testing.T) {
	inbox := openInbox(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := inbox.MarkSeen(ctx, "evt-2", "customer.1.orders", "order.status.updated")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
}

func TestPrune(t *testing.T) {
	inbox := openInbox(t)
	ctx := context.Background()

	inbox.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := inbox.MarkSeen(ctx, "old", "customer.1.orders", "order.status.updated")
	require.NoError(t, err)

	inbox.now = func() time.Time { return time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) }
	_, err = inbox.MarkSeen(ctx, "new", "customer.1.orders", "order.status.updated")
	require.NoError(t, err)

	removed, err := inbox.Prune(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := inbox.Count(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
