package cartclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLoadReplacesMirrorAndCaches(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))

	require.NoError(t, fixture.session.Load(context.Background()))

	state := fixture.session.Store().State()
	require.Len(t, state.Items, 1)
	assert.False(t, state.Loading)
	assert.False(t, state.Stale)
	cached, ok, _ := fixture.cache.Load()
	assert.True(t, ok)
	assert.Equal(t, state.Items, cached)
}

func TestSessionLoadFallsBackToStaleSnapshot(t *testing.T) {
	fixture := mustSession(t)
	require.NoError(t, fixture.cache.Save([]Item{sampleItem("p1", "Desk Lamp", 2, 5)}))
	fixture.backend.set(func(b *scriptedBackend) {
		b.loadErr = fmt.Errorf("%w: connection refused", ErrTransient)
	})

	require.NoError(t, fixture.session.Load(context.Background()))

	state := fixture.session.Store().State()
	assert.True(t, state.Stale)
	require.Len(t, state.Items, 1)
	assert.Equal(t, "Desk Lamp", state.Items[0].Name)
	assert.Equal(t, []string{"Offline"}, titles(fixture.notifier.Notifications()))
}

func TestSessionLoadWithoutSnapshotReturnsTransient(t *testing.T) {
	fixture := mustSession(t)
	fixture.backend.set(func(b *scriptedBackend) {
		b.loadErr = fmt.Errorf("%w: connection refused", ErrTransient)
	})

	err := fixture.session.Load(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, []string{"Error"}, titles(fixture.notifier.Notifications()))
}

func TestSessionAddNotifiesAndReplaces(t *testing.T) {
	fixture := mustSession(t)

	require.NoError(t, fixture.session.Add(context.Background(), sampleProduct("p1", "Desk Lamp", 5), 2))

	state := fixture.session.Store().State()
	require.Len(t, state.Items, 1)
	assert.Equal(t, 2, state.Items[0].Quantity)
	assert.Empty(t, state.Busy)
	notifications := fixture.notifier.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, Notification{Kind: KindInfo, Title: "Added to cart", Message: "Desk Lamp has been added to your cart"}, notifications[0])
}

func TestSessionMutationTransientFailureLeavesState(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))
	before := fixture.session.Store().State()
	fixture.backend.set(func(b *scriptedBackend) {
		b.addErr = fmt.Errorf("%w: status 503", ErrTransient)
	})

	err := fixture.session.Add(context.Background(), sampleProduct("p1", "Desk Lamp", 5), 1)
	assert.ErrorIs(t, err, ErrTransient)

	after := fixture.session.Store().State()
	assert.Equal(t, before.Items, after.Items)
	assert.Empty(t, after.Busy)
	notifications := fixture.notifier.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "Error", notifications[0].Title)
	assert.Equal(t, "Failed to add item to cart. Please try again", notifications[0].Message)
}

func TestSessionUpdateInsufficientStockTriggersSync(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))

	err := fixture.session.UpdateQuantity(context.Background(), "p1", 6)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, int32(1), fixture.backend.syncCalls.Load())
	notifications := fixture.notifier.Notifications()
	require.NotEmpty(t, notifications)
	assert.Equal(t, insufficientStockNotification(5), notifications[0])
	state := fixture.session.Store().State()
	assert.Equal(t, 2, state.Items[0].Quantity)
	assert.False(t, state.LastSync.IsZero())
}

func TestSessionUpdateToZeroRemovesLine(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))

	require.NoError(t, fixture.session.UpdateQuantity(context.Background(), "p1", 0))
	assert.Empty(t, fixture.session.Store().State().Items)
}

func TestSessionUnauthenticatedClearsMirror(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))
	fixture.backend.set(func(b *scriptedBackend) {
		b.removeErr = ErrUnauthenticated
	})

	err := fixture.session.Remove(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, fixture.session.Store().State().Items)
	assert.Equal(t, []string{"Sign in required"}, titles(fixture.notifier.Notifications()))
}

func TestSessionNotFoundIsNotRetried(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))
	fixture.backend.set(func(b *scriptedBackend) {
		b.updateErr = ErrNotFound
	})

	err := fixture.session.UpdateQuantity(context.Background(), "p1", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), fixture.backend.syncCalls.Load())
	assert.Len(t, fixture.session.Store().State().Items, 1)
}

func TestSessionRemoveUsesMirrorName(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))

	require.NoError(t, fixture.session.Remove(context.Background(), "p1"))
	assert.Empty(t, fixture.session.Store().State().Items)
	assert.Equal(t, []Notification{{Kind: KindInfo, Title: "Removed from cart", Message: "Desk Lamp has been removed from your cart"}},
		fixture.notifier.Notifications())
}

func TestSessionClearNotifyFlag(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
		require.NoError(t, fixture.session.Clear(context.Background(), false))
		assert.Empty(t, fixture.session.Store().State().Items)
		assert.Empty(t, fixture.notifier.Notifications())
	})
	t.Run("confirmed", func(t *testing.T) {
		fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
		require.NoError(t, fixture.session.Clear(context.Background(), true))
		assert.Empty(t, fixture.session.Store().State().Items)
		assert.Equal(t, []Notification{{Kind: KindInfo, Title: "Cart cleared", Message: "All items have been removed from your cart"}},
			fixture.notifier.Notifications())
	})
}

func TestSessionSyncBatchesNotifications(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 8, 8), sampleItem("p2", "Kettle", 1, 3))
	require.NoError(t, fixture.session.Load(context.Background()))
	fixture.backend.set(func(b *scriptedBackend) {
		b.syncResult = &SyncResult{
			Items: []Item{sampleItem("p1", "Desk Lamp", 5, 5)},
			Changes: ChangeLog{
				Removed: []RemovedItem{
					{ProductID: "p2", Name: "Kettle", Reason: "Out of stock"},
					{ProductID: "p3", Name: "Mug", Reason: "Product no longer available"},
				},
				Updated: []AdjustedItem{{ProductID: "p1", Name: "Desk Lamp", OldQuantity: 8, NewQuantity: 5, Reason: "Limited stock"}},
			},
		}
	})

	ran, err := fixture.session.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	state := fixture.session.Store().State()
	require.Len(t, state.Items, 1)
	assert.Equal(t, 5, state.Items[0].Quantity)
	assert.Equal(t, fixedTime, state.LastSync)
	assert.False(t, state.Syncing)
	assert.Equal(t, []Notification{
		{Kind: KindWarning, Title: "Items removed from cart", Message: "2 item(s) removed due to stock unavailability"},
		{Kind: KindWarning, Title: "Cart quantities updated", Message: "1 item(s) quantity reduced due to limited stock"},
	}, fixture.notifier.Notifications())
}

func TestSessionSyncWithoutChangesIsSilent(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))

	ran, err := fixture.session.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, fixture.notifier.Notifications())
}

func TestSessionDropsSyncWhileInFlight(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	fixture.backend.set(func(b *scriptedBackend) {
		b.syncGate = gate
		b.syncEnter = entered
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ran, err := fixture.session.Sync(context.Background())
		assert.NoError(t, err)
		assert.True(t, ran)
	}()
	<-entered
	assert.True(t, fixture.session.Store().State().Syncing)

	ran, err := fixture.session.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), fixture.backend.syncCalls.Load())
	assert.False(t, fixture.session.Store().State().Syncing)

	fixture.backend.set(func(b *scriptedBackend) {
		b.syncGate = nil
		b.syncEnter = nil
	})
	ran, err = fixture.session.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSessionBusyMarksArePerItem(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5), sampleItem("p2", "Kettle", 1, 3))
	require.NoError(t, fixture.session.Load(context.Background()))

	release, err := fixture.session.acquire("p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true}, fixture.session.Store().State().Busy)

	err = fixture.session.UpdateQuantity(context.Background(), "p1", 3)
	assert.ErrorIs(t, err, ErrItemBusy)
	require.NoError(t, fixture.session.UpdateQuantity(context.Background(), "p2", 2))

	release()
	release()
	assert.Empty(t, fixture.session.Store().State().Busy)
	require.NoError(t, fixture.session.UpdateQuantity(context.Background(), "p1", 3))
}

func TestSessionStartSyncRunsImmediately(t *testing.T) {
	fixture := mustSession(t, sampleItem("p1", "Desk Lamp", 2, 5))
	require.NoError(t, fixture.session.Load(context.Background()))

	scheduler, err := fixture.session.StartSync(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return fixture.backend.syncCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	scheduler.Stop()
}

func TestSessionScheduledSyncSkipsEmptyMirror(t *testing.T) {
	fixture := mustSession(t)

	fixture.session.scheduledSync(context.Background())
	assert.Equal(t, int32(0), fixture.backend.syncCalls.Load())
}

func TestNewSessionRequiresBackend(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.Error(t, err)
}
