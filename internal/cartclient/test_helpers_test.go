package cartclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, time.October, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedTime
}

// scriptedBackend wraps a LocalBackend and lets tests inject failures and
// reconciliation results.
type scriptedBackend struct {
	*LocalBackend

	mu         sync.Mutex
	loadErr    error
	addErr     error
	updateErr  error
	removeErr  error
	clearErr   error
	syncErr    error
	syncResult *SyncResult
	syncGate   chan struct{}
	syncCalls  atomic.Int32
	syncEnter  chan struct{}
}

func newScriptedBackend(seed ...Item) *scriptedBackend {
	return &scriptedBackend{LocalBackend: NewLocalBackend(fixedClock, seed)}
}

func (b *scriptedBackend) Load(ctx context.Context) ([]Item, error) {
	if err := b.failure(&b.loadErr); err != nil {
		return nil, err
	}
	return b.LocalBackend.Load(ctx)
}

func (b *scriptedBackend) Add(ctx context.Context, product Product, quantity int) ([]Item, error) {
	if err := b.failure(&b.addErr); err != nil {
		return nil, err
	}
	return b.LocalBackend.Add(ctx, product, quantity)
}

func (b *scriptedBackend) UpdateQuantity(ctx context.Context, productID string, quantity int) ([]Item, error) {
	if err := b.failure(&b.updateErr); err != nil {
		return nil, err
	}
	return b.LocalBackend.UpdateQuantity(ctx, productID, quantity)
}

func (b *scriptedBackend) Remove(ctx context.Context, productID string) ([]Item, error) {
	if err := b.failure(&b.removeErr); err != nil {
		return nil, err
	}
	return b.LocalBackend.Remove(ctx, productID)
}

func (b *scriptedBackend) Clear(ctx context.Context) ([]Item, error) {
	if err := b.failure(&b.clearErr); err != nil {
		return nil, err
	}
	return b.LocalBackend.Clear(ctx)
}

func (b *scriptedBackend) Sync(ctx context.Context) (SyncResult, error) {
	b.syncCalls.Add(1)
	b.mu.Lock()
	gate, enter, result, err := b.syncGate, b.syncEnter, b.syncResult, b.syncErr
	b.mu.Unlock()
	if enter != nil {
		enter <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return SyncResult{}, ctx.Err()
		}
	}
	if err != nil {
		return SyncResult{}, err
	}
	if result != nil {
		return *result, nil
	}
	return b.LocalBackend.Sync(ctx)
}

func (b *scriptedBackend) failure(target *error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *target
}

func (b *scriptedBackend) set(apply func(*scriptedBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	apply(b)
}

type sessionFixture struct {
	backend  *scriptedBackend
	notifier *RecordingNotifier
	cache    *memoryCache
	session  *Session
}

func mustSession(t *testing.T, seed ...Item) sessionFixture {
	t.Helper()
	backend := newScriptedBackend(seed...)
	notifier := &RecordingNotifier{}
	cache := &memoryCache{}
	session, err := NewSession(SessionConfig{
		Backend:  backend,
		Notifier: notifier,
		Cache:    cache,
		Clock:    fixedClock,
	})
	require.NoError(t, err)
	return sessionFixture{backend: backend, notifier: notifier, cache: cache, session: session}
}

type memoryCache struct {
	mu    sync.Mutex
	items []Item
	saved bool
}

func (c *memoryCache) Save(items []Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = cloneItems(items)
	c.saved = true
	return nil
}

func (c *memoryCache) Load() ([]Item, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items), c.saved, nil
}

func sampleItem(productID, name string, quantity, stock int) Item {
	return Item{
		ProductID:  productID,
		Name:       name,
		PriceCents: 15000,
		Images:     []string{"/images/" + productID + ".jpg"},
		Quantity:   quantity,
		Stock:      stock,
		UpdatedAt:  fixedTime,
	}
}

func sampleProduct(productID, name string, stock int) Product {
	return Product{ID: productID, Name: name, PriceCents: 15000, Stock: stock}
}

func titles(notifications []Notification) []string {
	result := make([]string, 0, len(notifications))
	for _, notification := range notifications {
		result = append(result, notification.Title)
	}
	return result
}
