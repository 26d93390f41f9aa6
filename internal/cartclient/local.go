package cartclient

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalBackend keeps the cart in memory for shoppers without a session.
// Stock is checked against the value known when the product was added and
// is never refreshed, so Sync reports no corrections.
type LocalBackend struct {
	mu    sync.Mutex
	items []Item
	clock func() time.Time
}

// NewLocalBackend returns an empty local cart seeded with the provided items.
func NewLocalBackend(clock func() time.Time, seed []Item) *LocalBackend {
	if clock == nil {
		clock = time.Now
	}
	return &LocalBackend{items: cloneItems(seed), clock: clock}
}

// Load returns the stored items.
func (b *LocalBackend) Load(ctx context.Context) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneItems(b.items), nil
}

// Add inserts the product or increments its quantity.
func (b *LocalBackend) Add(ctx context.Context, product Product, quantity int) ([]Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return nil, ErrNotFound
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock().UTC()
	if index := b.indexLocked(productID); index >= 0 {
		item := &b.items[index]
		next := item.Quantity + quantity
		if next > item.Stock {
			return nil, &InsufficientStockError{ProductID: productID, Available: item.Stock}
		}
		item.Quantity = next
		item.UpdatedAt = now
		return cloneItems(b.items), nil
	}
	if quantity > product.Stock {
		return nil, &InsufficientStockError{ProductID: productID, Available: product.Stock}
	}
	b.items = append(b.items, Item{
		ProductID:  productID,
		Name:       product.Name,
		PriceCents: product.PriceCents,
		Images:     append([]string(nil), product.Images...),
		Quantity:   quantity,
		Stock:      product.Stock,
		CategoryID: product.CategoryID,
		UpdatedAt:  now,
	})
	return cloneItems(b.items), nil
}

// UpdateQuantity sets the quantity. A non-positive quantity removes the row.
func (b *LocalBackend) UpdateQuantity(ctx context.Context, productID string, quantity int) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	index := b.indexLocked(productID)
	if quantity <= 0 {
		if index >= 0 {
			b.items = append(b.items[:index], b.items[index+1:]...)
		}
		return cloneItems(b.items), nil
	}
	if index < 0 {
		return nil, ErrNotFound
	}
	item := &b.items[index]
	if quantity > item.Stock {
		return nil, &InsufficientStockError{ProductID: productID, Available: item.Stock}
	}
	item.Quantity = quantity
	item.UpdatedAt = b.clock().UTC()
	return cloneItems(b.items), nil
}

// Remove deletes the row if present.
func (b *LocalBackend) Remove(ctx context.Context, productID string) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index := b.indexLocked(productID); index >= 0 {
		b.items = append(b.items[:index], b.items[index+1:]...)
	}
	return cloneItems(b.items), nil
}

// Clear deletes every row.
func (b *LocalBackend) Clear(ctx context.Context) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = []Item{}
	return []Item{}, nil
}

// Sync returns the stored items with an empty change log.
func (b *LocalBackend) Sync(ctx context.Context) (SyncResult, error) {
	items, _ := b.Load(ctx)
	return SyncResult{
		Items:   items,
		Changes: ChangeLog{Removed: []RemovedItem{}, Updated: []AdjustedItem{}},
	}, nil
}

func (b *LocalBackend) indexLocked(productID string) int {
	productID = strings.TrimSpace(productID)
	for index, item := range b.items {
		if item.ProductID == productID {
			return index
		}
	}
	return -1
}
