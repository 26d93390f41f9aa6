package cartclient

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthenticated indicates the server rejected the session.
	ErrUnauthenticated = errors.New("cartclient: authentication required")
	// ErrNotFound indicates the product or cart row no longer exists.
	ErrNotFound = errors.New("cartclient: not found")
	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = errors.New("cartclient: insufficient stock")
	// ErrTransient marks network failures and unexpected server responses.
	ErrTransient = errors.New("cartclient: transient failure")
	// ErrItemBusy indicates a mutation on the same product is still outstanding.
	ErrItemBusy = errors.New("cartclient: item is busy")
	// ErrInvalidQuantity indicates a non-positive quantity on add.
	ErrInvalidQuantity = errors.New("cartclient: quantity must be positive")
)

// InsufficientStockError carries the stock reported by the backend.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("cartclient: insufficient stock for %s: %d available", e.ProductID, e.Available)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Product is the catalog data a shopper picks from.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Images     []string
	Stock      int
	CategoryID string
}

// Item mirrors one cart line as returned by GET /cart.
type Item struct {
	ProductID  string    `json:"id"`
	LineItemID string    `json:"cartId,omitempty"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price"`
	Images     []string  `json:"image"`
	Quantity   int       `json:"quantity"`
	Stock      int       `json:"stock"`
	CategoryID string    `json:"categoryId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RemovedItem is a line dropped by reconciliation.
type RemovedItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// AdjustedItem is a line whose quantity reconciliation reduced.
type AdjustedItem struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
	Reason      string `json:"reason"`
}

// ChangeLog lists the corrections of one reconciliation pass.
type ChangeLog struct {
	Removed []RemovedItem  `json:"removed"`
	Updated []AdjustedItem `json:"updated"`
}

// Empty reports whether the pass made no corrections.
func (c ChangeLog) Empty() bool {
	return len(c.Removed) == 0 && len(c.Updated) == 0
}

// SyncResult is the authoritative cart plus its change log.
type SyncResult struct {
	Items   []Item    `json:"items"`
	Changes ChangeLog `json:"changes"`
}

// SubtotalCents sums price times quantity.
func SubtotalCents(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.PriceCents * int64(item.Quantity)
	}
	return total
}

// ItemCount sums quantities.
func ItemCount(items []Item) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	cloned := make([]Item, len(items))
	for index, item := range items {
		cloned[index] = item
		if item.Images != nil {
			cloned[index].Images = append([]string(nil), item.Images...)
		}
	}
	return cloned
}
