package cartclient

import "context"

// Backend persists the cart. Every mutation returns the authoritative item
// list after the change has been applied.
type Backend interface {
	Load(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, product Product, quantity int) ([]Item, error)
	UpdateQuantity(ctx context.Context, productID string, quantity int) ([]Item, error)
	Remove(ctx context.Context, productID string) ([]Item, error)
	Clear(ctx context.Context) ([]Item, error)
	Sync(ctx context.Context) (SyncResult, error)
}
