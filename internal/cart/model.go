package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// Reasons recorded in the reconciliation change log.
const (
	ReasonOutOfStock          = "Out of stock"
	ReasonProductUnavailable  = "Product no longer available"
	ReasonLimitedStockReduced = "Quantity reduced due to limited stock"
)

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("cart: invalid user id")
	// ErrInvalidProductID indicates that a product identifier is empty or exceeds storage bounds.
	ErrInvalidProductID = errors.New("cart: invalid product id")
	// ErrInvalidQuantity indicates a non-positive quantity on add.
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	// ErrProductNotFound indicates that the referenced product does not exist.
	ErrProductNotFound = errors.New("cart: product not found")
	// ErrLineItemNotFound indicates that the user's cart has no row for the product.
	ErrLineItemNotFound = errors.New("cart: line item not found")
	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = errors.New("cart: insufficient stock")
)

// InsufficientStockError reports the stock that was available when a quantity was rejected.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("cart: insufficient stock for product %s: %d available", e.ProductID, e.Available)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// UserID represents a validated cart owner identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ProductID represents a validated product identifier.
type ProductID string

// NewProductID validates raw input and returns a ProductID.
func NewProductID(rawInput string) (ProductID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidProductID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidProductID, maxIdentifierLength)
	}
	return ProductID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ProductID) String() string {
	return string(id)
}

// LineItem is one persisted (user, product) row. Name, price and image are a
// snapshot taken when the row was created. Quantity is always at least one.
type LineItem struct {
	ID                string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID            string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_cart_user_product,priority:1"`
	ProductID         string    `gorm:"column:product_id;size:190;not null;uniqueIndex:idx_cart_user_product,priority:2"`
	ProductName       string    `gorm:"column:product_name;size:320;not null"`
	ProductPriceCents int64     `gorm:"column:product_price_cents;not null"`
	ProductImage      string    `gorm:"column:product_image;size:512;not null;default:''"`
	Quantity          int       `gorm:"column:quantity;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (LineItem) TableName() string {
	return "cart_items"
}

// Item is a line item joined with live product data, as rendered to shoppers.
type Item struct {
	ProductID  string
	LineItemID string
	Name       string
	PriceCents int64
	Images     []string
	Quantity   int
	Stock      int
	CategoryID string
	UpdatedAt  time.Time
}

// RemovedItem records a line item deleted during reconciliation.
type RemovedItem struct {
	ProductID string
	Name      string
	Reason    string
}

// AdjustedItem records a quantity clamp applied during reconciliation.
type AdjustedItem struct {
	ProductID   string
	Name        string
	OldQuantity int
	NewQuantity int
	Reason      string
}

// ChangeLog summarizes the corrections of one reconciliation pass. It is never persisted.
type ChangeLog struct {
	Removed []RemovedItem
	Updated []AdjustedItem
}

// Empty reports whether the pass made no corrections.
func (c ChangeLog) Empty() bool {
	return len(c.Removed) == 0 && len(c.Updated) == 0
}

// ProductIDs lists every product touched by the change log.
func (c ChangeLog) ProductIDs() []string {
	productIDs := make([]string, 0, len(c.Removed)+len(c.Updated))
	for _, removed := range c.Removed {
		productIDs = append(productIDs, removed.ProductID)
	}
	for _, updated := range c.Updated {
		productIDs = append(productIDs, updated.ProductID)
	}
	return productIDs
}

// Reconciliation is the corrected cart view plus the change log that produced it.
type Reconciliation struct {
	Items   []Item
	Changes ChangeLog
}

// SubtotalCents sums price times quantity over the items.
func SubtotalCents(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.PriceCents * int64(item.Quantity)
	}
	return total
}
