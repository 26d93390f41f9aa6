package catalog

import (
	"errors"
	"time"
)

var (
	// ErrProductNotFound indicates that no product matches the requested identifier.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCategoryNotFound indicates that no category matches the requested identifier.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrInvalidProduct indicates that product input failed validation.
	ErrInvalidProduct = errors.New("catalog: invalid product")
	// ErrInvalidStock indicates a negative stock count.
	ErrInvalidStock = errors.New("catalog: stock must not be negative")
	// ErrInvalidCategory indicates that category input failed validation.
	ErrInvalidCategory = errors.New("catalog: invalid category")
	// ErrCategoryExists indicates that a category with the same name is already stored.
	ErrCategoryExists = errors.New("catalog: category already exists")
)

// Inventory status labels derived from the stock count.
const (
	StatusOutOfStock = "Out of Stock"
	StatusLowStock   = "Low Stock"
	StatusInStock    = "In Stock"

	lowStockThreshold = 10
)

// StockStatus labels a stock count for the back office.
func StockStatus(stock int) string {
	switch {
	case stock <= 0:
		return StatusOutOfStock
	case stock < lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Category groups products on the storefront.
type Category struct {
	ID   string `gorm:"column:id;primaryKey;size:190;not null"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Product is the authoritative record for price and availability. Prices are
// stored in minor currency units.
type Product struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name        string    `gorm:"column:name;size:320;not null;index"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
	CategoryID  string    `gorm:"column:category_id;size:190;not null;index"`
	Images      []string  `gorm:"column:images;type:text;serializer:json"`
	InStock     bool      `gorm:"column:in_stock;not null"`
	Stock       int       `gorm:"column:stock;not null"`
	Badge       string    `gorm:"column:badge;size:64;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// Available reports whether the product can currently be placed in a cart.
func (p Product) Available() bool {
	return p.InStock && p.Stock > 0
}

// PrimaryImage returns the first image URL or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductFilter narrows ListProducts results.
type ProductFilter struct {
	CategoryID  string
	Search      string
	InStockOnly bool
}

// RelatedFilter selects products from the same category as the one being viewed.
type RelatedFilter struct {
	CategoryName string
	ExcludeID    string
	Limit        int
}

// ProductLookup identifies a product by name within a category given either by
// identifier or by name.
type ProductLookup struct {
	Name         string
	CategoryID   string
	CategoryName string
}

// InventoryFilter narrows the back office inventory listing. A category of
// "all" matches every category.
type InventoryFilter struct {
	CategoryName string
	Search       string
}

// InventoryItem is a product joined with its category name and stock status.
type InventoryItem struct {
	Product
	CategoryName string
	Status       string
}

// ProductInput describes a product created through the back office.
type ProductInput struct {
	Name        string
	Description string
	PriceCents  int64
	CategoryID  string
	Images      []string
	Stock       int
	Badge       string
}

// CategorySeed declares a category and the products it contains.
type CategorySeed struct {
	Name     string        `mapstructure:"name"`
	Products []ProductSeed `mapstructure:"products"`
}

// ProductSeed declares one catalog product for seeding.
type ProductSeed struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	PriceCents  int64    `mapstructure:"price_cents"`
	Images      []string `mapstructure:"images"`
	Stock       int      `mapstructure:"stock"`
	Badge       string   `mapstructure:"badge"`
}

// SeedResult counts rows created by Seed.
type SeedResult struct {
	CategoriesCreated int
	ProductsCreated   int
	ProductsUpdated   int
}
