package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "catalog.service.new"
	opGetProduct      = "catalog.get_product"
	opProductsByID    = "catalog.products_by_id"
	opListProducts    = "catalog.list_products"
	opListCategories  = "catalog.list_categories"
	opCreateProduct   = "catalog.create_product"
	opRelated         = "catalog.related_products"
	opFindProduct     = "catalog.find_product"
	opCreateCategory  = "catalog.create_category"
	opInventory       = "catalog.inventory"
	opSetStock        = "catalog.set_stock"
	opSeed            = "catalog.seed"
	reasonQueryFailed = "query_failed"

	defaultRelatedLimit = 4
	maxRelatedLimit     = 20
	allCategories       = "all"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service reads and maintains products, categories and stock counts.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// GetProduct loads a product by identifier.
func (s *Service) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrProductNotFound
	}
	var product Product
	err := s.db.WithContext(ctx).Where("id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		s.logError(opGetProduct, reasonQueryFailed, err, zap.String("product_id", productID))
		return Product{}, serviceerr.New(opGetProduct, reasonQueryFailed, err)
	}
	return product, nil
}

// ProductsByID loads the referenced products keyed by id. Unknown ids are absent from the map.
func (s *Service) ProductsByID(ctx context.Context, productIDs []string) (map[string]Product, error) {
	result := make(map[string]Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	var products []Product
	if err := s.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		s.logError(opProductsByID, reasonQueryFailed, err, zap.Int("product_count", len(productIDs)))
		return nil, serviceerr.New(opProductsByID, reasonQueryFailed, err)
	}
	for _, product := range products {
		result[product.ID] = product
	}
	return result, nil
}

// ListProducts returns products matching the filter, newest first.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := s.db.WithContext(ctx).Model(&Product{})
	if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filter.InStockOnly {
		query = query.Where("in_stock = ? AND stock > 0", true)
	}

	var products []Product
	if err := query.Order("created_at DESC").Order("name ASC").Find(&products).Error; err != nil {
		s.logError(opListProducts, reasonQueryFailed, err)
		return nil, serviceerr.New(opListProducts, reasonQueryFailed, err)
	}
	return products, nil
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		s.logError(opListCategories, reasonQueryFailed, err)
		return nil, serviceerr.New(opListCategories, reasonQueryFailed, err)
	}
	return categories, nil
}

// RelatedProducts returns up to Limit products of the named category, skipping
// ExcludeID. An unknown category yields an empty list.
func (s *Service) RelatedProducts(ctx context.Context, filter RelatedFilter) ([]Product, error) {
	categoryName := strings.TrimSpace(filter.CategoryName)
	if categoryName == "" {
		return nil, fmt.Errorf("%w: category required", ErrInvalidCategory)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	if limit > maxRelatedLimit {
		limit = maxRelatedLimit
	}

	category, found, err := s.categoryByName(ctx, opRelated, categoryName)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Product{}, nil
	}
	query := s.db.WithContext(ctx).Where("category_id = ?", category.ID)
	if excludeID := strings.TrimSpace(filter.ExcludeID); excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var products []Product
	if err := query.Order("created_at DESC").Order("name ASC").Limit(limit).Find(&products).Error; err != nil {
		s.logError(opRelated, reasonQueryFailed, err, zap.String("category", categoryName))
		return nil, serviceerr.New(opRelated, reasonQueryFailed, err)
	}
	return products, nil
}

// FindProduct looks a product up by exact name within a category. The boolean
// is false when either the category or the product is absent.
func (s *Service) FindProduct(ctx context.Context, lookup ProductLookup) (Product, bool, error) {
	name := strings.TrimSpace(lookup.Name)
	if name == "" {
		return Product{}, false, fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	categoryID := strings.TrimSpace(lookup.CategoryID)
	if categoryID == "" {
		categoryName := strings.TrimSpace(lookup.CategoryName)
		if categoryName == "" {
			return Product{}, false, fmt.Errorf("%w: category id or name required", ErrInvalidCategory)
		}
		category, found, err := s.categoryByName(ctx, opFindProduct, categoryName)
		if err != nil || !found {
			return Product{}, false, err
		}
		categoryID = category.ID
	}

	var product Product
	err := s.db.WithContext(ctx).Where("category_id = ? AND name = ?", categoryID, name).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, false, nil
	}
	if err != nil {
		s.logError(opFindProduct, reasonQueryFailed, err, zap.String("name", name))
		return Product{}, false, serviceerr.New(opFindProduct, reasonQueryFailed, err)
	}
	return product, true, nil
}

// CreateCategory inserts a category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name required", ErrInvalidCategory)
	}
	_, found, err := s.categoryByName(ctx, opCreateCategory, name)
	if err != nil {
		return Category{}, err
	}
	if found {
		return Category{}, ErrCategoryExists
	}
	categoryID, err := s.idProvider.NewID()
	if err != nil {
		return Category{}, serviceerr.New(opCreateCategory, "id_generation_failed", err)
	}
	category := Category{ID: categoryID, Name: name}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		s.logError(opCreateCategory, "insert_failed", err, zap.String("name", name))
		return Category{}, serviceerr.New(opCreateCategory, "insert_failed", err)
	}
	return category, nil
}

// Inventory lists every product with its category name and stock status.
// Search matches name, description or category name case-insensitively.
func (s *Service) Inventory(ctx context.Context, filter InventoryFilter) ([]InventoryItem, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}

	var products []Product
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("name ASC").Find(&products).Error; err != nil {
		s.logError(opInventory, reasonQueryFailed, err)
		return nil, serviceerr.New(opInventory, reasonQueryFailed, err)
	}

	categoryFilter := strings.TrimSpace(filter.CategoryName)
	if strings.EqualFold(categoryFilter, allCategories) {
		categoryFilter = ""
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]InventoryItem, 0, len(products))
	for _, product := range products {
		categoryName := names[product.CategoryID]
		if categoryFilter != "" && categoryName != categoryFilter {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(product.Name), search) &&
			!strings.Contains(strings.ToLower(product.Description), search) &&
			!strings.Contains(strings.ToLower(categoryName), search) {
			continue
		}
		items = append(items, InventoryItem{
			Product:      product,
			CategoryName: categoryName,
			Status:       StockStatus(product.Stock),
		})
	}
	return items, nil
}

func (s *Service) categoryByName(ctx context.Context, operation, name string) (Category, bool, error) {
	var category Category
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, false, nil
	}
	if err != nil {
		s.logError(operation, "category_lookup_failed", err, zap.String("category", name))
		return Category{}, false, serviceerr.New(operation, "category_lookup_failed", err)
	}
	return category, true, nil
}

// CreateProduct validates and inserts a new product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if input.PriceCents < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if input.Stock < 0 {
		return Product{}, ErrInvalidStock
	}

	db := s.db.WithContext(ctx)
	var category Category
	err := db.Where("id = ?", strings.TrimSpace(input.CategoryID)).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrCategoryNotFound
	}
	if err != nil {
		s.logError(opCreateProduct, "category_lookup_failed", err)
		return Product{}, serviceerr.New(opCreateProduct, "category_lookup_failed", err)
	}

	productID, err := s.idProvider.NewID()
	if err != nil {
		return Product{}, serviceerr.New(opCreateProduct, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	product := Product{
		ID:          productID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		CategoryID:  category.ID,
		Images:      compactStrings(input.Images),
		InStock:     input.Stock > 0,
		Stock:       input.Stock,
		Badge:       strings.TrimSpace(input.Badge),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&product).Error; err != nil {
		s.logError(opCreateProduct, "insert_failed", err, zap.String("name", name))
		return Product{}, serviceerr.New(opCreateProduct, "insert_failed", err)
	}
	return product, nil
}

// SetStock overwrites the stock count of a product. When inStock is nil the flag
// follows the count.
func (s *Service) SetStock(ctx context.Context, productID string, stock int, inStock *bool) (Product, error) {
	if stock < 0 {
		return Product{}, ErrInvalidStock
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	flag := stock > 0
	if inStock != nil {
		flag = *inStock
	}
	now := s.clock().UTC()
	err = s.db.WithContext(ctx).Model(&Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]interface{}{"stock": stock, "in_stock": flag, "updated_at": now}).Error
	if err != nil {
		s.logError(opSetStock, "update_failed", err, zap.String("product_id", product.ID))
		return Product{}, serviceerr.New(opSetStock, "update_failed", err)
	}
	product.Stock = stock
	product.InStock = flag
	product.UpdatedAt = now
	return product, nil
}

// Seed inserts the declared categories and products, matching existing rows by
// name so repeated runs update price and stock instead of duplicating rows.
func (s *Service) Seed(ctx context.Context, seeds []CategorySeed) (SeedResult, error) {
	var result SeedResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, categorySeed := range seeds {
			categoryName := strings.TrimSpace(categorySeed.Name)
			if categoryName == "" {
				return fmt.Errorf("%w: category name required", ErrInvalidProduct)
			}
			var category Category
			err := tx.Where("name = ?", categoryName).Take(&category).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				categoryID, idErr := s.idProvider.NewID()
				if idErr != nil {
					return serviceerr.New(opSeed, "id_generation_failed", idErr)
				}
				category = Category{ID: categoryID, Name: categoryName}
				if err := tx.Create(&category).Error; err != nil {
					return serviceerr.New(opSeed, "category_insert_failed", err)
				}
				result.CategoriesCreated++
			} else if err != nil {
				return serviceerr.New(opSeed, "category_lookup_failed", err)
			}

			for _, productSeed := range categorySeed.Products {
				created, err := s.seedProduct(tx, category.ID, productSeed)
				if err != nil {
					return err
				}
				if created {
					result.ProductsCreated++
				} else {
					result.ProductsUpdated++
				}
			}
		}
		return nil
	})
	if err != nil {
		s.logError(opSeed, "transaction_failed", err)
		return SeedResult{}, err
	}
	s.logger.Info("catalog seeded",
		zap.Int("categories_created", result.CategoriesCreated),
		zap.Int("products_created", result.ProductsCreated),
		zap.Int("products_updated", result.ProductsUpdated))
	return result, nil
}

func (s *Service) seedProduct(tx *gorm.DB, categoryID string, seed ProductSeed) (bool, error) {
	name := strings.TrimSpace(seed.Name)
	if name == "" || seed.PriceCents < 0 {
		return false, fmt.Errorf("%w: seed product %q", ErrInvalidProduct, seed.Name)
	}
	if seed.Stock < 0 {
		return false, ErrInvalidStock
	}
	now := s.clock().UTC()

	var existing Product
	err := tx.Where("category_id = ? AND name = ?", categoryID, name).Take(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"price_cents": seed.PriceCents,
			"stock":       seed.Stock,
			"in_stock":    seed.Stock > 0,
			"updated_at":  now,
		}
		if err := tx.Model(&Product{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return false, serviceerr.New(opSeed, "product_update_failed", err)
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, serviceerr.New(opSeed, "product_lookup_failed", err)
	}

	productID, err := s.idProvider.NewID()
	if err != nil {
		return false, serviceerr.New(opSeed, "id_generation_failed", err)
	}
	product := Product{
		ID:          productID,
		Name:        name,
		Description: strings.TrimSpace(seed.Description),
		PriceCents:  seed.PriceCents,
		CategoryID:  categoryID,
		Images:      compactStrings(seed.Images),
		InStock:     seed.Stock > 0,
		Stock:       seed.Stock,
		Badge:       strings.TrimSpace(seed.Badge),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&product).Error; err != nil {
		return false, serviceerr.New(opSeed, "product_insert_failed", err)
	}
	return true, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("catalog service error", attrs...)
}

func compactStrings(values []string) []string {
	compacted := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			compacted = append(compacted, trimmed)
		}
	}
	return compacted
}
