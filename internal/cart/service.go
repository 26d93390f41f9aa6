package cart

import (
	"context"
	"errors"
	"time"

	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew      = "cart.service.new"
	opList            = "cart.list"
	opAdd             = "cart.add"
	opUpdateQuantity  = "cart.update_quantity"
	opRemove          = "cart.remove"
	opClear           = "cart.clear"
	opReconcile       = "cart.reconcile"
	queryUserID       = "user_id = ?"
	queryUserProduct  = "user_id = ? AND product_id = ?"
	reasonQueryFailed = "query_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingCatalog    = errors.New("product catalog is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ProductCatalog is the read-only view of the Product/Stock Store used by carts.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (catalog.Product, error)
	ProductsByID(ctx context.Context, productIDs []string) (map[string]catalog.Product, error)
}

// ServiceConfig describes the dependencies of the cart service.
type ServiceConfig struct {
	Database   *gorm.DB
	Catalog    ProductCatalog
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns the persisted cart rows of every user.
type Service struct {
	db         *gorm.DB
	catalog    ProductCatalog
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a cart service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, serviceerr.New(opServiceNew, "missing_catalog", errMissingCatalog)
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
		catalog:    cfg.Catalog,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns the user's cart joined with live product data. Rows whose product
// has been deleted are omitted.
func (s *Service) List(ctx context.Context, userID UserID) ([]Item, error) {
	if s.db == nil {
		return nil, serviceerr.New(opList, "missing_database", errMissingDatabase)
	}
	lineItems, err := s.loadLineItems(ctx, userID)
	if err != nil {
		s.logError(opList, reasonQueryFailed, err, zap.String("user_id", userID.String()))
		return nil, serviceerr.New(opList, reasonQueryFailed, err)
	}
	products, err := s.catalog.ProductsByID(ctx, productIDsOf(lineItems))
	if err != nil {
		s.logError(opList, "product_lookup_failed", err, zap.String("user_id", userID.String()))
		return nil, serviceerr.New(opList, "product_lookup_failed", err)
	}

	items := make([]Item, 0, len(lineItems))
	for _, lineItem := range lineItems {
		product, ok := products[lineItem.ProductID]
		if !ok {
			continue
		}
		items = append(items, viewOf(lineItem, product))
	}
	return items, nil
}

// Add places quantity units of the product in the cart. An existing row is
// incremented; the resulting quantity may never exceed the current stock.
func (s *Service) Add(ctx context.Context, userID UserID, productID ProductID, quantity int) (LineItem, error) {
	if s.db == nil {
		return LineItem{}, serviceerr.New(opAdd, "missing_database", errMissingDatabase)
	}
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	product, err := s.lookupProduct(ctx, opAdd, productID)
	if err != nil {
		return LineItem{}, err
	}

	var stored LineItem
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LineItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryUserProduct, userID.String(), productID.String()).
			Take(&existing).Error
		now := s.clock().UTC()

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if quantity > product.Stock {
				return &InsufficientStockError{ProductID: product.ID, Available: product.Stock}
			}
			lineItemID, idErr := s.idProvider.NewID()
			if idErr != nil {
				return serviceerr.New(opAdd, "id_generation_failed", idErr)
			}
			stored = LineItem{
				ID:                lineItemID,
				UserID:            userID.String(),
				ProductID:         product.ID,
				ProductName:       product.Name,
				ProductPriceCents: product.PriceCents,
				ProductImage:      product.PrimaryImage(),
				Quantity:          quantity,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.Create(&stored).Error; err != nil {
				s.logError(opAdd, "insert_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("product_id", productID.String()))
				return serviceerr.New(opAdd, "insert_failed", err)
			}
			return nil
		}
		if err != nil {
			s.logError(opAdd, "line_item_select_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("product_id", productID.String()))
			return serviceerr.New(opAdd, "line_item_select_failed", err)
		}

		newQuantity := existing.Quantity + quantity
		if newQuantity > product.Stock {
			return &InsufficientStockError{ProductID: product.ID, Available: product.Stock}
		}
		if err := tx.Model(&LineItem{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"quantity": newQuantity, "updated_at": now}).Error; err != nil {
			s.logError(opAdd, "update_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("product_id", productID.String()))
			return serviceerr.New(opAdd, "update_failed", err)
		}
		stored = existing
		stored.Quantity = newQuantity
		stored.UpdatedAt = now
		return nil
	})
	if txErr != nil {
		return LineItem{}, txErr
	}
	return stored, nil
}

// UpdateQuantity overwrites the quantity of an existing row. A non-positive
// quantity removes the row and returns a nil line item.
func (s *Service) UpdateQuantity(ctx context.Context, userID UserID, productID ProductID, quantity int) (*LineItem, error) {
	if s.db == nil {
		return nil, serviceerr.New(opUpdateQuantity, "missing_database", errMissingDatabase)
	}
	if quantity <= 0 {
		return nil, s.Remove(ctx, userID, productID)
	}
	product, err := s.lookupProduct(ctx, opUpdateQuantity, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, &InsufficientStockError{ProductID: product.ID, Available: product.Stock}
	}

	db := s.db.WithContext(ctx)
	now := s.clock().UTC()
	result := db.Model(&LineItem{}).
		Where(queryUserProduct, userID.String(), productID.String()).
		Updates(map[string]interface{}{"quantity": quantity, "updated_at": now})
	if result.Error != nil {
		s.logError(opUpdateQuantity, "update_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.String("product_id", productID.String()))
		return nil, serviceerr.New(opUpdateQuantity, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrLineItemNotFound
	}

	var stored LineItem
	if err := db.Where(queryUserProduct, userID.String(), productID.String()).Take(&stored).Error; err != nil {
		s.logError(opUpdateQuantity, "reload_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("product_id", productID.String()))
		return nil, serviceerr.New(opUpdateQuantity, "reload_failed", err)
	}
	return &stored, nil
}

// Remove deletes the row for the product if present.
func (s *Service) Remove(ctx context.Context, userID UserID, productID ProductID) error {
	if s.db == nil {
		return serviceerr.New(opRemove, "missing_database", errMissingDatabase)
	}
	err := s.db.WithContext(ctx).
		Where(queryUserProduct, userID.String(), productID.String()).
		Delete(&LineItem{}).Error
	if err != nil {
		s.logError(opRemove, "delete_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("product_id", productID.String()))
		return serviceerr.New(opRemove, "delete_failed", err)
	}
	return nil
}

// Clear deletes every row of the user's cart.
func (s *Service) Clear(ctx context.Context, userID UserID) error {
	if s.db == nil {
		return serviceerr.New(opClear, "missing_database", errMissingDatabase)
	}
	if err := s.db.WithContext(ctx).Where(queryUserID, userID.String()).Delete(&LineItem{}).Error; err != nil {
		s.logError(opClear, "delete_failed", err, zap.String("user_id", userID.String()))
		return serviceerr.New(opClear, "delete_failed", err)
	}
	return nil
}

func (s *Service) lookupProduct(ctx context.Context, operation string, productID ProductID) (catalog.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID.String())
	if errors.Is(err, catalog.ErrProductNotFound) {
		return catalog.Product{}, ErrProductNotFound
	}
	if err != nil {
		s.logError(operation, "product_lookup_failed", err, zap.String("product_id", productID.String()))
		return catalog.Product{}, serviceerr.New(operation, "product_lookup_failed", err)
	}
	return product, nil
}

func (s *Service) loadLineItems(ctx context.Context, userID UserID) ([]LineItem, error) {
	var lineItems []LineItem
	err := s.db.WithContext(ctx).
		Where(queryUserID, userID.String()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lineItems).Error
	return lineItems, err
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
	s.logger.Error("cart service error", attrs...)
}

func productIDsOf(lineItems []LineItem) []string {
	productIDs := make([]string, 0, len(lineItems))
	for _, lineItem := range lineItems {
		productIDs = append(productIDs, lineItem.ProductID)
	}
	return productIDs
}

func viewOf(lineItem LineItem, product catalog.Product) Item {
	images := append([]string(nil), product.Images...)
	if len(images) == 0 && lineItem.ProductImage != "" {
		images = []string{lineItem.ProductImage}
	}
	return Item{
		ProductID:  product.ID,
		LineItemID: lineItem.ID,
		Name:       product.Name,
		PriceCents: product.PriceCents,
		Images:     images,
		Quantity:   lineItem.Quantity,
		Stock:      product.Stock,
		CategoryID: product.CategoryID,
		UpdatedAt:  lineItem.UpdatedAt,
	}
}
