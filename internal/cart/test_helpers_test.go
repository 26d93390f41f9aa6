package cart

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testClockTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type cartFixture struct {
	db      *gorm.DB
	catalog *catalog.Service
	service *Service
}

func mustFixture(t *testing.T) cartFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Category{}, &catalog.Product{}, &LineItem{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	clock := func() time.Time { return testClockTime }
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		IDProvider: ids.NewUUIDProvider(),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("failed to build cart service: %v", err)
	}
	return cartFixture{db: db, catalog: catalogService, service: service}
}

// mustProduct seeds a product with the given stock and returns its id.
func (f cartFixture) mustProduct(t *testing.T, name string, priceCents int64, stock int) ProductID {
	t.Helper()
	_, err := f.catalog.Seed(context.Background(), []catalog.CategorySeed{{
		Name:     "General",
		Products: []catalog.ProductSeed{{Name: name, PriceCents: priceCents, Stock: stock, Images: []string{"https://cdn.example.com/" + name + ".png"}}},
	}})
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	products, err := f.catalog.ListProducts(context.Background(), catalog.ProductFilter{Search: name})
	if err != nil || len(products) == 0 {
		t.Fatalf("failed to find seeded product %s: %v", name, err)
	}
	return mustProductID(t, products[0].ID)
}

func (f cartFixture) mustSetStock(t *testing.T, productID ProductID, stock int) {
	t.Helper()
	if _, err := f.catalog.SetStock(context.Background(), productID.String(), stock, nil); err != nil {
		t.Fatalf("failed to set stock: %v", err)
	}
}

func (f cartFixture) mustRowCount(t *testing.T, userID UserID, productID ProductID) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&LineItem{}).Where(queryUserProduct, userID.String(), productID.String()).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustProductID(t *testing.T, value string) ProductID {
	t.Helper()
	id, err := NewProductID(value)
	if err != nil {
		t.Fatalf("unexpected product id error: %v", err)
	}
	return id
}
