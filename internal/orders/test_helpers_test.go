package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/payments"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testClockTime = time.Date(2026, 10, 3, 9, 30, 0, 0, time.UTC)

type recordingGateway struct {
	requests []payments.Request
	err      error
}

func (g *recordingGateway) InitiatePayment(_ context.Context, request payments.Request) (payments.Initiation, error) {
	g.requests = append(g.requests, request)
	if g.err != nil {
		return payments.Initiation{}, g.err
	}
	return payments.Initiation{CheckoutRequestID: "ws_CO_test", MerchantRequestID: "merchant-1"}, nil
}

type failingClearCart struct {
	CartStore
}

func (f failingClearCart) Clear(context.Context, cart.UserID) error {
	return errors.New("cart unavailable")
}

type orderFixture struct {
	db        *gorm.DB
	catalog   *catalog.Service
	cart      *cart.Service
	gateway   *recordingGateway
	sequencer *Sequencer
}

func mustFixture(t *testing.T) orderFixture {
	t.Helper()
	return mustFixtureWith(t, nil, zap.NewNop())
}

func mustFixtureWith(t *testing.T, wrapCart func(CartStore) CartStore, logger *zap.Logger) orderFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Category{}, &catalog.Product{}, &cart.LineItem{}, &Order{}, &OrderItem{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	clock := func() time.Time { return testClockTime }
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, IDProvider: ids.NewUUIDProvider(), Clock: clock})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	cartService, err := cart.NewService(cart.ServiceConfig{Database: db, Catalog: catalogService, IDProvider: ids.NewUUIDProvider(), Clock: clock})
	if err != nil {
		t.Fatalf("failed to build cart: %v", err)
	}
	var cartStore CartStore = cartService
	if wrapCart != nil {
		cartStore = wrapCart(cartService)
	}
	gateway := &recordingGateway{}
	sequencer, err := NewSequencer(SequencerConfig{
		Database:      db,
		Cart:          cartStore,
		Gateway:       gateway,
		IDProvider:    ids.NewUUIDProvider(),
		Clock:         clock,
		Logger:        logger,
		ShippingCents: 5000,
	})
	if err != nil {
		t.Fatalf("failed to build sequencer: %v", err)
	}
	return orderFixture{db: db, catalog: catalogService, cart: cartService, gateway: gateway, sequencer: sequencer}
}

func (f orderFixture) mustCartWith(t *testing.T, userID cart.UserID, name string, priceCents int64, quantity int) {
	t.Helper()
	_, err := f.catalog.Seed(context.Background(), []catalog.CategorySeed{{
		Name:     "Essentials",
		Products: []catalog.ProductSeed{{Name: name, PriceCents: priceCents, Stock: 20, Images: []string{"https://cdn.example.com/" + name + ".jpg"}}},
	}})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	products, err := f.catalog.ListProducts(context.Background(), catalog.ProductFilter{Search: name})
	if err != nil || len(products) == 0 {
		t.Fatalf("product %s not found: %v", name, err)
	}
	if _, err := f.cart.Add(context.Background(), userID, cart.ProductID(products[0].ID), quantity); err != nil {
		t.Fatalf("add failed: %v", err)
	}
}

func validCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		Customer:     Customer{FirstName: "Amina", LastName: "Otieno", Email: "amina@example.com", Phone: "0712345678"},
		Address:      Address{Type: AddressTypeHostel, HostelName: "Nyayo", BlockName: "B", RoomNumber: "12"},
		MpesaNumber:  "254 712 345 678",
		AgreeToTerms: true,
	}
}
