package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campusduka/storefront/internal/auth"
	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/database"
	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/orders"
	"github.com/campusduka/storefront/internal/payments"
	"github.com/campusduka/storefront/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "server-test-secret"
	testCookieName    = "app_session"
	testIssuer        = "tauth"
	jsonContentType   = "application/json"
)

type testStack struct {
	server   *httptest.Server
	db       *gorm.DB
	catalog  *catalog.Service
	cart     *cart.Service
	realtime *RealtimeDispatcher
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := ids.NewUUIDProvider()
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	cartService, err := cart.NewService(cart.ServiceConfig{Database: db, Catalog: catalogService, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to build cart service: %v", err)
	}
	gateway, err := payments.NewDeferredGateway(payments.DeferredGatewayConfig{IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}
	sequencer, err := orders.NewSequencer(orders.SequencerConfig{
		Database:      db,
		Cart:          cartService,
		Gateway:       gateway,
		IDProvider:    idProvider,
		ShippingCents: 5000,
	})
	if err != nil {
		t.Fatalf("failed to build sequencer: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator:  validator,
		UserResolver:      userService,
		CatalogService:    catalogService,
		CartService:       cartService,
		OrderSequencer:    sequencer,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return testStack{server: server, db: db, catalog: catalogService, cart: cartService, realtime: dispatcher}
}

func (s testStack) mustProduct(t *testing.T, name string, priceCents int64, stock int) string {
	t.Helper()
	if _, err := s.catalog.Seed(context.Background(), []catalog.CategorySeed{{
		Name:     "Campus",
		Products: []catalog.ProductSeed{{Name: name, PriceCents: priceCents, Stock: stock, Images: []string{"https://cdn.example.com/" + name + ".png"}}},
	}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	products, err := s.catalog.ListProducts(context.Background(), catalog.ProductFilter{Search: name})
	if err != nil || len(products) == 0 {
		t.Fatalf("product %s not found: %v", name, err)
	}
	return products[0].ID
}

func mustMintSessionToken(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:    userID,
		UserEmail: userID + "@example.com",
		UserRoles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign session token: %v", err)
	}
	return signed
}

// doJSON sends a request with the session cookie and decodes the JSON response into out when non-nil.
func (s testStack) doJSON(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}
