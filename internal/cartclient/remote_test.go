package cartclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Body          map[string]interface{}
}

type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.requests...)
}

func newStubServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*RemoteBackend, *requestLog) {
	t.Helper()
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded := recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&recorded.Body)
		}
		log.mu.Lock()
		log.requests = append(log.requests, recorded)
		log.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	backend, err := NewRemoteBackend(RemoteBackendConfig{BaseURL: server.URL + "/", Token: "session-token"})
	require.NoError(t, err)
	return backend, log
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const cartBody = `{"items":[{"id":"p1","cartId":"c1","name":"Desk Lamp","price":15000,"image":["/lamp.jpg"],"quantity":2,"stock":5,"categoryId":"cat","updatedAt":"2026-10-01T09:30:00Z"}]}`

func TestRemoteBackendAddReloadsCart(t *testing.T) {
	backend, requests := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(cartBody))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Item added to cart successfully"})
	})

	items, err := backend.Add(context.Background(), sampleProduct("p1", "Desk Lamp", 5), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{
		ProductID:  "p1",
		LineItemID: "c1",
		Name:       "Desk Lamp",
		PriceCents: 15000,
		Images:     []string{"/lamp.jpg"},
		Quantity:   2,
		Stock:      5,
		CategoryID: "cat",
		UpdatedAt:  fixedTime,
	}, items[0])

	recorded := requests.all()
	require.Len(t, recorded, 2)
	post := recorded[0]
	assert.Equal(t, http.MethodPost, post.Method)
	assert.Equal(t, "/cart", post.Path)
	assert.Equal(t, "Bearer session-token", post.Authorization)
	assert.Equal(t, map[string]interface{}{"productId": "p1", "quantity": float64(2)}, post.Body)
	assert.Equal(t, http.MethodGet, recorded[1].Method)
}

func TestRemoteBackendRemoveSendsProductQuery(t *testing.T) {
	backend, requests := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{}})
	})

	items, err := backend.Remove(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, http.MethodDelete, requests.all()[0].Method)
	assert.Equal(t, "productId=p1", requests.all()[0].Query)

	_, err = backend.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", requests.all()[2].Query)
}

func TestRemoteBackendSyncDecodesChangeLog(t *testing.T) {
	backend, requests := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[],"changes":{"removed":[{"productId":"p1","name":"Desk Lamp","reason":"Out of stock"}],"updated":[]}}`))
	})

	result, err := backend.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/cart/sync", requests.all()[0].Path)
	assert.Equal(t, http.MethodPost, requests.all()[0].Method)
	assert.NotNil(t, result.Items)
	assert.Equal(t, []RemovedItem{{ProductID: "p1", Name: "Desk Lamp", Reason: "Out of stock"}}, result.Changes.Removed)
	assert.Empty(t, result.Changes.Updated)
}

func TestRemoteBackendMapsFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"unauthorized"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthenticated)
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error":"product_not_found","message":"Product not found"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:   "insufficient stock",
			status: http.StatusBadRequest,
			body:   `{"error":"insufficient_stock","message":"Insufficient stock","availableStock":5}`,
			check: func(t *testing.T, err error) {
				var stockErr *InsufficientStockError
				require.True(t, errors.As(err, &stockErr))
				assert.Equal(t, 5, stockErr.Available)
				assert.Equal(t, "p1", stockErr.ProductID)
			},
		},
		{
			name:   "validation",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_quantity","message":"quantity is required"}`,
			check: func(t *testing.T, err error) {
				var requestErr *RequestError
				require.True(t, errors.As(err, &requestErr))
				assert.Equal(t, "invalid_quantity", requestErr.Code)
				assert.NotErrorIs(t, err, ErrTransient)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":"cart_update_failed"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTransient)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":"rate_limited"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTransient)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			backend, requests := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			})
			_, err := backend.UpdateQuantity(context.Background(), "p1", 6)
			require.Error(t, err)
			testCase.check(t, err)
			assert.Len(t, requests.all(), 1)
		})
	}
}

func TestRemoteBackendNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	backend, err := NewRemoteBackend(RemoteBackendConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = backend.Load(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
}

func TestRemoteBackendRequiresURL(t *testing.T) {
	_, err := NewRemoteBackend(RemoteBackendConfig{BaseURL: "  "})
	assert.Error(t, err)
}

func TestRemoteBackendProductLookup(t *testing.T) {
	backend, requests := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/p1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product_not_found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"product":{"id":"p1","name":"Desk Lamp","price":15000,"image":["/lamp.jpg"],"stock":5,"categoryId":"cat","inStock":true}}`))
	})

	product, err := backend.Product(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, Product{ID: "p1", Name: "Desk Lamp", PriceCents: 15000, Images: []string{"/lamp.jpg"}, Stock: 5, CategoryID: "cat"}, product)
	assert.Equal(t, http.MethodGet, requests.all()[0].Method)

	_, err = backend.Product(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
