package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	cartPath           = "/cart"
	cartSyncPath       = "/cart/sync"
	productsPath       = "/products"
	codeInsufficient   = "insufficient_stock"
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBodyBytes  = 1 << 16
)

var errMissingBaseURL = errors.New("cartclient: server url is required")

// RequestError is a 4xx response the client cannot recover from by retrying.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("cartclient: request rejected with %d %s: %s", e.Status, e.Code, e.Message)
}

// RemoteBackendConfig describes how to reach the cart API.
type RemoteBackendConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// RemoteBackend talks to the cart HTTP API with a bearer session token.
type RemoteBackend struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	logger  *zap.Logger
}

type errorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	AvailableStock *int   `json:"availableStock"`
}

type cartResponse struct {
	Items []Item `json:"items"`
}

type productResponse struct {
	Product struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Price      int64    `json:"price"`
		Image      []string `json:"image"`
		Stock      int      `json:"stock"`
		CategoryID string   `json:"categoryId"`
	} `json:"product"`
}

type mutationRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// NewRemoteBackend validates the configuration and returns a remote backend.
func NewRemoteBackend(cfg RemoteBackendConfig) (*RemoteBackend, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("cartclient: parse server url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteBackend{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		client:  client,
		logger:  logger,
	}, nil
}

// Load fetches the joined cart view.
func (b *RemoteBackend) Load(ctx context.Context) ([]Item, error) {
	var response cartResponse
	if err := b.do(ctx, http.MethodGet, cartPath, nil, nil, &response); err != nil {
		return nil, err
	}
	return cloneItems(response.Items), nil
}

// Add posts the product and reloads the cart.
func (b *RemoteBackend) Add(ctx context.Context, product Product, quantity int) ([]Item, error) {
	body := mutationRequest{ProductID: product.ID, Quantity: quantity}
	if err := b.do(ctx, http.MethodPost, cartPath, nil, body, nil); err != nil {
		return nil, withProduct(err, product.ID)
	}
	return b.Load(ctx)
}

// UpdateQuantity sets the quantity and reloads the cart.
func (b *RemoteBackend) UpdateQuantity(ctx context.Context, productID string, quantity int) ([]Item, error) {
	body := mutationRequest{ProductID: productID, Quantity: quantity}
	if err := b.do(ctx, http.MethodPut, cartPath, nil, body, nil); err != nil {
		return nil, withProduct(err, productID)
	}
	return b.Load(ctx)
}

// Remove deletes one row and reloads the cart.
func (b *RemoteBackend) Remove(ctx context.Context, productID string) ([]Item, error) {
	query := url.Values{"productId": []string{productID}}
	if err := b.do(ctx, http.MethodDelete, cartPath, query, nil, nil); err != nil {
		return nil, err
	}
	return b.Load(ctx)
}

// Clear deletes every row and reloads the cart.
func (b *RemoteBackend) Clear(ctx context.Context) ([]Item, error) {
	if err := b.do(ctx, http.MethodDelete, cartPath, nil, nil, nil); err != nil {
		return nil, err
	}
	return b.Load(ctx)
}

// Product fetches catalog data for productID from the public product endpoint.
func (b *RemoteBackend) Product(ctx context.Context, productID string) (Product, error) {
	var response productResponse
	if err := b.do(ctx, http.MethodGet, productsPath+"/"+url.PathEscape(productID), nil, nil, &response); err != nil {
		return Product{}, err
	}
	return Product{
		ID:         response.Product.ID,
		Name:       response.Product.Name,
		PriceCents: response.Product.Price,
		Images:     response.Product.Image,
		Stock:      response.Product.Stock,
		CategoryID: response.Product.CategoryID,
	}, nil
}

// Sync asks the server to reconcile the cart against live stock.
func (b *RemoteBackend) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	if err := b.do(ctx, http.MethodPost, cartSyncPath, nil, struct{}{}, &result); err != nil {
		return SyncResult{}, err
	}
	result.Items = cloneItems(result.Items)
	return result, nil
}

func (b *RemoteBackend) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	endpoint := *b.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cartclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("cartclient: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		request.Header.Set("Authorization", "Bearer "+b.token)
	}

	response, err := b.client.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.logger.Warn("cart request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			_, _ = io.Copy(io.Discard, response.Body)
			return nil
		}
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrTransient, err)
		}
		return nil
	}
	return b.decodeFailure(method, path, response)
}

func (b *RemoteBackend) decodeFailure(method, path string, response *http.Response) error {
	var payload errorResponse
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	_ = json.Unmarshal(raw, &payload)

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, payload.Error)
	case response.StatusCode == http.StatusBadRequest && payload.Error == codeInsufficient:
		available := 0
		if payload.AvailableStock != nil {
			available = *payload.AvailableStock
		}
		return &InsufficientStockError{Available: available}
	case response.StatusCode >= http.StatusBadRequest && response.StatusCode < http.StatusInternalServerError && response.StatusCode != http.StatusTooManyRequests:
		return &RequestError{Status: response.StatusCode, Code: payload.Error, Message: payload.Message}
	default:
		b.logger.Warn("cart request returned server error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("code", payload.Error))
		return fmt.Errorf("%w: status %d", ErrTransient, response.StatusCode)
	}
}

func withProduct(err error, productID string) error {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		stockErr.ProductID = productID
	}
	return err
}
