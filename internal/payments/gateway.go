package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/serviceerr"
	"go.uber.org/zap"
)

const (
	opNewDeferredGateway = "payments.deferred.new"
	opInitiatePayment    = "payments.deferred.initiate"
)

var (
	// ErrInvalidRequest indicates that a payment request failed validation.
	ErrInvalidRequest = errors.New("payments: invalid request")

	errMissingIDProvider = errors.New("id provider is required")
	mpesaNumberPattern   = regexp.MustCompile(`^254\d{9}$`)
)

// Request describes one mobile-money charge.
type Request struct {
	AmountCents      int64
	Phone            string
	AccountReference string
	Description      string
}

// Initiation carries the identifiers the gateway echoes back in its callback.
type Initiation struct {
	CheckoutRequestID string
	MerchantRequestID string
}

// Gateway starts payments. Confirmation arrives asynchronously.
type Gateway interface {
	InitiatePayment(ctx context.Context, request Request) (Initiation, error)
}

// NormalizePhone removes spaces from a mobile-money number.
func NormalizePhone(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
}

// ValidPhone reports whether the number is a 254-prefixed twelve digit MSISDN.
func ValidPhone(raw string) bool {
	return mpesaNumberPattern.MatchString(NormalizePhone(raw))
}

// DeferredGatewayConfig describes the dependencies of DeferredGateway.
type DeferredGatewayConfig struct {
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// DeferredGateway accepts requests without contacting a provider. It issues the
// request identifiers locally and relies on the callback endpoint to report the
// outcome.
type DeferredGateway struct {
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewDeferredGateway validates the configuration and returns a gateway.
func NewDeferredGateway(cfg DeferredGatewayConfig) (*DeferredGateway, error) {
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opNewDeferredGateway, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeferredGateway{idProvider: cfg.IDProvider, logger: logger}, nil
}

// InitiatePayment validates the request and issues callback identifiers.
func (g *DeferredGateway) InitiatePayment(ctx context.Context, request Request) (Initiation, error) {
	if err := ctx.Err(); err != nil {
		return Initiation{}, err
	}
	if request.AmountCents <= 0 {
		return Initiation{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	phone := NormalizePhone(request.Phone)
	if !mpesaNumberPattern.MatchString(phone) {
		return Initiation{}, fmt.Errorf("%w: phone %q", ErrInvalidRequest, request.Phone)
	}
	checkoutRequestID, err := g.idProvider.NewID()
	if err != nil {
		return Initiation{}, serviceerr.New(opInitiatePayment, "id_generation_failed", err)
	}
	merchantRequestID, err := g.idProvider.NewID()
	if err != nil {
		return Initiation{}, serviceerr.New(opInitiatePayment, "id_generation_failed", err)
	}
	g.logger.Info("payment initiated",
		zap.String("checkout_request_id", checkoutRequestID),
		zap.String("account_reference", request.AccountReference),
		zap.Int64("amount_cents", request.AmountCents))
	return Initiation{
		CheckoutRequestID: "ws_CO_" + checkoutRequestID,
		MerchantRequestID: merchantRequestID,
	}, nil
}
