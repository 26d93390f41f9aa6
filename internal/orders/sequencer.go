package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/payments"
	"github.com/campusduka/storefront/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opSequencerNew     = "orders.sequencer.new"
	opCheckout         = "orders.checkout"
	opApplyPayment     = "orders.apply_payment"
	opListOrders       = "orders.list"
	opListAllOrders    = "orders.list_all"
	opGetOrderStatus   = "orders.get_status"
	opUpdateStatus     = "orders.update_status"
	reasonQueryFailed  = "query_failed"
	reasonUpdateFailed = "update_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingCart       = errors.New("cart store is required")
	errMissingGateway    = errors.New("payment gateway is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// CartStore is the subset of the cart service used during checkout.
type CartStore interface {
	List(ctx context.Context, userID cart.UserID) ([]cart.Item, error)
	Clear(ctx context.Context, userID cart.UserID) error
}

// SequencerConfig describes the dependencies of the checkout sequencer.
type SequencerConfig struct {
	Database      *gorm.DB
	Cart          CartStore
	Gateway       payments.Gateway
	IDProvider    ids.Provider
	Clock         func() time.Time
	Logger        *zap.Logger
	ShippingCents int64
}

// Sequencer runs checkout as a linear pipeline: validate, load the cart, compute
// totals, initiate payment, persist the order snapshot, then clear the cart.
// It also owns the order lifecycle after checkout.
type Sequencer struct {
	db            *gorm.DB
	cart          CartStore
	gateway       payments.Gateway
	idProvider    ids.Provider
	clock         func() time.Time
	logger        *zap.Logger
	shippingCents int64
}

// NewSequencer validates the configuration and returns a sequencer.
func NewSequencer(cfg SequencerConfig) (*Sequencer, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opSequencerNew, "missing_database", errMissingDatabase)
	}
	if cfg.Cart == nil {
		return nil, serviceerr.New(opSequencerNew, "missing_cart", errMissingCart)
	}
	if cfg.Gateway == nil {
		return nil, serviceerr.New(opSequencerNew, "missing_gateway", errMissingGateway)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opSequencerNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.ShippingCents < 0 {
		return nil, serviceerr.New(opSequencerNew, "invalid_shipping", fmt.Errorf("shipping must not be negative: %d", cfg.ShippingCents))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		db:            cfg.Database,
		cart:          cfg.Cart,
		gateway:       cfg.Gateway,
		idProvider:    cfg.IDProvider,
		clock:         clock,
		logger:        logger,
		shippingCents: cfg.ShippingCents,
	}, nil
}

// ComputeTotals sums price times quantity over the items and adds the flat
// shipping rate.
func ComputeTotals(items []cart.Item, shippingCents int64) Totals {
	subtotal := cart.SubtotalCents(items)
	return Totals{
		SubtotalCents: subtotal,
		ShippingCents: shippingCents,
		TotalCents:    subtotal + shippingCents,
	}
}

// Checkout places an order for the user's current cart. No order exists when
// payment initiation fails. A failure to clear the cart afterwards is logged and
// the order is kept.
func (s *Sequencer) Checkout(ctx context.Context, userID cart.UserID, request CheckoutRequest) (Order, error) {
	if err := ValidateCheckout(request); err != nil {
		return Order{}, err
	}

	items, err := s.cart.List(ctx, userID)
	if err != nil {
		s.logError(opCheckout, "cart_load_failed", err, zap.String("user_id", userID.String()))
		return Order{}, serviceerr.New(opCheckout, "cart_load_failed", err)
	}
	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}
	totals := ComputeTotals(items, s.shippingCents)

	now := s.clock().UTC()
	orderNumber, err := ids.NewOrderNumber(now)
	if err != nil {
		return Order{}, serviceerr.New(opCheckout, "order_number_failed", err)
	}
	mpesaNumber := payments.NormalizePhone(request.MpesaNumber)

	initiation, err := s.gateway.InitiatePayment(ctx, payments.Request{
		AmountCents:      totals.TotalCents,
		Phone:            mpesaNumber,
		AccountReference: orderNumber,
		Description:      "Payment for " + orderNumber,
	})
	if err != nil {
		s.logError(opCheckout, "payment_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("order_number", orderNumber))
		return Order{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	order, err := s.buildOrder(userID, orderNumber, request, mpesaNumber, totals, initiation, items, now)
	if err != nil {
		return Order{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}
		return tx.Create(&order.Items).Error
	})
	if err != nil {
		s.logError(opCheckout, "insert_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("order_number", orderNumber))
		return Order{}, serviceerr.New(opCheckout, "insert_failed", err)
	}

	if err := s.cart.Clear(ctx, userID); err != nil {
		s.logError(opCheckout, "cart_clear_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("order_id", order.ID))
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID.String()),
		zap.Int64("total_cents", order.TotalCents))
	return order, nil
}

func (s *Sequencer) buildOrder(userID cart.UserID, orderNumber string, request CheckoutRequest, mpesaNumber string, totals Totals, initiation payments.Initiation, items []cart.Item, now time.Time) (Order, error) {
	orderID, err := s.idProvider.NewID()
	if err != nil {
		return Order{}, serviceerr.New(opCheckout, "id_generation_failed", err)
	}
	order := Order{
		ID:                   orderID,
		UserID:               userID.String(),
		OrderNumber:          orderNumber,
		CustomerName:         strings.TrimSpace(request.Customer.FirstName + " " + request.Customer.LastName),
		CustomerEmail:        strings.TrimSpace(request.Customer.Email),
		CustomerPhone:        strings.TrimSpace(request.Customer.Phone),
		AddressType:          request.Address.Type,
		HostelName:           strings.TrimSpace(request.Address.HostelName),
		BlockName:            strings.TrimSpace(request.Address.BlockName),
		RoomNumber:           strings.TrimSpace(request.Address.RoomNumber),
		ApartmentName:        strings.TrimSpace(request.Address.ApartmentName),
		HouseNumber:          strings.TrimSpace(request.Address.HouseNumber),
		DeliveryInstructions: strings.TrimSpace(request.Address.DeliveryInstructions),
		SubtotalCents:        totals.SubtotalCents,
		ShippingCents:        totals.ShippingCents,
		TotalCents:           totals.TotalCents,
		PaymentMethod:        paymentMethodMpesa,
		MpesaNumber:          mpesaNumber,
		PaymentStatus:        PaymentStatusPending,
		CheckoutRequestID:    initiation.CheckoutRequestID,
		MerchantRequestID:    initiation.MerchantRequestID,
		Status:               StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
		Items:                make([]OrderItem, 0, len(items)),
	}
	for _, item := range items {
		itemID, err := s.idProvider.NewID()
		if err != nil {
			return Order{}, serviceerr.New(opCheckout, "id_generation_failed", err)
		}
		image := ""
		if len(item.Images) > 0 {
			image = item.Images[0]
		}
		order.Items = append(order.Items, OrderItem{
			ID:                itemID,
			OrderID:           orderID,
			ProductID:         item.ProductID,
			ProductName:       item.Name,
			ProductPriceCents: item.PriceCents,
			ProductImage:      image,
			Quantity:          item.Quantity,
		})
	}
	return order, nil
}

// ApplyPaymentResult records the gateway outcome on the order matching the
// checkout request id. Result code zero completes the payment.
func (s *Sequencer) ApplyPaymentResult(ctx context.Context, result PaymentResult) (Order, error) {
	checkoutRequestID := strings.TrimSpace(result.CheckoutRequestID)
	if checkoutRequestID == "" {
		return Order{}, ErrOrderNotFound
	}
	updates := map[string]interface{}{"updated_at": s.clock().UTC()}
	if result.ResultCode == 0 {
		updates["payment_status"] = PaymentStatusCompleted
		updates["transaction_id"] = strings.TrimSpace(result.Receipt)
	} else {
		updates["payment_status"] = PaymentStatusFailed
	}

	var order Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("checkout_request_id = ?", checkoutRequestID).
			Take(&order).Error; err != nil {
			return err
		}
		return tx.Model(&Order{}).Where("id = ?", order.ID).Updates(updates).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("payment callback for unknown order",
			zap.String("checkout_request_id", checkoutRequestID),
			zap.Int("result_code", result.ResultCode))
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		s.logError(opApplyPayment, reasonUpdateFailed, err, zap.String("checkout_request_id", checkoutRequestID))
		return Order{}, serviceerr.New(opApplyPayment, reasonUpdateFailed, err)
	}

	order.PaymentStatus = updates["payment_status"].(string)
	if result.ResultCode == 0 {
		order.TransactionID = strings.TrimSpace(result.Receipt)
	}
	order.UpdatedAt = updates["updated_at"].(time.Time)
	s.logger.Info("payment result applied",
		zap.String("order_id", order.ID),
		zap.String("payment_status", order.PaymentStatus),
		zap.Int("result_code", result.ResultCode),
		zap.String("result_desc", result.ResultDesc))
	return order, nil
}

// ListOrders returns the user's orders, newest first, with their items.
func (s *Sequencer) ListOrders(ctx context.Context, userID cart.UserID) ([]Order, error) {
	var orders []Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		s.logError(opListOrders, reasonQueryFailed, err, zap.String("user_id", userID.String()))
		return nil, serviceerr.New(opListOrders, reasonQueryFailed, err)
	}
	return orders, nil
}

// ListAllOrders returns every order, newest first, for the back office.
func (s *Sequencer) ListAllOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		s.logError(opListAllOrders, reasonQueryFailed, err)
		return nil, serviceerr.New(opListAllOrders, reasonQueryFailed, err)
	}
	return orders, nil
}

// GetOrderStatus loads one of the user's orders without its items.
func (s *Sequencer) GetOrderStatus(ctx context.Context, userID cart.UserID, orderID string) (Order, error) {
	var order Order
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(orderID), userID.String()).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		s.logError(opGetOrderStatus, reasonQueryFailed, err, zap.String("order_id", orderID))
		return Order{}, serviceerr.New(opGetOrderStatus, reasonQueryFailed, err)
	}
	return order, nil
}

// UpdateStatus moves an order to a new fulfilment status. Delivered orders
// record the delivery time.
func (s *Sequencer) UpdateStatus(ctx context.Context, orderID string, status string) (Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := validStatuses[status]; !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	now := s.clock().UTC()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	if status == StatusDelivered {
		updates["delivered_at"] = now
	}

	result := s.db.WithContext(ctx).Model(&Order{}).Where("id = ?", strings.TrimSpace(orderID)).Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateStatus, reasonUpdateFailed, result.Error, zap.String("order_id", orderID))
		return Order{}, serviceerr.New(opUpdateStatus, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return Order{}, ErrOrderNotFound
	}

	var order Order
	if err := s.db.WithContext(ctx).Preload("Items").Where("id = ?", strings.TrimSpace(orderID)).Take(&order).Error; err != nil {
		s.logError(opUpdateStatus, reasonQueryFailed, err, zap.String("order_id", orderID))
		return Order{}, serviceerr.New(opUpdateStatus, reasonQueryFailed, err)
	}
	return order, nil
}

func (s *Sequencer) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("orders service error", attrs...)
}
