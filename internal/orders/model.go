package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Order fulfilment states.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Payment states.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Delivery address kinds.
const (
	AddressTypeHostel    = "hostel"
	AddressTypeApartment = "apartment"
)

const paymentMethodMpesa = "mpesa"

var validStatuses = map[string]struct{}{
	StatusPending:    {},
	StatusConfirmed:  {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

var (
	// ErrInvalidCheckout is matched by every ValidationError.
	ErrInvalidCheckout = errors.New("orders: invalid checkout request")
	// ErrEmptyCart indicates checkout was attempted with no cart items.
	ErrEmptyCart = errors.New("orders: cart is empty")
	// ErrPaymentFailed indicates that the payment gateway rejected the charge.
	ErrPaymentFailed = errors.New("orders: payment initiation failed")
	// ErrOrderNotFound indicates that no order matches the identifier.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrInvalidStatus indicates an unknown fulfilment status.
	ErrInvalidStatus = errors.New("orders: invalid status")
)

// ValidationError maps form fields to human readable messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("orders: invalid checkout request: %s", strings.Join(names, ", "))
}

// Is lets errors.Is match ErrInvalidCheckout.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidCheckout
}

// Customer identifies the buyer.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Address is a campus delivery location.
type Address struct {
	Type                 string
	HostelName           string
	BlockName            string
	RoomNumber           string
	ApartmentName        string
	HouseNumber          string
	DeliveryInstructions string
}

// CheckoutRequest is the submitted checkout form.
type CheckoutRequest struct {
	Customer     Customer
	Address      Address
	MpesaNumber  string
	AgreeToTerms bool
}

// Totals are the computed charges in minor units.
type Totals struct {
	SubtotalCents int64
	ShippingCents int64
	TotalCents    int64
}

// PaymentResult is the outcome reported by the payment callback.
type PaymentResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
}

// Order is an immutable snapshot of a checked-out cart plus its payment and
// fulfilment state.
type Order struct {
	ID                   string      `gorm:"column:id;primaryKey;size:190;not null"`
	UserID               string      `gorm:"column:user_id;size:190;not null;index"`
	OrderNumber          string      `gorm:"column:order_number;size:32;not null;uniqueIndex"`
	CustomerName         string      `gorm:"column:customer_name;size:320;not null"`
	CustomerEmail        string      `gorm:"column:customer_email;size:320;not null"`
	CustomerPhone        string      `gorm:"column:customer_phone;size:32;not null;default:''"`
	AddressType          string      `gorm:"column:address_type;size:32;not null"`
	HostelName           string      `gorm:"column:hostel_name;size:190;not null;default:''"`
	BlockName            string      `gorm:"column:block_name;size:190;not null;default:''"`
	RoomNumber           string      `gorm:"column:room_number;size:64;not null;default:''"`
	ApartmentName        string      `gorm:"column:apartment_name;size:190;not null;default:''"`
	HouseNumber          string      `gorm:"column:house_number;size:64;not null;default:''"`
	DeliveryInstructions string      `gorm:"column:delivery_instructions;type:text;not null;default:''"`
	SubtotalCents        int64       `gorm:"column:subtotal_cents;not null"`
	ShippingCents        int64       `gorm:"column:shipping_cents;not null"`
	TotalCents           int64       `gorm:"column:total_cents;not null"`
	PaymentMethod        string      `gorm:"column:payment_method;size:32;not null"`
	MpesaNumber          string      `gorm:"column:mpesa_number;size:32;not null"`
	PaymentStatus        string      `gorm:"column:payment_status;size:32;not null;index"`
	TransactionID        string      `gorm:"column:transaction_id;size:190;not null;default:''"`
	CheckoutRequestID    string      `gorm:"column:checkout_request_id;size:190;not null;index"`
	MerchantRequestID    string      `gorm:"column:merchant_request_id;size:190;not null;default:''"`
	Status               string      `gorm:"column:status;size:32;not null;index"`
	CreatedAt            time.Time   `gorm:"column:created_at;not null"`
	UpdatedAt            time.Time   `gorm:"column:updated_at;not null"`
	DeliveredAt          *time.Time  `gorm:"column:delivered_at"`
	Items                []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots one cart line at checkout time.
type OrderItem struct {
	ID                string `gorm:"column:id;primaryKey;size:190;not null"`
	OrderID           string `gorm:"column:order_id;size:190;not null;index"`
	ProductID         string `gorm:"column:product_id;size:190;not null"`
	ProductName       string `gorm:"column:product_name;size:320;not null"`
	ProductPriceCents int64  `gorm:"column:product_price_cents;not null"`
	ProductImage      string `gorm:"column:product_image;size:512;not null;default:''"`
	Quantity          int    `gorm:"column:quantity;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OrderItem) TableName() string {
	return "order_items"
}
