package server

import (
	"time"

	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/orders"
)

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	CategoryID  string   `json:"categoryId"`
	Image       []string `json:"image"`
	InStock     bool     `json:"inStock"`
	Stock       int      `json:"stock"`
	Badge       string   `json:"badge,omitempty"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type inventoryItemPayload struct {
	productPayload
	CategoryName string `json:"categoryName"`
	Status       string `json:"status"`
}

type createCategoryPayload struct {
	Name string `json:"name"`
}

type cartItemViewPayload struct {
	ID         string   `json:"id"`
	CartID     string   `json:"cartId"`
	Name       string   `json:"name"`
	Price      int64    `json:"price"`
	Image      []string `json:"image"`
	Quantity   int      `json:"quantity"`
	Stock      int      `json:"stock"`
	CategoryID string   `json:"categoryId"`
	UpdatedAt  string   `json:"updatedAt"`
}

type lineItemPayload struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductPrice int64  `json:"productPrice"`
	ProductImage string `json:"productImage,omitempty"`
	Quantity     int    `json:"quantity"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type removedItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

type adjustedItemPayload struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
	Reason      string `json:"reason"`
}

type changesPayload struct {
	Removed []removedItemPayload  `json:"removed"`
	Updated []adjustedItemPayload `json:"updated"`
}

type syncResponsePayload struct {
	Items   []cartItemViewPayload `json:"items"`
	Changes changesPayload        `json:"changes"`
}

type cartMutationPayload struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type createProductPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	CategoryID  string   `json:"categoryId"`
	Image       []string `json:"image"`
	Stock       int      `json:"stock"`
	Badge       string   `json:"badge"`
}

type setStockPayload struct {
	Stock   *int  `json:"stock"`
	InStock *bool `json:"inStock"`
}

type customerPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type addressPayload struct {
	Type                 string `json:"type"`
	HostelName           string `json:"hostelName"`
	BlockName            string `json:"blockName"`
	RoomNumber           string `json:"roomNumber"`
	ApartmentName        string `json:"apartmentName"`
	HouseNumber          string `json:"houseNumber"`
	DeliveryInstructions string `json:"deliveryInstructions"`
}

type checkoutRequestPayload struct {
	CustomerInfo customerPayload `json:"customerInfo"`
	AddressInfo  addressPayload  `json:"addressInfo"`
	PaymentInfo  struct {
		MpesaNumber  string `json:"mpesaNumber"`
		AgreeToTerms bool   `json:"agreeToTerms"`
	} `json:"paymentInfo"`
}

type orderItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

type orderPayload struct {
	ID                   string             `json:"id"`
	OrderNumber          string             `json:"orderNumber"`
	Subtotal             int64              `json:"subtotal"`
	ShippingCost         int64              `json:"shippingCost"`
	TotalAmount          int64              `json:"totalAmount"`
	Status               string             `json:"status"`
	PaymentStatus        string             `json:"paymentStatus"`
	PaymentMethod        string             `json:"paymentMethod"`
	TransactionID        string             `json:"transactionId,omitempty"`
	CheckoutRequestID    string             `json:"checkoutRequestId"`
	CustomerName         string             `json:"customerName"`
	CustomerEmail        string             `json:"customerEmail"`
	CustomerPhone        string             `json:"customerPhone,omitempty"`
	DeliveryAddress      addressPayload     `json:"deliveryAddress"`
	DeliveryInstructions string             `json:"deliveryInstructions,omitempty"`
	CreatedAt            string             `json:"createdAt"`
	UpdatedAt            string             `json:"updatedAt"`
	DeliveredAt          string             `json:"deliveredAt,omitempty"`
	Items                []orderItemPayload `json:"items"`
}

type orderStatusPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	TotalAmount   int64  `json:"totalAmount"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type callbackItemPayload struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

type callbackEnvelopePayload struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackItemPayload `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type statusUpdatePayload struct {
	Status string `json:"status"`
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func copyStrings(values []string) []string {
	copied := make([]string, len(values))
	copy(copied, values)
	return copied
}

func productToPayload(product catalog.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.PriceCents,
		CategoryID:  product.CategoryID,
		Image:       copyStrings(product.Images),
		InStock:     product.InStock,
		Stock:       product.Stock,
		Badge:       product.Badge,
		CreatedAt:   formatTimestamp(product.CreatedAt),
		UpdatedAt:   formatTimestamp(product.UpdatedAt),
	}
}

func cartItemsToPayload(items []cart.Item) []cartItemViewPayload {
	payload := make([]cartItemViewPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, cartItemViewPayload{
			ID:         item.ProductID,
			CartID:     item.LineItemID,
			Name:       item.Name,
			Price:      item.PriceCents,
			Image:      copyStrings(item.Images),
			Quantity:   item.Quantity,
			Stock:      item.Stock,
			CategoryID: item.CategoryID,
			UpdatedAt:  formatTimestamp(item.UpdatedAt),
		})
	}
	return payload
}

func lineItemToPayload(lineItem cart.LineItem) lineItemPayload {
	return lineItemPayload{
		ID:           lineItem.ID,
		UserID:       lineItem.UserID,
		ProductID:    lineItem.ProductID,
		ProductName:  lineItem.ProductName,
		ProductPrice: lineItem.ProductPriceCents,
		ProductImage: lineItem.ProductImage,
		Quantity:     lineItem.Quantity,
		CreatedAt:    formatTimestamp(lineItem.CreatedAt),
		UpdatedAt:    formatTimestamp(lineItem.UpdatedAt),
	}
}

func changesToPayload(changes cart.ChangeLog) changesPayload {
	payload := changesPayload{
		Removed: make([]removedItemPayload, 0, len(changes.Removed)),
		Updated: make([]adjustedItemPayload, 0, len(changes.Updated)),
	}
	for _, removed := range changes.Removed {
		payload.Removed = append(payload.Removed, removedItemPayload{
			ProductID: removed.ProductID,
			Name:      removed.Name,
			Reason:    removed.Reason,
		})
	}
	for _, adjusted := range changes.Updated {
		payload.Updated = append(payload.Updated, adjustedItemPayload{
			ProductID:   adjusted.ProductID,
			Name:        adjusted.Name,
			OldQuantity: adjusted.OldQuantity,
			NewQuantity: adjusted.NewQuantity,
			Reason:      adjusted.Reason,
		})
	}
	return payload
}

func (p checkoutRequestPayload) toCheckoutRequest() orders.CheckoutRequest {
	return orders.CheckoutRequest{
		Customer: orders.Customer{
			FirstName: p.CustomerInfo.FirstName,
			LastName:  p.CustomerInfo.LastName,
			Email:     p.CustomerInfo.Email,
			Phone:     p.CustomerInfo.Phone,
		},
		Address: orders.Address{
			Type:                 p.AddressInfo.Type,
			HostelName:           p.AddressInfo.HostelName,
			BlockName:            p.AddressInfo.BlockName,
			RoomNumber:           p.AddressInfo.RoomNumber,
			ApartmentName:        p.AddressInfo.ApartmentName,
			HouseNumber:          p.AddressInfo.HouseNumber,
			DeliveryInstructions: p.AddressInfo.DeliveryInstructions,
		},
		MpesaNumber:  p.PaymentInfo.MpesaNumber,
		AgreeToTerms: p.PaymentInfo.AgreeToTerms,
	}
}

func orderToPayload(order orders.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		Subtotal:          order.SubtotalCents,
		ShippingCost:      order.ShippingCents,
		TotalAmount:       order.TotalCents,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		PaymentMethod:     order.PaymentMethod,
		TransactionID:     order.TransactionID,
		CheckoutRequestID: order.CheckoutRequestID,
		CustomerName:      order.CustomerName,
		CustomerEmail:     order.CustomerEmail,
		CustomerPhone:     order.CustomerPhone,
		DeliveryAddress: addressPayload{
			Type:          order.AddressType,
			HostelName:    order.HostelName,
			BlockName:     order.BlockName,
			RoomNumber:    order.RoomNumber,
			ApartmentName: order.ApartmentName,
			HouseNumber:   order.HouseNumber,
		},
		DeliveryInstructions: order.DeliveryInstructions,
		CreatedAt:            formatTimestamp(order.CreatedAt),
		UpdatedAt:            formatTimestamp(order.UpdatedAt),
		Items:                make([]orderItemPayload, 0, len(order.Items)),
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTimestamp(*order.DeliveredAt)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Price:     item.ProductPriceCents,
			Quantity:  item.Quantity,
			Image:     item.ProductImage,
		})
	}
	return payload
}

func ordersToPayload(list []orders.Order) []orderPayload {
	payload := make([]orderPayload, 0, len(list))
	for _, order := range list {
		payload = append(payload, orderToPayload(order))
	}
	return payload
}

func (p callbackEnvelopePayload) receipt() string {
	if p.Body.StkCallback == nil {
		return ""
	}
	for _, item := range p.Body.StkCallback.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		if value, ok := item.Value.(string); ok {
			return value
		}
	}
	return ""
}
