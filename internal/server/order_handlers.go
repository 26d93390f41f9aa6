package server

import (
	"errors"
	"net/http"

	"github.com/campusduka/storefront/internal/orders"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleCheckout(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var request checkoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Missing required order data")
		return
	}

	order, err := h.orders.Checkout(c.Request.Context(), userID, request.toCheckoutRequest())
	var validationErr *orders.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_checkout",
			"message": "Please correct the highlighted fields",
			"fields":  validationErr.Fields,
		})
		return
	case errors.Is(err, orders.ErrEmptyCart):
		respondError(c, http.StatusBadRequest, "empty_cart", "Your cart is empty")
		return
	case errors.Is(err, orders.ErrPaymentFailed):
		h.logger.Warn("checkout payment failed", zap.String("user_id", userID.String()), zap.Error(err))
		respondError(c, http.StatusBadGateway, "payment_failed", "Payment could not be initiated")
		return
	case err != nil:
		h.respondInternal(c, "order_create_failed", "Failed to create order", err)
		return
	}

	h.publishCartChange(userID.String())
	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"order":   orderToPayload(order),
	})
}

func (h *httpHandler) handleListOrders(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		h.respondInternal(c, "orders_unavailable", "Failed to fetch orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": ordersToPayload(list)})
}

func (h *httpHandler) handleGetOrderStatus(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	order, err := h.orders.GetOrderStatus(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, orders.ErrOrderNotFound) {
		respondError(c, http.StatusNotFound, "order_not_found", "Order not found")
		return
	}
	if err != nil {
		h.respondInternal(c, "orders_unavailable", "Failed to fetch order status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderStatusPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: order.PaymentStatus,
		Status:        order.Status,
		TransactionID: order.TransactionID,
		TotalAmount:   order.TotalCents,
		CreatedAt:     formatTimestamp(order.CreatedAt),
		UpdatedAt:     formatTimestamp(order.UpdatedAt),
	}})
}

// handleMpesaCallback acknowledges every well-formed callback so the gateway
// stops retrying, even when no order matches.
func (h *httpHandler) handleMpesaCallback(c *gin.Context) {
	var envelope callbackEnvelopePayload
	if err := c.ShouldBindJSON(&envelope); err != nil || envelope.Body.StkCallback == nil {
		h.logger.Warn("invalid payment callback payload", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid_callback", "Invalid callback structure")
		return
	}
	callback := envelope.Body.StkCallback
	_, err := h.orders.ApplyPaymentResult(c.Request.Context(), orders.PaymentResult{
		CheckoutRequestID: callback.CheckoutRequestID,
		MerchantRequestID: callback.MerchantRequestID,
		ResultCode:        callback.ResultCode,
		ResultDesc:        callback.ResultDesc,
		Receipt:           envelope.receipt(),
	})
	if err != nil && !errors.Is(err, orders.ErrOrderNotFound) {
		h.logger.Error("payment callback processing failed",
			zap.String("checkout_request_id", callback.CheckoutRequestID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *httpHandler) handleListAllOrders(c *gin.Context) {
	list, err := h.orders.ListAllOrders(c.Request.Context())
	if err != nil {
		h.respondInternal(c, "orders_unavailable", "Failed to fetch orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": ordersToPayload(list)})
}

func (h *httpHandler) handleUpdateOrderStatus(c *gin.Context) {
	var request statusUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), request.Status)
	switch {
	case errors.Is(err, orders.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, "invalid_status", "Invalid status")
		return
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(c, http.StatusNotFound, "order_not_found", "Order not found")
		return
	case err != nil:
		h.respondInternal(c, "order_update_failed", "Failed to update order status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"order":   orderToPayload(order),
	})
}
