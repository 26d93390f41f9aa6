package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/campusduka/storefront/internal/cart"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleGetCart(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	items, err := h.cart.List(c.Request.Context(), userID)
	if err != nil {
		h.respondInternal(c, "cart_unavailable", "Failed to fetch cart", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": cartItemsToPayload(items)})
}

func (h *httpHandler) handleAddToCart(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	productID, quantity, ok := bindCartMutation(c, 1)
	if !ok {
		return
	}

	lineItem, err := h.cart.Add(c.Request.Context(), userID, productID, quantity)
	if err != nil {
		h.respondCartError(c, "Failed to add to cart", err)
		return
	}
	h.publishCartChange(userID.String(), productID.String())
	message := "Item added to cart successfully"
	if lineItem.Quantity > quantity {
		message = "Cart updated successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  message,
		"cartItem": lineItemToPayload(lineItem),
	})
}

func (h *httpHandler) handleUpdateCart(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	productID, quantity, ok := bindCartMutation(c, -1)
	if !ok {
		return
	}

	lineItem, err := h.cart.UpdateQuantity(c.Request.Context(), userID, productID, quantity)
	if err != nil {
		h.respondCartError(c, "Failed to update cart", err)
		return
	}
	h.publishCartChange(userID.String(), productID.String())
	if lineItem == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Cart updated successfully",
		"cartItem": lineItemToPayload(*lineItem),
	})
}

func (h *httpHandler) handleDeleteCart(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	rawProductID := strings.TrimSpace(c.Query("productId"))
	if rawProductID == "" {
		if err := h.cart.Clear(c.Request.Context(), userID); err != nil {
			h.respondInternal(c, "cart_clear_failed", "Failed to clear cart", err)
			return
		}
		h.publishCartChange(userID.String())
		c.JSON(http.StatusOK, gin.H{"message": "Cart cleared successfully"})
		return
	}

	productID, err := cart.NewProductID(rawProductID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_product_id", "Invalid product id")
		return
	}
	if err := h.cart.Remove(c.Request.Context(), userID, productID); err != nil {
		h.respondInternal(c, "cart_remove_failed", "Failed to remove from cart", err)
		return
	}
	h.publishCartChange(userID.String(), productID.String())
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *httpHandler) handleSyncCart(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	result, err := h.cart.Reconcile(c.Request.Context(), userID)
	if err != nil {
		h.respondInternal(c, "cart_sync_failed", "Failed to sync cart", err)
		return
	}
	if !result.Changes.Empty() {
		h.publishCartChange(userID.String(), result.Changes.ProductIDs()...)
	}
	c.JSON(http.StatusOK, syncResponsePayload{
		Items:   cartItemsToPayload(result.Items),
		Changes: changesToPayload(result.Changes),
	})
}

// bindCartMutation reads {productId, quantity}. A missing quantity takes the
// fallback; a negative fallback marks the quantity as required.
func bindCartMutation(c *gin.Context, fallbackQuantity int) (cart.ProductID, int, bool) {
	var request cartMutationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return "", 0, false
	}
	productID, err := cart.NewProductID(request.ProductID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return "", 0, false
	}
	quantity := fallbackQuantity
	if request.Quantity != nil {
		quantity = *request.Quantity
	} else if fallbackQuantity < 0 {
		respondError(c, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return "", 0, false
	}
	return productID, quantity, true
}

func (h *httpHandler) respondCartError(c *gin.Context, message string, err error) {
	var stockErr *cart.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		h.logger.Debug("cart mutation rejected",
			zap.String("product_id", stockErr.ProductID),
			zap.Int("available", stockErr.Available))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":          "insufficient_stock",
			"message":        "Insufficient stock",
			"availableStock": stockErr.Available,
		})
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(c, http.StatusBadRequest, "invalid_quantity", "Quantity must be positive")
	case errors.Is(err, cart.ErrProductNotFound):
		respondError(c, http.StatusNotFound, "product_not_found", "Product not found")
	case errors.Is(err, cart.ErrLineItemNotFound):
		respondError(c, http.StatusNotFound, "cart_item_not_found", "Item is not in the cart")
	default:
		h.respondInternal(c, "cart_update_failed", message, err)
	}
}
