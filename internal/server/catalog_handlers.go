package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/campusduka/storefront/internal/catalog"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListProducts(c *gin.Context) {
	filter := catalog.ProductFilter{
		CategoryID:  strings.TrimSpace(c.Query("category")),
		Search:      strings.TrimSpace(c.Query("q")),
		InStockOnly: strings.EqualFold(c.Query("inStock"), "true"),
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.respondInternal(c, "catalog_unavailable", "Failed to fetch products", err)
		return
	}
	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, productToPayload(product))
	}
	c.JSON(http.StatusOK, gin.H{"products": payload})
}

func (h *httpHandler) handleGetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		respondError(c, http.StatusNotFound, "product_not_found", "Product not found")
		return
	}
	if err != nil {
		h.respondInternal(c, "catalog_unavailable", "Failed to fetch product", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": productToPayload(product)})
}

func (h *httpHandler) handleRelatedProducts(c *gin.Context) {
	limit := 0
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", "limit must be a number")
			return
		}
		limit = parsed
	}
	products, err := h.catalog.RelatedProducts(c.Request.Context(), catalog.RelatedFilter{
		CategoryName: c.Query("category"),
		ExcludeID:    c.Query("exclude"),
		Limit:        limit,
	})
	if errors.Is(err, catalog.ErrInvalidCategory) {
		respondError(c, http.StatusBadRequest, "invalid_request", "Category is required")
		return
	}
	if err != nil {
		h.respondInternal(c, "catalog_unavailable", "Failed to fetch related products", err)
		return
	}
	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, productToPayload(product))
	}
	c.JSON(http.StatusOK, gin.H{"products": payload})
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondInternal(c, "catalog_unavailable", "Failed to fetch categories", err)
		return
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, categoryPayload{ID: category.ID, Name: category.Name})
	}
	c.JSON(http.StatusOK, gin.H{"categories": payload})
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	var request createCategoryPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), request.Name)
	switch {
	case errors.Is(err, catalog.ErrInvalidCategory):
		respondError(c, http.StatusBadRequest, "invalid_category", "Category name is required")
		return
	case errors.Is(err, catalog.ErrCategoryExists):
		respondError(c, http.StatusBadRequest, "category_exists", "Category already exists")
		return
	case err != nil:
		h.respondInternal(c, "category_create_failed", "Failed to create category", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Category created successfully",
		"category": categoryPayload{ID: category.ID, Name: category.Name},
	})
}

func (h *httpHandler) handleCheckProduct(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	product, exists, err := h.catalog.FindProduct(c.Request.Context(), catalog.ProductLookup{
		Name:         name,
		CategoryID:   c.Query("categoryId"),
		CategoryName: c.Query("categoryName"),
	})
	switch {
	case errors.Is(err, catalog.ErrInvalidProduct):
		respondError(c, http.StatusBadRequest, "invalid_request", "Product name is required")
		return
	case errors.Is(err, catalog.ErrInvalidCategory):
		respondError(c, http.StatusBadRequest, "invalid_request", "Category ID or name is required")
		return
	case err != nil:
		h.respondInternal(c, "catalog_unavailable", "Failed to check product existence", err)
		return
	}
	if !exists {
		c.JSON(http.StatusOK, gin.H{
			"exists":  false,
			"message": fmt.Sprintf("Product %q is available in this category", name),
			"product": nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exists":  true,
		"message": fmt.Sprintf("Product %q already exists in this category", name),
		"product": productToPayload(product),
	})
}

func (h *httpHandler) handleInventory(c *gin.Context) {
	items, err := h.catalog.Inventory(c.Request.Context(), catalog.InventoryFilter{
		CategoryName: c.Query("category"),
		Search:       c.Query("search"),
	})
	if err != nil {
		h.respondInternal(c, "catalog_unavailable", "Failed to fetch inventory", err)
		return
	}
	payload := make([]inventoryItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, inventoryItemPayload{
			productPayload: productToPayload(item.Product),
			CategoryName:   item.CategoryName,
			Status:         item.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"products": payload, "total": len(payload)})
}

func (h *httpHandler) handleCreateProduct(c *gin.Context) {
	var request createProductPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), catalog.ProductInput{
		Name:        request.Name,
		Description: request.Description,
		PriceCents:  request.Price,
		CategoryID:  request.CategoryID,
		Images:      request.Image,
		Stock:       request.Stock,
		Badge:       request.Badge,
	})
	switch {
	case errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, catalog.ErrInvalidStock):
		respondError(c, http.StatusBadRequest, "invalid_product", err.Error())
		return
	case errors.Is(err, catalog.ErrCategoryNotFound):
		respondError(c, http.StatusBadRequest, "category_not_found", "Category not found")
		return
	case err != nil:
		h.respondInternal(c, "product_create_failed", "Failed to create product", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": productToPayload(product)})
}

func (h *httpHandler) handleSetStock(c *gin.Context) {
	var request setStockPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Stock == nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "stock is required")
		return
	}
	product, err := h.catalog.SetStock(c.Request.Context(), c.Param("id"), *request.Stock, request.InStock)
	switch {
	case errors.Is(err, catalog.ErrInvalidStock):
		respondError(c, http.StatusBadRequest, "invalid_stock", "Stock must not be negative")
		return
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(c, http.StatusNotFound, "product_not_found", "Product not found")
		return
	case err != nil:
		h.respondInternal(c, "stock_update_failed", "Failed to update stock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": productToPayload(product)})
}
