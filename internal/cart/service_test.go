package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/campusduka/storefront/internal/serviceerr"
)

func TestAddTwiceIncrementsSingleRow(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-r")
	productID := fixture.mustProduct(t, "rice", 25000, 10)

	if _, err := fixture.service.Add(context.Background(), userID, productID, 4); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	stored, err := fixture.service.Add(context.Background(), userID, productID, 4)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if stored.Quantity != 8 {
		t.Fatalf("expected quantity 8, got %d", stored.Quantity)
	}
	if count := fixture.mustRowCount(t, userID, productID); count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
	if stored.ProductName != "rice" || stored.ProductPriceCents != 25000 || stored.ProductImage == "" {
		t.Fatalf("expected product snapshot on the row, got %+v", stored)
	}
}

func TestAddRejectsQuantityAboveStock(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-stock")
	productID := fixture.mustProduct(t, "beans", 12000, 5)

	_, err := fixture.service.Add(context.Background(), userID, productID, 6)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 5 {
		t.Fatalf("expected insufficient stock with 5 available, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected error to match ErrInsufficientStock")
	}
	if count := fixture.mustRowCount(t, userID, productID); count != 0 {
		t.Fatalf("expected no row after rejected add, got %d", count)
	}

	if _, err := fixture.service.Add(context.Background(), userID, productID, 3); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := fixture.service.Add(context.Background(), userID, productID, 3); !errors.As(err, &stockErr) {
		t.Fatalf("expected increment beyond stock to fail, got %v", err)
	}
	items, err := fixture.service.List(context.Background(), userID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("expected persisted quantity to stay at 3, got %+v", items)
	}
}

func TestAddValidatesInput(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-invalid")
	productID := fixture.mustProduct(t, "salt", 3000, 5)

	if _, err := fixture.service.Add(context.Background(), userID, productID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := fixture.service.Add(context.Background(), userID, mustProductID(t, "ghost"), 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestUpdateQuantityAboveStockFails(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-s")
	productID := fixture.mustProduct(t, "soap", 8000, 5)
	if _, err := fixture.service.Add(context.Background(), userID, productID, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	_, err := fixture.service.UpdateQuantity(context.Background(), userID, productID, 7)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 5 {
		t.Fatalf("expected insufficient stock with 5 available, got %v", err)
	}

	updated, err := fixture.service.UpdateQuantity(context.Background(), userID, productID, 5)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated == nil || updated.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %+v", updated)
	}
}

func TestUpdateQuantityNonPositiveRemoves(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-zero")
	productID := fixture.mustProduct(t, "milk", 6000, 5)
	if _, err := fixture.service.Add(context.Background(), userID, productID, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	for _, quantity := range []int{0, -3} {
		updated, err := fixture.service.UpdateQuantity(context.Background(), userID, productID, quantity)
		if err != nil {
			t.Fatalf("update to %d failed: %v", quantity, err)
		}
		if updated != nil {
			t.Fatalf("expected no line item after removal, got %+v", updated)
		}
		if count := fixture.mustRowCount(t, userID, productID); count != 0 {
			t.Fatalf("expected row to be deleted, got %d", count)
		}
	}
}

func TestUpdateQuantityMissingRow(t *testing.T) {
	fixture := mustFixture(t)
	userID := mustUserID(t, "user-missing")
	productID := fixture.mustProduct(t, "tea", 4000, 5)
	if _, err := fixture.service.UpdateQuantity(context.Background(), userID, productID, 1); !errors.Is(err, ErrLineItemNotFound) {
		t.Fatalf("expected line item not found, got %v", err)
	}
}

func TestRemoveIsIdempotentAndClearIsScopedToUser(t *testing.T) {
	fixture := mustFixture(t)
	owner := mustUserID(t, "user-owner")
	other := mustUserID(t, "user-other")
	pen := fixture.mustProduct(t, "pen", 1500, 20)
	book := fixture.mustProduct(t, "book", 30000, 20)

	for _, userID := range []UserID{owner, other} {
		if _, err := fixture.service.Add(context.Background(), userID, pen, 1); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := fixture.service.Add(context.Background(), userID, book, 1); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := fixture.service.Remove(context.Background(), owner, pen); err != nil {
			t.Fatalf("remove attempt %d failed: %v", attempt, err)
		}
	}
	if err := fixture.service.Clear(context.Background(), owner); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	ownerItems, err := fixture.service.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ownerItems) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(ownerItems))
	}
	otherItems, err := fixture.service.List(context.Background(), other)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(otherItems) != 2 {
		t.Fatalf("expected other user's cart to be untouched, got %d items", len(otherItems))
	}
	if SubtotalCents(otherItems) != 31500 {
		t.Fatalf("unexpected subtotal %d", SubtotalCents(otherItems))
	}
}

func TestServiceWithoutDatabaseReportsCode(t *testing.T) {
	service := &Service{}
	_, err := service.List(context.Background(), UserID("user-1"))
	code, ok := serviceerr.CodeOf(err)
	if !ok || code != "cart.list.missing_database" {
		t.Fatalf("unexpected error code %q (%v)", code, err)
	}
}
