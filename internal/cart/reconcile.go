package cart

import (
	"context"
	"time"

	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcileAction int

const (
	reconcileKeep reconcileAction = iota
	reconcileClamp
	reconcileRemove
)

type reconcileDecision struct {
	action     reconcileAction
	corrected  LineItem
	removal    RemovedItem
	adjustment AdjustedItem
}

// decideLineItem compares one persisted row with the live product. A nil
// product means the product row no longer exists. The decision only ever
// deletes the row or lowers its quantity.
func decideLineItem(lineItem LineItem, product *catalog.Product, appliedAt time.Time) reconcileDecision {
	if product == nil {
		return reconcileDecision{
			action: reconcileRemove,
			removal: RemovedItem{
				ProductID: lineItem.ProductID,
				Name:      lineItem.ProductName,
				Reason:    ReasonProductUnavailable,
			},
		}
	}
	if !product.Available() {
		return reconcileDecision{
			action: reconcileRemove,
			removal: RemovedItem{
				ProductID: product.ID,
				Name:      product.Name,
				Reason:    ReasonOutOfStock,
			},
		}
	}
	if lineItem.Quantity > product.Stock {
		corrected := lineItem
		corrected.Quantity = product.Stock
		corrected.UpdatedAt = appliedAt
		return reconcileDecision{
			action:    reconcileClamp,
			corrected: corrected,
			adjustment: AdjustedItem{
				ProductID:   product.ID,
				Name:        product.Name,
				OldQuantity: lineItem.Quantity,
				NewQuantity: product.Stock,
				Reason:      ReasonLimitedStockReduced,
			},
		}
	}
	return reconcileDecision{action: reconcileKeep, corrected: lineItem}
}

// Reconcile corrects the user's persisted cart against live stock: unavailable
// products are removed, quantities above stock are clamped, and everything else
// is left untouched. Corrections are applied in a single transaction. A failed
// read returns an error without attempting any correction.
func (s *Service) Reconcile(ctx context.Context, userID UserID) (Reconciliation, error) {
	if s.db == nil {
		return Reconciliation{}, serviceerr.New(opReconcile, "missing_database", errMissingDatabase)
	}
	lineItems, err := s.loadLineItems(ctx, userID)
	if err != nil {
		s.logError(opReconcile, reasonQueryFailed, err, zap.String("user_id", userID.String()))
		return Reconciliation{}, serviceerr.New(opReconcile, reasonQueryFailed, err)
	}
	products, err := s.catalog.ProductsByID(ctx, productIDsOf(lineItems))
	if err != nil {
		s.logError(opReconcile, "product_lookup_failed", err, zap.String("user_id", userID.String()))
		return Reconciliation{}, serviceerr.New(opReconcile, "product_lookup_failed", err)
	}

	appliedAt := s.clock().UTC()
	decisions := make([]reconcileDecision, 0, len(lineItems))
	for _, lineItem := range lineItems {
		var productPtr *catalog.Product
		if product, ok := products[lineItem.ProductID]; ok {
			productPtr = &product
		}
		decisions = append(decisions, decideLineItem(lineItem, productPtr, appliedAt))
	}

	if err := s.applyDecisions(ctx, lineItems, decisions); err != nil {
		return Reconciliation{}, err
	}

	result := Reconciliation{
		Items: make([]Item, 0, len(lineItems)),
		Changes: ChangeLog{
			Removed: []RemovedItem{},
			Updated: []AdjustedItem{},
		},
	}
	for _, decision := range decisions {
		switch decision.action {
		case reconcileRemove:
			result.Changes.Removed = append(result.Changes.Removed, decision.removal)
		case reconcileClamp:
			result.Changes.Updated = append(result.Changes.Updated, decision.adjustment)
			result.Items = append(result.Items, viewOf(decision.corrected, products[decision.corrected.ProductID]))
		default:
			result.Items = append(result.Items, viewOf(decision.corrected, products[decision.corrected.ProductID]))
		}
	}

	if !result.Changes.Empty() {
		s.logger.Info("cart reconciled",
			zap.String("user_id", userID.String()),
			zap.Int("removed", len(result.Changes.Removed)),
			zap.Int("reduced", len(result.Changes.Updated)))
	}
	return result, nil
}

func (s *Service) applyDecisions(ctx context.Context, lineItems []LineItem, decisions []reconcileDecision) error {
	dirty := false
	for _, decision := range decisions {
		if decision.action != reconcileKeep {
			dirty = true
			break
		}
	}
	if !dirty {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index, decision := range decisions {
			lineItem := lineItems[index]
			switch decision.action {
			case reconcileRemove:
				if err := tx.Where("id = ?", lineItem.ID).Delete(&LineItem{}).Error; err != nil {
					s.logError(opReconcile, "delete_failed", err,
						zap.String("user_id", lineItem.UserID),
						zap.String("product_id", lineItem.ProductID))
					return serviceerr.New(opReconcile, "delete_failed", err)
				}
			case reconcileClamp:
				err := tx.Model(&LineItem{}).
					Where("id = ?", lineItem.ID).
					Updates(map[string]interface{}{
						"quantity":   decision.corrected.Quantity,
						"updated_at": decision.corrected.UpdatedAt,
					}).Error
				if err != nil {
					s.logError(opReconcile, "update_failed", err,
						zap.String("user_id", lineItem.UserID),
						zap.String("product_id", lineItem.ProductID))
					return serviceerr.New(opReconcile, "update_failed", err)
				}
			}
		}
		return nil
	})
}
