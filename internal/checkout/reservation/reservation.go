// Package reservation takes stock for checkout lines inside the caller's transaction.
package reservation

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// InventoryReservationRequest asks for Qty units of a product.
type InventoryReservationRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// InventoryReservationResult carries the product row as read under lock, so the
// caller prices the line from the same snapshot the stock check used.
type InventoryReservationResult struct {
	Product *models.Product
	Qty     int
}

// ReserveInventory locks every requested product, verifies it is purchasable and
// in stock, then decrements stock. Rows are locked in id order so concurrent
// checkouts over overlapping products cannot deadlock. Any failure returns an
// error and the caller must roll the transaction back.
func ReserveInventory(ctx context.Context, tx *gorm.DB, requests []InventoryReservationRequest) ([]InventoryReservationResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	repo := product.NewRepository(tx)

	order := make([]int, len(requests))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bytes.Compare(requests[order[a]].ProductID[:], requests[order[b]].ProductID[:]) < 0
	})

	results := make([]InventoryReservationResult, len(requests))
	for _, idx := range order {
		req := requests[idx]
		if req.Qty < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}

		locked, err := repo.FindForUpdate(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "Product %s is no longer available", req.ProductID)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}
		if !locked.Purchasable() {
			return nil, pkgerrors.Unavailable(locked.Name)
		}
		if locked.Stock < req.Qty {
			return nil, pkgerrors.OutOfStock(locked.Name, locked.Stock)
		}
		if err := repo.DecrementStock(ctx, locked.ID, req.Qty); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return nil, pkgerrors.OutOfStock(locked.Name, locked.Stock)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		results[idx] = InventoryReservationResult{Product: locked, Qty: req.Qty}
	}
	return results, nil
}

// ReleaseInventory returns the quantities of the given order items to stock.
func ReleaseInventory(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := product.NewRepository(tx)
	for _, item := range items {
		if err := repo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
		}
	}
	return nil
}
