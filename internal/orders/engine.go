package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/checkout/reservation"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const orderNumberSavepoint = "order_number"

// draft is an order being assembled inside the checkout transaction.
type draft struct {
	buyerID *uuid.UUID
	guest   *types.GuestInfo
	address types.ShippingAddress
	notes   *string
	actor   Actor
	kind    string
}

// CreateOrder converts the buyer's cart into an order. The cart row lock, every
// product lock, the stock decrements, the order rows, the outbox event and the
// cart clear all commit together or not at all.
func (s *service) CreateOrder(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*OrderDTO, error) {
	if err := validateAddress(input.ShippingAddress); err != nil {
		return nil, err
	}

	d := draft{
		buyerID: &buyerID,
		address: input.ShippingAddress,
		notes:   trimNotes(input.Notes),
		actor:   BuyerActor(buyerID),
		kind:    "buyer",
	}

	var result *models.Order
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		buyerCart, err := cartRepo.FindByUserForUpdate(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		items, err := cartRepo.ListItems(ctx, buyerCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		requests := make([]reservation.InventoryReservationRequest, 0, len(items))
		for _, item := range items {
			requests = append(requests, reservation.InventoryReservationRequest{ProductID: item.ProductID, Qty: item.Quantity})
		}

		order, err := s.place(ctx, tx, d, requests)
		if err != nil {
			return err
		}
		if err := cart.ClearWithTx(ctx, s.cartRepo, tx, buyerCart.ID); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.OrderCreated(d.kind)
	return NewOrderDTO(result), nil
}

// CreateGuestOrder places an order for an explicit item list without an account.
func (s *service) CreateGuestOrder(ctx context.Context, input CreateGuestOrderInput) (*OrderDTO, error) {
	if input.GuestInfo == nil || strings.TrimSpace(input.GuestInfo.Email) == "" ||
		strings.TrimSpace(input.GuestInfo.Name) == "" || strings.TrimSpace(input.GuestInfo.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest name, email and phone are required")
	}
	if err := validateAddress(input.ShippingAddress); err != nil {
		return nil, err
	}
	lines, err := checkout.NormalizeLines(input.Items)
	if err != nil {
		return nil, err
	}

	guest := *input.GuestInfo
	guest.Email = strings.TrimSpace(guest.Email)
	d := draft{
		guest:   &guest,
		address: input.ShippingAddress,
		notes:   trimNotes(input.Notes),
		actor:   GuestActor(guest.Email),
		kind:    "guest",
	}

	requests := make([]reservation.InventoryReservationRequest, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, reservation.InventoryReservationRequest{ProductID: line.ProductID, Qty: line.Quantity})
	}

	var result *models.Order
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.place(ctx, tx, d, requests)
		if err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.OrderCreated(d.kind)
	return NewOrderDTO(result), nil
}

// place reserves stock, snapshots items at the locked prices and persists the
// order with its first history entry and order.created event.
func (s *service) place(ctx context.Context, tx *gorm.DB, d draft, requests []reservation.InventoryReservationRequest) (*models.Order, error) {
	reserved, err := reservation.ReserveInventory(ctx, tx, requests)
	if err != nil {
		return nil, err
	}

	sellerIDs := make([]uuid.UUID, 0, len(reserved))
	for _, res := range reserved {
		sellerIDs = append(sellerIDs, res.Product.SellerID)
	}
	sellerRows, err := s.sellerRepo.WithTx(tx).FindByIDs(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sellers")
	}

	itemsTotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(reserved))
	for _, res := range reserved {
		seller, ok := sellerRows[res.Product.SellerID]
		if !ok || !seller.CanSell() {
			return nil, pkgerrors.Unavailable(res.Product.Name)
		}
		split := checkout.LineSplit(res.Product.Price, res.Qty, seller.CommissionRate)
		items = append(items, models.OrderItem{
			ProductID:        res.Product.ID,
			SellerID:         res.Product.SellerID,
			Name:             res.Product.Name,
			Price:            res.Product.Price,
			Image:            res.Product.Image,
			Quantity:         res.Qty,
			ItemTotal:        split.ItemTotal,
			CommissionRate:   seller.CommissionRate,
			CommissionAmount: split.CommissionAmount,
			SellerEarnings:   split.SellerEarnings,
		})
		itemsTotal = itemsTotal.Add(split.ItemTotal)
	}

	shipping, err := s.shipping.Shipping(ctx, itemsTotal, len(items))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate shipping")
	}
	tax, err := s.tax.Tax(ctx, itemsTotal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate tax")
	}

	order := &models.Order{
		BuyerID:         d.buyerID,
		GuestInfo:       d.guest,
		ShippingAddress: d.address,
		Notes:           d.notes,
		ItemsTotal:      itemsTotal,
		ShippingCost:    shipping,
		TaxAmount:       tax,
		TotalAmount:     itemsTotal.Add(shipping).Add(tax),
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          enums.OrderStatusCreated,
	}
	if err := s.insertWithNumber(ctx, tx, order); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
	}
	entry := &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    enums.OrderStatusCreated,
		Note:      "Order placed",
		ActorRole: d.actor.Role,
		ActorID:   d.actor.UserID,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append status history")
	}
	order.Items = items
	order.StatusHistory = []models.OrderStatusHistory{*entry}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         d.actor.outboxRef(),
		Data: map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"guest":        d.guest != nil,
			"total_amount": order.TotalAmount,
			"item_count":   len(items),
			"seller_ids":   distinctSellers(items),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
	}
	return order, nil
}

// insertWithNumber retries the insert under a savepoint when the generated order
// number collides with an existing one.
func (s *service) insertWithNumber(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	repo := s.repo.WithTx(tx)
	for attempt := 1; ; attempt++ {
		number, err := s.numbers(s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number
		if err := tx.SavePoint(orderNumberSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create savepoint")
		}
		err = repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "order_number") || attempt >= maxOrderNumberAttempts {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := tx.RollbackTo(orderNumberSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rollback savepoint")
		}
	}
}

func validateAddress(address types.ShippingAddress) error {
	if missing := address.MissingFields(); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").WithDetails(map[string]any{
			"missing_fields": missing,
		})
	}
	return nil
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func distinctSellers(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if !seen[item.SellerID] {
			seen[item.SellerID] = true
			out = append(out, item.SellerID)
		}
	}
	return out
}
