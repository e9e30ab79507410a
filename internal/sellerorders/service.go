package sellerorders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service projects orders onto a single seller and lets the seller fulfil them.
type Service interface {
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*SellerOrderList, error)
	GetSellerOrderByID(ctx context.Context, sellerID, orderID uuid.UUID) (*SellerOrderDTO, error)
	UpdateOrderStatusSeller(ctx context.Context, seller SellerRef, orderID uuid.UUID, status enums.OrderStatus, note string) (*SellerOrderDTO, error)
}

// SellerRef identifies the approved seller and the user acting for it.
type SellerRef struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

type ServiceParams struct {
	Repo         *Repository
	Orders       orders.Repository
	Tx           txRunner
	Transitioner *orders.Transitioner
}

type service struct {
	repo        *Repository
	orders      orders.Repository
	tx          txRunner
	transitions *orders.Transitioner
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("seller orders repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	return &service{
		repo:        params.Repo,
		orders:      params.Orders,
		tx:          params.Tx,
		transitions: params.Transitioner,
	}, nil
}

func (s *service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*SellerOrderList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, sellerID, status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list seller orders")
	}
	out := make([]SellerOrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewSellerOrderDTO(&rows[i]))
	}
	return &SellerOrderList{Orders: out, Pagination: pagination.NewMeta(params, total)}, nil
}

func (s *service) GetSellerOrderByID(ctx context.Context, sellerID, orderID uuid.UUID) (*SellerOrderDTO, error) {
	order, err := s.repo.Find(ctx, sellerID, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	dto := NewSellerOrderDTO(order)
	return &dto, nil
}

// UpdateOrderStatusSeller answers not-found for orders without the seller's
// items before any transition rule is consulted.
func (s *service) UpdateOrderStatusSeller(ctx context.Context, seller SellerRef, orderID uuid.UUID, status enums.OrderStatus, note string) (*SellerOrderDTO, error) {
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		owns, err := s.repo.WithTx(tx).HasItems(ctx, seller.ID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order ownership")
		}
		if !owns {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order, err := s.orders.WithTx(tx).FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		return s.transitions.Apply(ctx, tx, order, orders.TransitionInput{
			To:    status,
			Actor: orders.SellerActor(seller.UserID),
			Note:  note,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetSellerOrderByID(ctx, seller.ID, orderID)
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
