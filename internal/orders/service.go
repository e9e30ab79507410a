package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const (
	expiryBatchSize        = 100
	maxOrderNumberAttempts = 5
	expiryNote             = "Payment not completed before the order expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order transaction engine plus order reads.
type Service interface {
	CreateOrder(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*OrderDTO, error)
	CreateGuestOrder(ctx context.Context, input CreateGuestOrderInput) (*OrderDTO, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, note string) (*OrderDTO, error)
	UpdateStatusAdmin(ctx context.Context, adminID, orderID uuid.UUID, status enums.OrderStatus, note string) (*OrderDTO, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDTO, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	TrackGuestOrder(ctx context.Context, orderNumber, email string) (*OrderDTO, error)
	ExpireStaleOrders(ctx context.Context, cutoff time.Time) (int, error)
}

// CreateOrderInput is the buyer checkout payload.
type CreateOrderInput struct {
	ShippingAddress types.ShippingAddress
	Notes           *string
}

// CreateGuestOrderInput is the guest checkout payload.
type CreateGuestOrderInput struct {
	Items           []checkout.LineRequest
	ShippingAddress types.ShippingAddress
	GuestInfo       *types.GuestInfo
	Notes           *string
}

type ServiceParams struct {
	Repo         Repository
	CartRepo     cart.CartRepository
	SellerRepo   *sellers.Repository
	Tx           txRunner
	Outbox       outbox.Emitter
	Transitioner *Transitioner
	Shipping     checkout.ShippingCalculator
	Tax          checkout.TaxCalculator
	Numbers      NumberGenerator
	Metrics      *metrics.OrderMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo        Repository
	cartRepo    cart.CartRepository
	sellerRepo  *sellers.Repository
	tx          txRunner
	outbox      outbox.Emitter
	transitions *Transitioner
	shipping    checkout.ShippingCalculator
	tax         checkout.TaxCalculator
	numbers     NumberGenerator
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the order service. Shipping and tax default to zero.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.SellerRepo == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shipping == nil {
		params.Shipping = checkout.FlatShipping{}
	}
	if params.Tax == nil {
		params.Tax = checkout.PercentTax{}
	}
	if params.Numbers == nil {
		params.Numbers = RandomOrderNumber
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		cartRepo:    params.CartRepo,
		sellerRepo:  params.SellerRepo,
		tx:          params.Tx,
		outbox:      params.Outbox,
		transitions: params.Transitioner,
		shipping:    params.Shipping,
		tax:         params.Tax,
		numbers:     params.Numbers,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         params.Now,
	}, nil
}

// CancelOrder cancels on behalf of the buyer (or an admin acting for them).
// Stock for every item is restored in the same transaction as the status change.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, note string) (*OrderDTO, error) {
	var result *models.Order
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := CheckAccess(order, actor); err != nil {
			return err
		}
		if !order.Status.IsCancellable() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot be cancelled once %s", order.Status)
		}
		if strings.TrimSpace(note) == "" {
			note = "Order cancelled"
		}
		// cancellation follows buyer rules whoever requests it
		if err := s.transitions.Apply(ctx, tx, order, TransitionInput{
			To:    enums.OrderStatusCancelled,
			Actor: actor,
			Rules: enums.ActorBuyer,
			Note:  note,
		}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewOrderDTO(result), nil
}

func (s *service) UpdateStatusAdmin(ctx context.Context, adminID, orderID uuid.UUID, status enums.OrderStatus, note string) (*OrderDTO, error) {
	var result *models.Order
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := s.transitions.Apply(ctx, tx, order, TransitionInput{
			To:    status,
			Actor: AdminActor(adminID),
			Note:  note,
		}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewOrderDTO(result), nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if err := CheckAccess(order, actor); err != nil {
		return nil, err
	}
	return NewOrderDTO(order), nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	params = params.Normalize()
	rows, total, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list buyer orders")
	}
	return newOrderList(rows, params, total), nil
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return newOrderList(rows, params, total), nil
}

// TrackGuestOrder answers not-found for both unknown numbers and email mismatches.
func (s *service) TrackGuestOrder(ctx context.Context, orderNumber, email string) (*OrderDTO, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" || strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number and email are required")
	}
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !order.GuestInfo.Matches(email) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDTO(order), nil
}

// ExpireStaleOrders cancels created orders whose payment never completed before
// cutoff. Each order commits on its own; failures are collected and returned.
func (s *service) ExpireStaleOrders(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.repo.FindStaleCreated(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find stale orders")
	}

	expired := 0
	var errs error
	for _, id := range ids {
		changed := false
		err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
			changed = false
			order, err := s.repo.WithTx(tx).FindForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if order.Status != enums.OrderStatusCreated || order.PaymentStatus == enums.PaymentStatusPaid {
				return nil
			}
			if err := s.transitions.Apply(ctx, tx, order, TransitionInput{
				To:    enums.OrderStatusCancelled,
				Actor: SystemActor(),
				Note:  expiryNote,
				Event: enums.EventOrderExpired,
			}); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err == nil && changed {
			expired++
		}
		if err != nil {
			logCtx := s.logg.WithOrderID(ctx, id.String())
			s.logg.Error(logCtx, "failed to expire order", err)
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
		}
	}
	return expired, errs
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
