package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

const (
	opCreateIntent = "create_intent"
	opVerify       = "verify"
	opRetry        = "retry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service settles order payments against the configured gateway.
type Service interface {
	CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*IntentDTO, error)
	VerifyPayment(ctx context.Context, input VerifyInput, actor orders.Actor) (*orders.OrderDTO, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	RetryPayment(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*IntentDTO, error)
}

type ServiceParams struct {
	Repo         orders.Repository
	Tx           txRunner
	Gateway      Gateway
	Transitioner *orders.Transitioner
	Outbox       outbox.Emitter
	// Guard is optional; without it webhook redeliveries rely on order state checks.
	Guard   *EventGuard
	Config  config.PaymentsConfig
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo        orders.Repository
	tx          txRunner
	gateway     Gateway
	transitions *orders.Transitioner
	outbox      outbox.Emitter
	guard       *EventGuard
	cfg         config.PaymentsConfig
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.Config.KeySecret) == "" {
		return nil, fmt.Errorf("payment key secret required")
	}
	if strings.TrimSpace(params.Config.Currency) == "" {
		params.Config.Currency = "USD"
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		gateway:     params.Gateway,
		transitions: params.Transitioner,
		outbox:      params.Outbox,
		guard:       params.Guard,
		cfg:         params.Config,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         params.Now,
	}, nil
}

// CreatePaymentIntent returns the stored intent when one exists, otherwise opens
// one with the gateway. The first intent persisted under the row lock wins.
func (s *service) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*IntentDTO, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.loadPayable(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.GatewayOrderID != nil {
		s.metrics.Payment(opCreateIntent, "reused")
		return s.intentDTO(order), nil
	}

	attempt := order.PaymentAttempts
	if attempt < 1 {
		attempt = 1
	}
	intent, err := s.openIntent(ctx, order, attempt, opCreateIntent)
	if err != nil {
		return nil, err
	}

	var stored *models.Order
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := ensurePayable(locked); err != nil {
			return err
		}
		if locked.GatewayOrderID == nil {
			updates := map[string]any{
				"gateway_order_id": &intent.ID,
				"payment_attempts": attempt,
				"updated_at":       s.now(),
			}
			if err := repo.UpdateFields(ctx, locked.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment intent")
			}
			locked.GatewayOrderID = &intent.ID
			locked.PaymentAttempts = attempt
		}
		stored = locked
		return nil
	})
	if err != nil {
		s.metrics.Payment(opCreateIntent, "error")
		return nil, err
	}
	s.metrics.Payment(opCreateIntent, "success")
	return s.intentDTO(stored), nil
}

// VerifyPayment checks the signature the client relays after paying. A mismatch
// is persisted as a failed payment before the error is returned.
func (s *service) VerifyPayment(ctx context.Context, input VerifyInput, actor orders.Actor) (*orders.OrderDTO, error) {
	input.GatewayOrderID = strings.TrimSpace(input.GatewayOrderID)
	input.GatewayPaymentID = strings.TrimSpace(input.GatewayPaymentID)
	input.Signature = strings.TrimSpace(input.Signature)
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id, payment id and signature are required")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var (
		result    *models.Order
		verifyErr error
	)
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		verifyErr = nil
		order, err := s.repo.WithTx(tx).FindForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := orders.CheckAccess(order, actor); err != nil {
			return err
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			if order.GatewayPaymentID != nil && *order.GatewayPaymentID == input.GatewayPaymentID {
				result = order
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		if order.Status != enums.OrderStatusCreated {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and cannot be paid", order.Status)
		}

		storedID := ""
		if order.GatewayOrderID != nil {
			storedID = *order.GatewayOrderID
		}
		if storedID != input.GatewayOrderID || !ValidPaymentSignature(s.cfg.KeySecret, input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
			if err := s.recordFailure(ctx, tx, order, "Payment verification failed", "signature mismatch"); err != nil {
				return err
			}
			verifyErr = pkgerrors.New(pkgerrors.CodeValidation, "payment verification failed")
			result = order
			return nil
		}

		paidAt := s.now()
		fields := map[string]any{
			"payment_status":     enums.PaymentStatusPaid,
			"gateway_payment_id": &input.GatewayPaymentID,
			"payment_signature":  &input.Signature,
			"paid_at":            &paidAt,
		}
		if method := strings.TrimSpace(input.Method); method != "" {
			fields["payment_method"] = &method
		}
		if err := s.transitions.Apply(ctx, tx, order, orders.TransitionInput{
			To:     enums.OrderStatusPaid,
			Actor:  orders.SystemActor(),
			Note:   "Payment verified",
			Fields: fields,
		}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		s.metrics.Payment(opVerify, "error")
		return nil, err
	}
	if verifyErr != nil {
		s.metrics.Payment(opVerify, "mismatch")
		s.logg.Warn(ctx, "payment signature mismatch")
		return nil, verifyErr
	}
	s.metrics.Payment(opVerify, "success")
	return orders.NewOrderDTO(result), nil
}

// RetryPayment opens a fresh intent for an unpaid order and resets its payment state.
func (s *service) RetryPayment(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*IntentDTO, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.loadPayable(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	attempt := order.PaymentAttempts + 1
	intent, err := s.openIntent(ctx, order, attempt, opRetry)
	if err != nil {
		return nil, err
	}

	var stored *models.Order
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := ensurePayable(locked); err != nil {
			return err
		}
		if locked.PaymentAttempts >= attempt {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment retry already in progress")
		}
		if locked.GatewayOrderID != nil && *locked.GatewayOrderID != intent.ID {
			err := repo.SupersedeIntent(ctx, &models.PaymentIntent{
				GatewayOrderID: *locked.GatewayOrderID,
				OrderID:        locked.ID,
				Attempt:        locked.PaymentAttempts,
				SupersededAt:   s.now(),
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "keep superseded payment intent")
			}
		}
		updates := map[string]any{
			"gateway_order_id":   &intent.ID,
			"gateway_payment_id": nil,
			"payment_signature":  nil,
			"payment_status":     enums.PaymentStatusPending,
			"payment_attempts":   attempt,
			"updated_at":         s.now(),
		}
		if err := repo.UpdateFields(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment retry")
		}
		locked.GatewayOrderID = &intent.ID
		locked.GatewayPaymentID = nil
		locked.PaymentSignature = nil
		locked.PaymentStatus = enums.PaymentStatusPending
		locked.PaymentAttempts = attempt
		stored = locked
		return nil
	})
	if err != nil {
		s.metrics.Payment(opRetry, "error")
		return nil, err
	}
	s.metrics.Payment(opRetry, "success")
	return s.intentDTO(stored), nil
}

func (s *service) loadPayable(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if err := orders.CheckAccess(order, actor); err != nil {
		return nil, err
	}
	if err := ensurePayable(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) openIntent(ctx context.Context, order *models.Order, attempt int, op string) (*Intent, error) {
	intent, err := s.gateway.CreateIntent(ctx, IntentParams{
		ReferenceID:    order.OrderNumber,
		AmountMinor:    checkout.MinorUnits(order.TotalAmount),
		Currency:       s.cfg.Currency,
		IdempotencyKey: intentKey(order.ID, attempt),
	})
	if err != nil {
		s.metrics.Payment(op, "gateway_error")
		s.logg.Error(ctx, "payment gateway create intent failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
	}
	return intent, nil
}

// recordFailure marks the payment failed without touching the order status.
func (s *service) recordFailure(ctx context.Context, tx *gorm.DB, order *models.Order, note, reason string) error {
	repo := s.repo.WithTx(tx)
	now := s.now()
	if err := repo.UpdateFields(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusFailed,
		"updated_at":     now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
	}
	entry := &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    order.Status,
		Note:      note,
		ActorRole: enums.ActorSystem,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append payment failure")
	}
	order.PaymentStatus = enums.PaymentStatusFailed
	order.StatusHistory = append(order.StatusHistory, *entry)

	data := map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"reason":       reason,
	}
	if order.GatewayOrderID != nil {
		data["gateway_order_id"] = *order.GatewayOrderID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorSystem)},
		OccurredAt:    now,
		Data:          data,
	})
}

func (s *service) intentDTO(order *models.Order) *IntentDTO {
	dto := &IntentDTO{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      checkout.MinorUnits(order.TotalAmount),
		TotalAmount: order.TotalAmount,
		Currency:    s.cfg.Currency,
		Attempt:     order.PaymentAttempts,
	}
	if order.GatewayOrderID != nil {
		dto.GatewayOrderID = *order.GatewayOrderID
	}
	return dto
}

func ensurePayable(order *models.Order) error {
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if order.Status != enums.OrderStatusCreated {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and cannot be paid", order.Status)
	}
	return nil
}

func intentKey(orderID uuid.UUID, attempt int) string {
	return fmt.Sprintf("order-%s-%d", orderID, attempt)
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
