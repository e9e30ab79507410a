package sellers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// DefaultCommissionRate is the platform share, in percent, assigned on application.
var DefaultCommissionRate = decimal.NewFromInt(5)

// Action names an admin moderation step on a seller account.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionSuspend    Action = "suspend"
	ActionReactivate Action = "reactivate"
)

// ParseAction converts a path segment into an Action.
func ParseAction(value string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	case ActionSuspend:
		return ActionSuspend, nil
	case ActionReactivate:
		return ActionReactivate, nil
	}
	return "", fmt.Errorf("invalid seller action %q", value)
}

type actionRule struct {
	from []enums.SellerStatus
	to   enums.SellerStatus
}

var actionRules = map[Action]actionRule{
	ActionApprove:    {from: []enums.SellerStatus{enums.SellerStatusPending}, to: enums.SellerStatusApproved},
	ActionReject:     {from: []enums.SellerStatus{enums.SellerStatusPending}, to: enums.SellerStatusRejected},
	ActionSuspend:    {from: []enums.SellerStatus{enums.SellerStatusApproved}, to: enums.SellerStatusSuspended},
	ActionReactivate: {from: []enums.SellerStatus{enums.SellerStatusSuspended}, to: enums.SellerStatusApproved},
}

// ApplyInput is the onboarding payload submitted by a buyer.
type ApplyInput struct {
	StoreName       string
	BusinessDetails types.BusinessDetails
	BankDetails     types.BankDetails
}

// Service exposes seller onboarding and moderation.
type Service interface {
	Apply(ctx context.Context, userID uuid.UUID, input ApplyInput) (*SellerDTO, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*SellerDTO, error)
	List(ctx context.Context, status *enums.SellerStatus, params pagination.Params) (*SellerListResult, error)
	Moderate(ctx context.Context, adminID, sellerID uuid.UUID, action Action) (*SellerDTO, error)
	ApprovedSellerFor(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo   *Repository
	Tx     txRunner
	Outbox outbox.Emitter
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outbox.Emitter
}

// NewService builds the seller service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: params.Repo, tx: params.Tx, outbox: params.Outbox}, nil
}

// Apply registers the caller as a pending seller. A rejected applicant may
// reapply, which resets the existing row to pending.
func (s *service) Apply(ctx context.Context, userID uuid.UUID, input ApplyInput) (*SellerDTO, error) {
	storeName := strings.TrimSpace(input.StoreName)
	if storeName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store_name is required")
	}

	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seller")
	}
	if existing != nil && existing.Status != enums.SellerStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "seller application already exists")
	}

	exclude := uuid.Nil
	if existing != nil {
		exclude = existing.ID
	}
	taken, err := s.repo.StoreNameTaken(ctx, storeName, exclude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check store name")
	}
	if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "store name already taken")
	}

	seller := existing
	if seller == nil {
		seller = &models.Seller{
			UserID:         userID,
			CommissionRate: DefaultCommissionRate,
		}
	}
	seller.StoreName = storeName
	seller.BusinessDetails = input.BusinessDetails
	seller.BankDetails = input.BankDetails
	seller.Status = enums.SellerStatusPending

	if existing == nil {
		err = s.repo.Create(ctx, seller)
	} else {
		err = s.repo.Save(ctx, seller)
	}
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "store name already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save seller")
	}
	return FromModel(seller), nil
}

func (s *service) GetByUser(ctx context.Context, userID uuid.UUID) (*SellerDTO, error) {
	seller, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(seller), nil
}

func (s *service) List(ctx context.Context, status *enums.SellerStatus, params pagination.Params) (*SellerListResult, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid seller status filter")
	}
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sellers")
	}
	out := make([]SellerDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return &SellerListResult{Sellers: out, Pagination: pagination.NewMeta(params, total)}, nil
}

// Moderate applies an admin action and records a seller.status_changed event
// in the same transaction.
func (s *service) Moderate(ctx context.Context, adminID, sellerID uuid.UUID, action Action) (*SellerDTO, error) {
	rule, ok := actionRules[action]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown seller action %q", action)
	}

	var updated *models.Seller
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		seller, err := repo.FindByID(ctx, sellerID)
		if err != nil {
			return mapLookupError(err)
		}
		if !statusIn(seller.Status, rule.from) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s a seller in status %s", action, seller.Status)
		}
		previous := seller.Status
		seller.Status = rule.to
		if err := repo.Save(ctx, seller); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update seller status")
		}

		actorID := adminID
		event := outbox.DomainEvent{
			EventType:     enums.EventSellerStatusChange,
			AggregateType: enums.AggregateSeller,
			AggregateID:   seller.ID,
			Actor:         &outbox.ActorRef{UserID: &actorID, Role: string(enums.ActorAdmin)},
			Data: map[string]any{
				"seller_id":  seller.ID,
				"user_id":    seller.UserID,
				"from":       previous,
				"to":         seller.Status,
				"store_name": seller.StoreName,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit seller status event")
		}
		updated = seller
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// ApprovedSellerFor returns the seller row for a user holding selling rights.
func (s *service) ApprovedSellerFor(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	seller, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller account required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seller")
	}
	if !seller.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller account is not approved")
	}
	return seller, nil
}

func statusIn(status enums.SellerStatus, allowed []enums.SellerStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seller")
}
