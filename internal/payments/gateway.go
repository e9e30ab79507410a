package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/square"
)

// IntentParams describes the amount a payment intent must collect.
type IntentParams struct {
	ReferenceID    string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// Intent is the provider-side order a buyer pays against.
type Intent struct {
	ID          string
	AmountMinor int64
	Currency    string
}

// Gateway creates payment intents with a provider.
type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
}

// NewGateway selects the gateway configured for the deployment.
func NewGateway(cfg config.PaymentsConfig, client *square.Client) (Gateway, error) {
	switch cfg.ProviderName() {
	case config.PaymentProviderSquare:
		if client == nil {
			return nil, errors.New("square client required for square payments")
		}
		return NewSquareGateway(client)
	case config.PaymentProviderLocal:
		return LocalGateway{}, nil
	default:
		return nil, fmt.Errorf("unsupported payments provider %q", cfg.Provider)
	}
}

type squareOrders interface {
	CreateOrder(ctx context.Context, params square.OrderCreateParams) (*sq.Order, error)
}

// SquareGateway registers intents as Square orders.
type SquareGateway struct {
	client squareOrders
}

func NewSquareGateway(client squareOrders) (*SquareGateway, error) {
	if client == nil {
		return nil, errors.New("square orders client required")
	}
	return &SquareGateway{client: client}, nil
}

func (g *SquareGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	order, err := g.client.CreateOrder(ctx, square.OrderCreateParams{
		ReferenceID:    params.ReferenceID,
		Currency:       params.Currency,
		AmountMinor:    params.AmountMinor,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	id := order.GetID()
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square order id missing")
	}
	return &Intent{ID: *id, AmountMinor: params.AmountMinor, Currency: params.Currency}, nil
}

// LocalGateway derives intent ids from the idempotency key so repeated calls agree.
type LocalGateway struct{}

func (LocalGateway) CreateIntent(_ context.Context, params IntentParams) (*Intent, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key required")
	}
	sum := sha256.Sum256([]byte(params.IdempotencyKey))
	return &Intent{
		ID:          "local_" + hex.EncodeToString(sum[:])[:20],
		AmountMinor: params.AmountMinor,
		Currency:    params.Currency,
	}, nil
}
