package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type harness struct {
	conn *gorm.DB
	svc  Service
	cart cart.Service
	now  time.Time
}

type harnessOption func(*ServiceParams)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	h := &harness{conn: conn, now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}

	emitter := outbox.NewWriter(outbox.NewRepository(conn), nil)
	repo := NewRepository(conn)
	clock := func() time.Time { return h.now }
	transitions, err := NewTransitioner(repo, emitter, nil, clock)
	require.NoError(t, err)

	params := ServiceParams{
		Repo:         repo,
		CartRepo:     cart.NewRepository(conn),
		SellerRepo:   sellers.NewRepository(conn),
		Tx:           client,
		Outbox:       emitter,
		Transitioner: transitions,
		Logger:       logger.New(logger.Options{Output: io.Discard}),
		Now:          clock,
	}
	for _, opt := range opts {
		opt(&params)
	}
	h.svc, err = NewService(params)
	require.NoError(t, err)

	h.cart, err = cart.NewService(cart.NewRepository(conn), client, product.NewRepository(conn))
	require.NoError(t, err)
	return h
}

func (h *harness) seedSeller(t *testing.T, commission string) *models.Seller {
	return dbtest.SeedSeller(t, h.conn, enums.SellerStatusApproved, commission)
}

func (h *harness) fillCart(t *testing.T, buyer uuid.UUID, lines map[uuid.UUID]int) {
	t.Helper()
	for productID, qty := range lines {
		_, err := h.cart.AddItem(context.Background(), buyer, productID, qty)
		require.NoError(t, err)
	}
}

func (h *harness) outboxTypes(t *testing.T) []string {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Order("created_at ASC").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, string(row.EventType))
	}
	return out
}

func testAddress() types.ShippingAddress {
	return types.ShippingAddress{
		FullName:     "Asha Rao",
		Phone:        "9876543210",
		AddressLine1: "14 Lake View",
		City:         "Pune",
		State:        "MH",
		PostalCode:   "411001",
		Country:      "IN",
	}
}

func withCalculators(shipping checkout.ShippingCalculator, tax checkout.TaxCalculator) harnessOption {
	return func(p *ServiceParams) {
		p.Shipping = shipping
		p.Tax = tax
	}
}

func withNumbers(gen NumberGenerator) harnessOption {
	return func(p *ServiceParams) {
		p.Numbers = gen
	}
}
