package payments

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "hook-secret"
)

type stubGateway struct {
	calls  []IntentParams
	err    error
	create func(IntentParams) (*Intent, error)
}

func (g *stubGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	g.calls = append(g.calls, params)
	if g.err != nil {
		return nil, g.err
	}
	if g.create != nil {
		return g.create(params)
	}
	return LocalGateway{}.CreateIntent(ctx, params)
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = "1"
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type harness struct {
	conn    *gorm.DB
	svc     Service
	gateway *stubGateway
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{
		conn:    conn,
		gateway: &stubGateway{},
		now:     time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	emitter := outbox.NewWriter(outbox.NewRepository(conn), nil)
	repo := orders.NewRepository(conn)
	transitions, err := orders.NewTransitioner(repo, emitter, nil, clock)
	require.NoError(t, err)
	guard, err := NewEventGuard(newMemoryStore(), time.Hour, "payment_webhook")
	require.NoError(t, err)

	h.svc, err = NewService(ServiceParams{
		Repo:         repo,
		Tx:           db.Wrap(conn),
		Gateway:      h.gateway,
		Transitioner: transitions,
		Outbox:       emitter,
		Guard:        guard,
		Config: config.PaymentsConfig{
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
			Currency:      "USD",
		},
		Logger: logger.New(logger.Options{Output: io.Discard}),
		Now:    clock,
	})
	require.NoError(t, err)
	return h
}

// seedOrder stores a created order for buyer worth 25.50 holding two units of one product.
func (h *harness) seedOrder(t *testing.T, buyer *uuid.UUID, guest *types.GuestInfo) *models.Order {
	t.Helper()
	seller := dbtest.SeedSeller(t, h.conn, enums.SellerStatusApproved, "5")
	product := dbtest.SeedProduct(t, h.conn, seller.ID, "Tea", "12.75", 8)
	order := &models.Order{
		OrderNumber: "ORD-20260314-" + uuid.NewString()[:6],
		BuyerID:     buyer,
		GuestInfo:   guest,
		ShippingAddress: types.ShippingAddress{
			FullName: "Ada Buyer", Phone: "5550001111", AddressLine1: "1 Main St",
			City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
		},
		ItemsTotal:    decimal.RequireFromString("25.50"),
		ShippingCost:  decimal.Zero,
		TaxAmount:     decimal.Zero,
		TotalAmount:   decimal.RequireFromString("25.50"),
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusCreated,
		Items: []models.OrderItem{{
			ProductID:        product.ID,
			SellerID:         seller.ID,
			Name:             product.Name,
			Price:            product.Price,
			Quantity:         2,
			ItemTotal:        decimal.RequireFromString("25.50"),
			CommissionRate:   decimal.RequireFromString("5"),
			CommissionAmount: decimal.RequireFromString("1.28"),
			SellerEarnings:   decimal.RequireFromString("24.22"),
		}},
	}
	require.NoError(t, h.conn.Create(order).Error)
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := orders.NewRepository(h.conn).FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) outboxTypes(t *testing.T) []string {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Order("created_at ASC").Find(&rows).Error)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, string(row.EventType))
	}
	return names
}

func buyerOrder(t *testing.T, h *harness) (*models.Order, uuid.UUID) {
	buyer := uuid.New()
	return h.seedOrder(t, &buyer, nil), buyer
}
