package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

func placeBuyerOrder(t *testing.T, h *harness, qty int) (*OrderDTO, uuid.UUID, uuid.UUID) {
	t.Helper()
	seller := h.seedSeller(t, "5")
	tea := dbtest.SeedProduct(t, h.conn, seller.ID, "Tea", "10", 10)
	buyer := uuid.New()
	h.fillCart(t, buyer, map[uuid.UUID]int{tea.ID: qty})
	order, err := h.svc.CreateOrder(context.Background(), buyer, CreateOrderInput{ShippingAddress: testAddress()})
	require.NoError(t, err)
	return order, buyer, tea.ID
}

func TestCancelOrderRestoresStockAtomically(t *testing.T) {
	h := newHarness(t)
	order, buyer, productID := placeBuyerOrder(t, h, 4)
	require.Equal(t, 6, dbtest.ReloadProduct(t, h.conn, productID).Stock)

	cancelled, err := h.svc.CancelOrder(context.Background(), order.ID, BuyerActor(buyer), "")
	require.NoError(t, err)
	require.Equal(t, string(enums.OrderStatusCancelled), cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Len(t, cancelled.StatusHistory, 2)
	require.Equal(t, "Order cancelled", cancelled.StatusHistory[1].Note)
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock)

	_, err = h.svc.CancelOrder(context.Background(), order.ID, BuyerActor(buyer), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock, "no double restore")

	require.Equal(t, []string{string(enums.EventOrderCreated), string(enums.EventOrderCancelled)}, h.outboxTypes(t))
}

func TestCancelOrderOwnership(t *testing.T) {
	h := newHarness(t)
	order, _, _ := placeBuyerOrder(t, h, 1)

	_, err := h.svc.CancelOrder(context.Background(), order.ID, BuyerActor(uuid.New()), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	admin := uuid.New()
	cancelled, err := h.svc.CancelOrder(context.Background(), order.ID, AdminActor(admin), "fraud check")
	require.NoError(t, err)
	last := cancelled.StatusHistory[len(cancelled.StatusHistory)-1]
	require.Equal(t, string(enums.ActorAdmin), last.ActorRole)
	require.Equal(t, &admin, last.ActorID)
	require.Equal(t, "fraud check", last.Note)
}

func TestCancelAfterShipmentIsRejected(t *testing.T) {
	h := newHarness(t)
	order, buyer, productID := placeBuyerOrder(t, h, 2)
	admin := uuid.New()
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusProcessing, enums.OrderStatusShipped} {
		_, err := h.svc.UpdateStatusAdmin(context.Background(), admin, order.ID, status, "")
		require.NoError(t, err)
	}

	_, err := h.svc.CancelOrder(context.Background(), order.ID, BuyerActor(buyer), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 8, dbtest.ReloadProduct(t, h.conn, productID).Stock)
}

func TestUpdateStatusAdminStampsAndDefaultsNote(t *testing.T) {
	h := newHarness(t)
	order, _, _ := placeBuyerOrder(t, h, 1)
	admin := uuid.New()
	ctx := context.Background()

	_, err := h.svc.UpdateStatusAdmin(ctx, admin, order.ID, enums.OrderStatusPaid, "")
	require.NoError(t, err)
	_, err = h.svc.UpdateStatusAdmin(ctx, admin, order.ID, enums.OrderStatusShipped, "")
	require.NoError(t, err)
	updated, err := h.svc.UpdateStatusAdmin(ctx, admin, order.ID, enums.OrderStatusDelivered, "")
	require.NoError(t, err)

	require.NotNil(t, updated.ShippedAt)
	require.NotNil(t, updated.DeliveredAt)
	require.Equal(t, "Status changed from shipped to delivered", updated.StatusHistory[len(updated.StatusHistory)-1].Note)

	_, err = h.svc.UpdateStatusAdmin(ctx, admin, order.ID, enums.OrderStatusProcessing, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatusAdmin(ctx, admin, order.ID, enums.OrderStatusDelivered, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stored, err := h.svc.GetOrder(ctx, order.ID, AdminActor(admin))
	require.NoError(t, err)
	require.Len(t, stored.StatusHistory, 4)
}

func TestAdminReopeningCancelledOrderRetakesStock(t *testing.T) {
	h := newHarness(t)
	order, buyer, productID := placeBuyerOrder(t, h, 3)
	ctx := context.Background()

	_, err := h.svc.CancelOrder(ctx, order.ID, BuyerActor(buyer), "")
	require.NoError(t, err)
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock)

	reopened, err := h.svc.UpdateStatusAdmin(ctx, uuid.New(), order.ID, enums.OrderStatusCreated, "reopened on request")
	require.NoError(t, err)
	require.Nil(t, reopened.CancelledAt)
	require.Equal(t, 7, dbtest.ReloadProduct(t, h.conn, productID).Stock)
}

func TestRefundingCancelledOrderLeavesStockAlone(t *testing.T) {
	h := newHarness(t)
	order, buyer, productID := placeBuyerOrder(t, h, 3)
	ctx := context.Background()

	_, err := h.svc.UpdateStatusAdmin(ctx, uuid.New(), order.ID, enums.OrderStatusPaid, "")
	require.NoError(t, err)
	_, err = h.svc.CancelOrder(ctx, order.ID, BuyerActor(buyer), "")
	require.NoError(t, err)
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock)

	refunded, err := h.svc.UpdateStatusAdmin(ctx, uuid.New(), order.ID, enums.OrderStatusRefunded, "")
	require.NoError(t, err)
	require.Equal(t, string(enums.OrderStatusRefunded), refunded.Status)
	require.NotNil(t, refunded.CancelledAt)
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock)
}

func TestGetOrderAccess(t *testing.T) {
	h := newHarness(t)
	order, buyer, _ := placeBuyerOrder(t, h, 1)
	ctx := context.Background()

	_, err := h.svc.GetOrder(ctx, order.ID, BuyerActor(buyer))
	require.NoError(t, err)
	_, err = h.svc.GetOrder(ctx, order.ID, BuyerActor(uuid.New()))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.GetOrder(ctx, uuid.New(), BuyerActor(buyer))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOrders(t *testing.T) {
	h := newHarness(t)
	order, buyer, _ := placeBuyerOrder(t, h, 1)
	placeBuyerOrder(t, h, 1)
	ctx := context.Background()

	mine, err := h.svc.ListBuyerOrders(ctx, buyer, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 1)
	require.Equal(t, order.ID, mine.Orders[0].ID)
	require.Equal(t, 10, mine.Pagination.Limit)

	_, err = h.svc.UpdateStatusAdmin(ctx, uuid.New(), order.ID, enums.OrderStatusPaid, "")
	require.NoError(t, err)

	paid := enums.OrderStatusPaid
	filtered, err := h.svc.ListOrders(ctx, ListFilters{Status: &paid}, pagination.Params{Page: 1, Limit: 500})
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	require.Equal(t, pagination.MaxLimit, filtered.Pagination.Limit)

	all, err := h.svc.ListOrders(ctx, ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	require.EqualValues(t, 2, all.Pagination.Total)
}

func TestTrackGuestOrderRequiresMatchingEmail(t *testing.T) {
	h := newHarness(t)
	seller := h.seedSeller(t, "5")
	tea := dbtest.SeedProduct(t, h.conn, seller.ID, "Tea", "10", 5)
	order, err := h.svc.CreateGuestOrder(context.Background(), guestInput(tea.ID, 1))
	require.NoError(t, err)

	found, err := h.svc.TrackGuestOrder(context.Background(), order.OrderNumber, " GUEST@example.com ")
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)

	_, err = h.svc.TrackGuestOrder(context.Background(), order.OrderNumber, "other@example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.GetOrder(context.Background(), order.ID, GuestActor("guest@example.com"))
	require.NoError(t, err)
}

func TestExpireStaleOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale, _, productID := placeBuyerOrder(t, h, 2)
	paidOrder, _, _ := placeBuyerOrder(t, h, 1)
	_, err := h.svc.UpdateStatusAdmin(ctx, uuid.New(), paidOrder.ID, enums.OrderStatusPaid, "")
	require.NoError(t, err)

	require.NoError(t, h.conn.Model(&models.Order{}).Where("id IN ?", []uuid.UUID{stale.ID, paidOrder.ID}).
		Update("created_at", h.now.Add(-72*time.Hour)).Error)
	fresh, _, _ := placeBuyerOrder(t, h, 1)

	expired, err := h.svc.ExpireStaleOrders(ctx, h.now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	got, err := h.svc.GetOrder(ctx, stale.ID, SystemActor())
	require.NoError(t, err)
	require.Equal(t, string(enums.OrderStatusCancelled), got.Status)
	require.Equal(t, string(enums.ActorSystem), got.StatusHistory[len(got.StatusHistory)-1].ActorRole)
	require.Equal(t, 10, dbtest.ReloadProduct(t, h.conn, productID).Stock)

	other, err := h.svc.GetOrder(ctx, fresh.ID, SystemActor())
	require.NoError(t, err)
	require.Equal(t, string(enums.OrderStatusCreated), other.Status)

	var expiredEvents int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderExpired).Count(&expiredEvents).Error)
	require.EqualValues(t, 1, expiredEvents)

	again, err := h.svc.ExpireStaleOrders(ctx, h.now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Zero(t, again)
}
