package sellers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     db.Wrap(conn),
		Outbox: outbox.NewWriter(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return svc, conn
}

func applyInput(name string) ApplyInput {
	return ApplyInput{
		StoreName:       name,
		BusinessDetails: types.BusinessDetails{PAN: "ABCDE1234F", Address: "1 Main St"},
		BankDetails:     types.BankDetails{AccountNumber: "1234567", IFSCCode: "HDFC0001234", BankName: "HDFC"},
	}
}

func TestApplyCreatesPendingSellerWithDefaultCommission(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.New()

	dto, err := svc.Apply(context.Background(), userID, applyInput("Leaf & Co"))
	require.NoError(t, err)
	require.Equal(t, string(enums.SellerStatusPending), dto.Status)
	require.True(t, dto.CommissionRate.Equal(DefaultCommissionRate))

	_, err = svc.Apply(context.Background(), userID, applyInput("Another"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestApplyRejectsTakenStoreName(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Apply(context.Background(), uuid.New(), applyInput("Leaf & Co"))
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), uuid.New(), applyInput("leaf & co"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestModerationFollowsTransitionTable(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	adminID := uuid.New()
	userID := uuid.New()

	dto, err := svc.Apply(ctx, userID, applyInput("Leaf & Co"))
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, adminID, dto.ID, ActionSuspend)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	dto, err = svc.Moderate(ctx, adminID, dto.ID, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, string(enums.SellerStatusApproved), dto.Status)

	seller, err := svc.ApprovedSellerFor(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, dto.ID, seller.ID)

	_, err = svc.Moderate(ctx, adminID, dto.ID, ActionSuspend)
	require.NoError(t, err)
	_, err = svc.ApprovedSellerFor(ctx, userID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	dto, err = svc.Moderate(ctx, adminID, dto.ID, ActionReactivate)
	require.NoError(t, err)
	require.Equal(t, string(enums.SellerStatusApproved), dto.Status)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventSellerStatusChange).Find(&events).Error)
	require.Len(t, events, 3)
}

func TestRejectedSellerMayReapply(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	dto, err := svc.Apply(ctx, userID, applyInput("First Try"))
	require.NoError(t, err)
	_, err = svc.Moderate(ctx, uuid.New(), dto.ID, ActionReject)
	require.NoError(t, err)

	again, err := svc.Apply(ctx, userID, applyInput("Second Try"))
	require.NoError(t, err)
	require.Equal(t, dto.ID, again.ID)
	require.Equal(t, "Second Try", again.StoreName)
	require.Equal(t, string(enums.SellerStatusPending), again.Status)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, conn := newTestService(t)
	dbtest.SeedSeller(t, conn, enums.SellerStatusApproved, "5")
	dbtest.SeedSeller(t, conn, enums.SellerStatusPending, "5")
	dbtest.SeedSeller(t, conn, enums.SellerStatusPending, "5")

	pending := enums.SellerStatusPending
	res, err := svc.List(context.Background(), &pending, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, res.Sellers, 2)
	require.EqualValues(t, 2, res.Pagination.Total)

	all, err := svc.List(context.Background(), nil, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Sellers, 3)
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction(" Approve ")
	require.NoError(t, err)
	require.Equal(t, ActionApprove, action)

	_, err = ParseAction("delete")
	require.Error(t, err)
}
