package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.Wrap(conn), product.NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestGetReturnsEmptyCartWhenNoneExists(t *testing.T) {
	svc, _ := newTestService(t)

	dto, err := svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, dto.ID)
	require.Empty(t, dto.Items)
	require.Zero(t, dto.TotalItems)
	require.True(t, dto.TotalPrice.IsZero())
}

func TestAddItemSnapshotsAndIncrements(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, conn, enums.SellerStatusApproved, "5")
	tea := dbtest.SeedProduct(t, conn, seller.ID, "Tea", "12.50", 5)
	buyer := uuid.New()

	_, err := svc.AddItem(ctx, buyer, tea.ID, 2)
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", tea.ID).
		Updates(map[string]any{"price": decimal.NewFromInt(99), "name": "Renamed"}).Error)

	dto, err := svc.AddItem(ctx, buyer, tea.ID, 1)
	require.NoError(t, err)
	require.Len(t, dto.Items, 1)
	require.Equal(t, 3, dto.Items[0].Quantity)
	require.Equal(t, "Tea", dto.Items[0].Name)
	require.True(t, dto.Items[0].Price.Equal(decimal.RequireFromString("12.50")))
	require.Equal(t, 3, dto.TotalItems)
	require.True(t, dto.TotalPrice.Equal(decimal.RequireFromString("37.50")))
}

func TestAddItemChecksResultingQuantityAgainstStock(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, conn, enums.SellerStatusApproved, "5")
	tea := dbtest.SeedProduct(t, conn, seller.ID, "Tea", "10", 3)
	buyer := uuid.New()

	_, err := svc.AddItem(ctx, buyer, tea.ID, 2)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, buyer, tea.ID, 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	dto, err := svc.Get(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, 2, dto.TotalItems)
}

func TestAddItemRejectsUnpurchasableProducts(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, conn, enums.SellerStatusApproved, "5")
	tea := dbtest.SeedProduct(t, conn, seller.ID, "Tea", "10", 3)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", tea.ID).Update("archived", true).Error)

	_, err := svc.AddItem(ctx, uuid.New(), tea.ID, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.AddItem(ctx, uuid.New(), uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, uuid.New(), tea.ID, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateRemoveAndClear(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, conn, enums.SellerStatusApproved, "5")
	tea := dbtest.SeedProduct(t, conn, seller.ID, "Tea", "10", 10)
	mug := dbtest.SeedProduct(t, conn, seller.ID, "Mug", "4", 10)
	buyer := uuid.New()

	_, err := svc.AddItem(ctx, buyer, tea.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, buyer, mug.ID, 1)
	require.NoError(t, err)

	dto, err := svc.UpdateItem(ctx, buyer, tea.ID, 4)
	require.NoError(t, err)
	require.True(t, dto.TotalPrice.Equal(decimal.NewFromInt(44)))

	_, err = svc.UpdateItem(ctx, buyer, tea.ID, 11)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	dto, err = svc.RemoveItem(ctx, buyer, mug.ID)
	require.NoError(t, err)
	require.Len(t, dto.Items, 1)

	_, err = svc.RemoveItem(ctx, buyer, mug.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.Clear(ctx, buyer))
	dto, err = svc.Get(ctx, buyer)
	require.NoError(t, err)
	require.NotNil(t, dto.ID, "clearing keeps the cart row")
	require.Empty(t, dto.Items)
}
