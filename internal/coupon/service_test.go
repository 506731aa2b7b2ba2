package coupon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/eventlog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
)

func setupService(t *testing.T) (*Service, *bun.DB) {
	db := dbtest.New(t)
	svc := NewService(db, logger.Discard())
	svc.Now = func() time.Time { return midYear }
	return svc, db
}

var admin = auth.Principal{UserID: "admin-1", Role: models.RoleAdmin}

func createSale10(t *testing.T, svc *Service, limit *int) *models.Coupon {
	t.Helper()
	c, err := svc.Create(context.Background(), admin, CreateRequest{
		Code:          "sale10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: dec(10),
		MaxDiscount:   decPtr(50000),
		ValidFrom:     windowStart,
		ValidUntil:    windowEnd,
		UsageLimit:    limit,
	})
	require.NoError(t, err)
	return c
}

func TestCreateNormalizesCodeAndRejectsDuplicates(t *testing.T) {
	svc, db := setupService(t)
	c := createSale10(t, svc, nil)
	assert.Equal(t, "SALE10", c.Code)

	_, err := svc.Create(context.Background(), admin, CreateRequest{
		Code:          "Sale10",
		DiscountType:  models.DiscountFixed,
		DiscountValue: dec(1000),
		ValidFrom:     windowStart,
		ValidUntil:    windowEnd,
	})
	assert.Equal(t, "COUPON_EXISTS", apperr.CodeOf(err))

	n, err := db.NewSelect().Model((*models.EventLog)(nil)).Where("action = ?", "COUPON_CREATED").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Create(context.Background(), admin, CreateRequest{
		Code:          "BIG",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: dec(120),
		ValidFrom:     windowStart,
		ValidUntil:    windowEnd,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create(context.Background(), admin, CreateRequest{
		Code:          "BACKWARDS",
		DiscountType:  models.DiscountFixed,
		DiscountValue: dec(10),
		ValidFrom:     windowEnd,
		ValidUntil:    windowStart,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestValidateIsCaseInsensitive(t *testing.T) {
	svc, db := setupService(t)
	createSale10(t, svc, nil)

	c, res, err := svc.Validate(context.Background(), db, " sale10 ", decimal.NewFromInt(1000000), "")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec(50000)))

	c, res, err = svc.Validate(context.Background(), db, "NOPE", decimal.NewFromInt(1000000), "")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, NotFound, res.Rejection)
}

func TestRedeemBlocksSecondUseBySameUser(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	c := createSale10(t, svc, nil)

	require.NoError(t, db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return Redeem(ctx, tx, c, "user-1", "order-1", midYear)
	}))

	_, res, err := svc.Validate(ctx, db, "SALE10", dec(1000000), "user-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyUsedByUser, res.Rejection)

	// a racing order that skipped validation hits the unique constraint
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return Redeem(ctx, tx, c, "user-1", "order-2", midYear)
	})
	assert.Equal(t, string(AlreadyUsedByUser), apperr.CodeOf(err))

	reloaded, err := Load(ctx, db, "SALE10")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsedCount, "rolled back increment must not stick")
}

func TestRedeemRespectsUsageLimit(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	limit := 2
	c := createSale10(t, svc, &limit)

	for i := 0; i < limit; i++ {
		orderID := fmt.Sprintf("order-%d", i)
		require.NoError(t, db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return Redeem(ctx, tx, c, "", orderID, midYear)
		}))
	}

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return Redeem(ctx, tx, c, "", "order-z", midYear)
	})
	assert.Equal(t, string(UsageExhausted), apperr.CodeOf(err))

	// guests leave no usage rows
	n, err := db.NewSelect().Model((*models.CouponUsage)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSetActive(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	c := createSale10(t, svc, nil)

	require.NoError(t, svc.SetActive(ctx, admin, c.ID, false))
	_, res, err := svc.Validate(ctx, db, "SALE10", dec(1000), "")
	require.NoError(t, err)
	assert.Equal(t, Inactive, res.Rejection)

	var logs []models.EventLog
	require.NoError(t, db.NewSelect().Model(&logs).Where("action = ?", eventlog.ActionCouponUpdated).Scan(ctx))
	require.Len(t, logs, 1)
	assert.Equal(t, admin.UserID, logs[0].ActorID)
	assert.Equal(t, c.ID, logs[0].EntityID)

	assert.True(t, apperr.IsKind(svc.SetActive(ctx, admin, "missing", true), apperr.KindNotFound))
	n, err := db.NewSelect().Model((*models.EventLog)(nil)).Where("action = ?", eventlog.ActionCouponUpdated).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
