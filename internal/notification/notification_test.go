package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/models"
)

func TestNotifySkipsGuests(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, Notify(ctx, db, "", "title", "msg", models.NotificationOrder, ""))

	count, err := db.NewSelect().Model((*models.Notification)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNotifyInsideRolledBackTxLeavesNothing(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	_ = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		require.NoError(t, Notify(ctx, tx, "u1", "title", "msg", models.NotificationOrder, ""))
		return assert.AnError
	})

	count, err := db.NewSelect().Model((*models.Notification)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReadSide(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := NewService(db)

	require.NoError(t, Notify(ctx, db, "u1", "first", "m1", models.NotificationOrder, "/orders/1"))
	require.NoError(t, Notify(ctx, db, "u1", "second", "m2", models.NotificationWarranty, ""))
	require.NoError(t, Notify(ctx, db, "u2", "other", "m3", models.NotificationOrder, ""))

	unread, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	list, err := svc.List(ctx, "u1", false, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// another user's notification is invisible
	other, err := svc.List(ctx, "u2", false, 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	err = svc.MarkRead(ctx, "u1", other[0].ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	require.NoError(t, svc.MarkRead(ctx, "u1", list[0].ID))
	unread, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	onlyUnread, err := svc.List(ctx, "u1", true, 0)
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)
	assert.NotEqual(t, list[0].ID, onlyUnread[0].ID)

	n, err := svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
