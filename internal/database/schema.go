package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

// Models lists every table, in creation order.
func Models() []interface{} {
	return []interface{}{
		(*models.User)(nil),
		(*models.Product)(nil),
		(*models.Coupon)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.CouponUsage)(nil),
		(*models.WarrantyUnit)(nil),
		(*models.WarrantyService)(nil),
		(*models.ReturnRequest)(nil),
		(*models.Notification)(nil),
		(*models.EventLog)(nil),
	}
}

// CreateSchema creates all tables straight from the bun models. Postgres
// deployments use the SQL files under migrations/ instead; this is used for
// SQLite and in tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range Models() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}
