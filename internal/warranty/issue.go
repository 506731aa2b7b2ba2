package warranty

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

// NewUnits builds one unit per purchased item for a product carrying a
// warranty. Products without warranty months get none.
func NewUnits(order *models.Order, item *models.OrderItem, exchangeDays int, now time.Time) []models.WarrantyUnit {
	if item.WarrantyMonths <= 0 || item.Quantity <= 0 {
		return nil
	}
	start := now.UTC()
	end := start.AddDate(0, item.WarrantyMonths, 0)
	var exchangeUntil *time.Time
	if exchangeDays > 0 {
		eu := start.AddDate(0, 0, exchangeDays)
		if eu.After(end) {
			eu = end
		}
		exchangeUntil = &eu
	}

	units := make([]models.WarrantyUnit, 0, item.Quantity)
	for i := 0; i < item.Quantity; i++ {
		units = append(units, models.WarrantyUnit{
			ID:            utils.GenerateID(),
			Code:          utils.GenerateWarrantyCode(start),
			OrderID:       order.ID,
			OrderItemID:   item.ID,
			ProductID:     item.ProductID,
			UserID:        order.UserID,
			StartDate:     start,
			EndDate:       end,
			ExchangeUntil: exchangeUntil,
			Status:        models.WarrantyActive,
			CreatedAt:     start,
			UpdatedAt:     start,
		})
	}
	return units
}

// InsertUnits writes units through the caller's transaction.
func InsertUnits(ctx context.Context, tx bun.IDB, units []models.WarrantyUnit) error {
	if len(units) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&units).Exec(ctx); err != nil {
		return fmt.Errorf("insert warranty units: %w", err)
	}
	return nil
}

// VoidForOrder voids every still-active unit of a cancelled order and
// returns how many changed.
func VoidForOrder(ctx context.Context, tx bun.IDB, orderID, reason string, now time.Time) (int64, error) {
	res, err := tx.NewUpdate().Model((*models.WarrantyUnit)(nil)).
		Set("status = ?", models.WarrantyVoided).
		Set("void_reason = ?", reason).
		Set("updated_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", models.WarrantyActive).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("void warranty units for order: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
