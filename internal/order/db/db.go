package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// DB holds the order queries. Methods take a bun.IDB so the service can
// run them inside its transaction.
type DB struct {
	Bun *bun.DB
}

// ---------------- PRODUCTS ----------------

// GetProductsByIDs → products keyed by id; missing ids are simply absent
func (d *DB) GetProductsByIDs(ctx context.Context, idb bun.IDB, ids []string) (map[string]*models.Product, error) {
	var rows []models.Product
	err := idb.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	out := make(map[string]*models.Product, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// DecrementStock takes qty off a product only if enough is left. It
// reports false when the stock would go negative or qty is not positive.
func (d *DB) DecrementStock(ctx context.Context, idb bun.IDB, productID string, qty int, now time.Time) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	res, err := idb.NewUpdate().Model((*models.Product)(nil)).
		Set("stock_quantity = stock_quantity - ?", qty).
		Set("updated_at = ?", now).
		Where("id = ?", productID).
		Where("stock_quantity >= ?", qty).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return n == 1, nil
}

// RestoreStock puts the quantities of a cancelled order's items back.
func (d *DB) RestoreStock(ctx context.Context, idb bun.IDB, items []models.OrderItem, now time.Time) error {
	for _, it := range items {
		_, err := idb.NewUpdate().Model((*models.Product)(nil)).
			Set("stock_quantity = stock_quantity + ?", it.Quantity).
			Set("updated_at = ?", now).
			Where("id = ?", it.ProductID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// ---------------- ORDERS ----------------

// CreateOrder → insert the order and its items
func (d *DB) CreateOrder(ctx context.Context, idb bun.IDB, order *models.Order, items []models.OrderItem) error {
	if _, err := idb.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	if _, err := idb.NewInsert().Model(&items).Exec(ctx); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, idb bun.IDB, id string) (*models.Order, error) {
	var order models.Order
	err := idb.NewSelect().Model(&order).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}

func (d *DB) GetItemsByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := idb.NewSelect().Model(&items).Where("order_id = ?", orderID).OrderExpr("created_at ASC, id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return items, nil
}

func (d *DB) GetWarrantyUnitsByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.WarrantyUnit, error) {
	var units []models.WarrantyUnit
	err := idb.NewSelect().Model(&units).Where("order_id = ?", orderID).OrderExpr("code ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load warranty units: %w", err)
	}
	return units, nil
}

// GetOrdersByUserID → newest first
func (d *DB) GetOrdersByUserID(ctx context.Context, idb bun.IDB, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := idb.NewSelect().Model(&orders).Where("user_id = ?", userID).OrderExpr("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus moves an order from one status to another. It reports
// false if the order was no longer in the expected status.
func (d *DB) TransitionStatus(ctx context.Context, idb bun.IDB, id string, from, to models.OrderStatus, cancelReason string, now time.Time) (bool, error) {
	q := idb.NewUpdate().Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if cancelReason != "" {
		q = q.Set("cancel_reason = ?", cancelReason)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
