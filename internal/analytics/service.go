package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

// Service handles back-office sales reporting
type Service struct {
	db *bun.DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

var cancelledStatuses = []models.OrderStatus{
	models.OrderStatusCancelledByCustomer,
	models.OrderStatusCancelledByAdmin,
}

// SalesSummary aggregates orders created in [From, To).
type SalesSummary struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OrdersCount    int             `json:"orders_count"`
	CancelledCount int             `json:"cancelled_count"`
	Revenue        decimal.Decimal `json:"revenue"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	DailySales     []DailySales    `json:"daily_sales"`
	TopProducts    []ProductSales  `json:"top_products"`
	CouponUsage    []CouponUsage   `json:"coupon_usage"`
	WarrantyUnits  map[string]int  `json:"warranty_units"`
}

// DailySales contains metrics for a single day
type DailySales struct {
	Date    string          `bun:"day" json:"date"`
	Orders  int             `bun:"orders" json:"orders"`
	Revenue decimal.Decimal `bun:"revenue" json:"revenue"`
}

type ProductSales struct {
	ProductID   string          `bun:"product_id" json:"product_id"`
	ProductName string          `bun:"product_name" json:"product_name"`
	UnitsSold   int             `bun:"units" json:"units_sold"`
	Revenue     decimal.Decimal `bun:"revenue" json:"revenue"`
}

// CouponUsage tracks redemptions per coupon code
type CouponUsage struct {
	Code          string          `bun:"coupon_code" json:"code"`
	UsageCount    int             `bun:"uses" json:"usage_count"`
	TotalDiscount decimal.Decimal `bun:"discount" json:"total_discount"`
}

const topProductsLimit = 10

// Summary excludes cancelled orders from every figure except CancelledCount.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	from, to = from.UTC(), to.UTC()
	out := &SalesSummary{From: from, To: to, WarrantyUnits: map[string]int{}}

	inRange := func(q *bun.SelectQuery, alias string) *bun.SelectQuery {
		return q.Where(alias+"created_at >= ?", from).
			Where(alias+"created_at < ?", to)
	}

	var totals struct {
		Orders   int             `bun:"orders"`
		Revenue  decimal.Decimal `bun:"revenue"`
		Discount decimal.Decimal `bun:"discount"`
	}
	err := inRange(s.db.NewSelect().TableExpr("orders"), "").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(total_amount), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(discount_amount), 0) AS discount").
		Where("status NOT IN (?)", bun.In(cancelledStatuses)).
		Scan(ctx, &totals)
	if err != nil {
		return nil, fmt.Errorf("sales totals: %w", err)
	}
	out.OrdersCount, out.Revenue, out.DiscountTotal = totals.Orders, totals.Revenue, totals.Discount

	err = inRange(s.db.NewSelect().TableExpr("orders"), "").
		ColumnExpr("COUNT(*)").
		Where("status IN (?)", bun.In(cancelledStatuses)).
		Scan(ctx, &out.CancelledCount)
	if err != nil {
		return nil, fmt.Errorf("cancelled count: %w", err)
	}

	err = inRange(s.db.NewSelect().TableExpr("orders"), "").
		ColumnExpr("DATE(created_at) AS day").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(total_amount), 0) AS revenue").
		Where("status NOT IN (?)", bun.In(cancelledStatuses)).
		GroupExpr("DATE(created_at)").
		OrderExpr("day ASC").
		Scan(ctx, &out.DailySales)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}
	for i := range out.DailySales {
		// postgres returns a full timestamp for DATE()
		if d := out.DailySales[i].Date; len(d) > 10 {
			out.DailySales[i].Date = d[:10]
		}
	}

	err = inRange(s.db.NewSelect().TableExpr("order_items AS oi"), "o.").
		Join("JOIN orders AS o ON o.id = oi.order_id").
		ColumnExpr("oi.product_id, oi.product_name").
		ColumnExpr("SUM(oi.quantity) AS units").
		ColumnExpr("SUM(oi.line_total) AS revenue").
		Where("o.status NOT IN (?)", bun.In(cancelledStatuses)).
		GroupExpr("oi.product_id, oi.product_name").
		OrderExpr("units DESC, oi.product_id ASC").
		Limit(topProductsLimit).
		Scan(ctx, &out.TopProducts)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	err = inRange(s.db.NewSelect().TableExpr("orders"), "").
		ColumnExpr("coupon_code").
		ColumnExpr("COUNT(*) AS uses").
		ColumnExpr("COALESCE(SUM(discount_amount), 0) AS discount").
		Where("coupon_code IS NOT NULL").
		Where("status NOT IN (?)", bun.In(cancelledStatuses)).
		GroupExpr("coupon_code").
		OrderExpr("uses DESC, coupon_code ASC").
		Scan(ctx, &out.CouponUsage)
	if err != nil {
		return nil, fmt.Errorf("coupon usage: %w", err)
	}

	var byStatus []struct {
		Status string `bun:"status"`
		N      int    `bun:"n"`
	}
	err = s.db.NewSelect().TableExpr("warranty_units").
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS n").
		GroupExpr("status").
		Scan(ctx, &byStatus)
	if err != nil {
		return nil, fmt.Errorf("warranty status counts: %w", err)
	}
	for _, row := range byStatus {
		out.WarrantyUnits[row.Status] = row.N
	}

	return out, nil
}
