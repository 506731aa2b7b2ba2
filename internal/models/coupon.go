package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID            string           `bun:"id,pk" json:"id"`
	Code          string           `bun:"code,unique,notnull" json:"code"`
	DiscountType  DiscountType     `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue decimal.Decimal  `bun:"discount_value,type:numeric,notnull" json:"discount_value"`
	MinOrderValue *decimal.Decimal `bun:"min_order_value,type:numeric,nullzero" json:"min_order_value,omitempty"`
	MaxDiscount   *decimal.Decimal `bun:"max_discount,type:numeric,nullzero" json:"max_discount,omitempty"`
	ValidFrom     time.Time        `bun:"valid_from,notnull" json:"valid_from"`
	ValidUntil    time.Time        `bun:"valid_until,notnull" json:"valid_until"`
	UsageLimit    *int             `bun:"usage_limit,nullzero" json:"usage_limit,omitempty"`
	UsedCount     int              `bun:"used_count,notnull" json:"used_count"`
	IsActive      bool             `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// CouponUsage allows one use of a coupon per user.
type CouponUsage struct {
	bun.BaseModel `bun:"table:coupon_usages"`

	ID       string    `bun:"id,pk" json:"id"`
	CouponID string    `bun:"coupon_id,notnull,unique:coupon_user" json:"coupon_id"`
	UserID   string    `bun:"user_id,notnull,unique:coupon_user" json:"user_id"`
	OrderID  string    `bun:"order_id,notnull" json:"order_id"`
	UsedAt   time.Time `bun:"used_at,notnull" json:"used_at"`
}
