package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusNew                 OrderStatus = "NEW"
	OrderStatusConfirmed           OrderStatus = "CONFIRMED"
	OrderStatusShipping            OrderStatus = "SHIPPING"
	OrderStatusDelivered           OrderStatus = "DELIVERED"
	OrderStatusCancelledByCustomer OrderStatus = "CANCELLED_BY_CUSTOMER"
	OrderStatusCancelledByAdmin    OrderStatus = "CANCELLED_BY_ADMIN"
)

// CustomerCancellable reports whether a customer may still cancel.
func (s OrderStatus) CustomerCancellable() bool {
	return s == OrderStatusNew || s == OrderStatusConfirmed
}

func (s OrderStatus) Cancelled() bool {
	return s == OrderStatusCancelledByCustomer || s == OrderStatusCancelledByAdmin
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string          `bun:"id,pk" json:"id"`
	Code            string          `bun:"code,unique,notnull" json:"code"`
	UserID          string          `bun:"user_id,nullzero" json:"user_id,omitempty"`
	CustomerName    string          `bun:"customer_name,notnull" json:"customer_name"`
	CustomerPhone   string          `bun:"customer_phone,notnull" json:"customer_phone"`
	CustomerEmail   string          `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	ShippingAddress string          `bun:"shipping_address,nullzero" json:"shipping_address,omitempty"`
	Note            string          `bun:"note,nullzero" json:"note,omitempty"`
	Status          OrderStatus     `bun:"status,notnull" json:"status"`
	Subtotal        decimal.Decimal `bun:"subtotal,type:numeric,notnull" json:"subtotal"`
	DiscountAmount  decimal.Decimal `bun:"discount_amount,type:numeric,notnull" json:"discount_amount"`
	TotalAmount     decimal.Decimal `bun:"total_amount,type:numeric,notnull" json:"total_amount"`
	CouponID        string          `bun:"coupon_id,nullzero" json:"coupon_id,omitempty"`
	CouponCode      string          `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`
	CancelReason    string          `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// OrderItem snapshots the product as it was at purchase time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID             string          `bun:"id,pk" json:"id"`
	OrderID        string          `bun:"order_id,notnull" json:"order_id"`
	ProductID      string          `bun:"product_id,notnull" json:"product_id"`
	ProductName    string          `bun:"product_name,notnull" json:"product_name"`
	UnitPrice      decimal.Decimal `bun:"unit_price,type:numeric,notnull" json:"unit_price"`
	Quantity       int             `bun:"quantity,notnull" json:"quantity"`
	LineTotal      decimal.Decimal `bun:"line_total,type:numeric,notnull" json:"line_total"`
	WarrantyMonths int             `bun:"warranty_months,notnull" json:"warranty_months"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// MaxLineQuantity caps the quantity of one product in a cart, after
// repeated lines are summed.
const MaxLineQuantity = 1000

type OrderRequestItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=1000"`
}

type OrderRequest struct {
	Items           []OrderRequestItem `json:"items" validate:"required,min=1,dive"`
	CustomerName    string             `json:"customer_name" validate:"required,max=200"`
	CustomerPhone   string             `json:"customer_phone" validate:"required,min=8,max=20"`
	CustomerEmail   string             `json:"customer_email" validate:"omitempty,email"`
	ShippingAddress string             `json:"shipping_address" validate:"max=500"`
	Note            string             `json:"note" validate:"max=1000"`
	CouponCode      string             `json:"coupon_code" validate:"max=64"`
}

type OrderDetails struct {
	Order         Order          `json:"order"`
	Items         []OrderItem    `json:"items"`
	WarrantyUnits []WarrantyUnit `json:"warranty_units"`
}
