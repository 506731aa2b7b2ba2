package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID                   string          `bun:"id,pk" json:"id"`
	SKU                  string          `bun:"sku,unique,notnull" json:"sku"`
	Name                 string          `bun:"name,notnull" json:"name"`
	Price                decimal.Decimal `bun:"price,type:numeric,notnull" json:"price"`
	StockQuantity        int             `bun:"stock_quantity,notnull" json:"stock_quantity"`
	IsActive             bool            `bun:"is_active,notnull" json:"is_active"`
	PromoStart           *time.Time      `bun:"promo_start,nullzero" json:"promo_start,omitempty"`
	PromoEnd             *time.Time      `bun:"promo_end,nullzero" json:"promo_end,omitempty"`
	PromoDiscountPercent int             `bun:"promo_discount_percent,notnull" json:"promo_discount_percent"`
	WarrantyMonths       int             `bun:"warranty_months,notnull" json:"warranty_months"`
	ExchangeDays         int             `bun:"exchange_days,notnull" json:"exchange_days"`
	CreatedAt            time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// EffectivePrice is the unit price charged at the given instant, with the
// promotional discount applied while the promo window is open.
func (p *Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.PromoDiscountPercent <= 0 || p.PromoStart == nil || p.PromoEnd == nil {
		return p.Price
	}
	if now.Before(*p.PromoStart) || now.After(*p.PromoEnd) {
		return p.Price
	}
	pct := p.PromoDiscountPercent
	if pct > 100 {
		pct = 100
	}
	return p.Price.Mul(decimal.NewFromInt(int64(100 - pct))).Div(decimal.NewFromInt(100)).Round(2)
}
