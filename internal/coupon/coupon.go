package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/models"
)

type Rejection string

const (
	NotFound          Rejection = "NOT_FOUND"
	Inactive          Rejection = "INACTIVE"
	OutOfWindow       Rejection = "OUT_OF_WINDOW"
	UsageExhausted    Rejection = "USAGE_EXHAUSTED"
	BelowMinOrder     Rejection = "BELOW_MIN_ORDER"
	AlreadyUsedByUser Rejection = "ALREADY_USED_BY_USER"
)

var rejectionMessages = map[Rejection]string{
	NotFound:          "coupon does not exist",
	Inactive:          "coupon is not active",
	OutOfWindow:       "coupon is not valid at this time",
	UsageExhausted:    "coupon usage limit has been reached",
	BelowMinOrder:     "order subtotal is below the coupon minimum",
	AlreadyUsedByUser: "you have already used this coupon",
}

// Err converts the rejection into a business error carrying its code.
func (r Rejection) Err() error {
	return apperr.Business(string(r), rejectionMessages[r])
}

type Result struct {
	Valid     bool            `json:"valid"`
	Discount  decimal.Decimal `json:"discount"`
	Rejection Rejection       `json:"rejection,omitempty"`
}

func reject(r Rejection) Result {
	return Result{Rejection: r, Discount: decimal.Zero}
}

// Evaluate decides whether c applies to an order of the given subtotal and
// how much it takes off. It does not touch storage.
//
// The window is inclusive at both ends: valid at valid_from and at
// valid_until, invalid once now is past valid_until.
func Evaluate(c *models.Coupon, subtotal decimal.Decimal, usedByUser bool, now time.Time) Result {
	if c == nil {
		return reject(NotFound)
	}
	if !c.IsActive {
		return reject(Inactive)
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return reject(OutOfWindow)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return reject(UsageExhausted)
	}
	if c.MinOrderValue != nil && subtotal.LessThan(*c.MinOrderValue) {
		return reject(BelowMinOrder)
	}
	if usedByUser {
		return reject(AlreadyUsedByUser)
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case models.DiscountFixed:
		discount = c.DiscountValue
	default:
		return reject(Inactive)
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return Result{Valid: true, Discount: discount}
}
