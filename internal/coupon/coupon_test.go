package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ms-storefront/internal/models"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int { return &v }

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	midYear     = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
)

func sale10() *models.Coupon {
	return &models.Coupon{
		Code:          "SALE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: dec(10),
		MaxDiscount:   decPtr(50000),
		ValidFrom:     windowStart,
		ValidUntil:    windowEnd,
		IsActive:      true,
	}
}

func TestSale10IsCappedAtMaxDiscount(t *testing.T) {
	subtotal := dec(1000000)
	res := Evaluate(sale10(), subtotal, false, midYear)

	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec(50000)), "discount %s", res.Discount)
	assert.True(t, subtotal.Sub(res.Discount).Equal(dec(950000)))
}

func TestPercentageBelowCap(t *testing.T) {
	res := Evaluate(sale10(), dec(200000), false, midYear)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec(20000)))
}

func TestFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	c := sale10()
	c.DiscountType = models.DiscountFixed
	c.DiscountValue = dec(300000)
	c.MaxDiscount = nil

	res := Evaluate(c, dec(120000), false, midYear)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec(120000)))

	res = Evaluate(c, dec(500000), false, midYear)
	assert.True(t, res.Discount.Equal(dec(300000)))
}

func TestPercentageOverHundredIsCappedAtSubtotal(t *testing.T) {
	c := sale10()
	c.DiscountValue = dec(150)
	c.MaxDiscount = nil

	res := Evaluate(c, dec(80000), false, midYear)
	assert.True(t, res.Discount.Equal(dec(80000)))
}

func TestWindowBoundaries(t *testing.T) {
	c := sale10()

	assert.True(t, Evaluate(c, dec(100), false, windowStart).Valid, "valid exactly at valid_from")
	assert.True(t, Evaluate(c, dec(100), false, windowEnd).Valid, "valid exactly at valid_until")
	assert.Equal(t, OutOfWindow, Evaluate(c, dec(100), false, windowStart.Add(-time.Nanosecond)).Rejection)
	assert.Equal(t, OutOfWindow, Evaluate(c, dec(100), false, windowEnd.Add(time.Nanosecond)).Rejection)
}

func TestRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *models.Coupon)
		used   bool
		want   Rejection
	}{
		{"inactive", func(c *models.Coupon) { c.IsActive = false }, false, Inactive},
		{"exhausted", func(c *models.Coupon) { c.UsageLimit = intPtr(5); c.UsedCount = 5 }, false, UsageExhausted},
		{"below minimum", func(c *models.Coupon) { c.MinOrderValue = decPtr(2000000) }, false, BelowMinOrder},
		{"used by user", func(c *models.Coupon) {}, true, AlreadyUsedByUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := sale10()
			tc.mutate(c)
			res := Evaluate(c, dec(1000000), tc.used, midYear)
			assert.False(t, res.Valid)
			assert.Equal(t, tc.want, res.Rejection)
			assert.True(t, res.Discount.IsZero())
		})
	}

	assert.Equal(t, NotFound, Evaluate(nil, dec(1), false, midYear).Rejection)
}

func TestUsageLimitWithRemainingUses(t *testing.T) {
	c := sale10()
	c.UsageLimit = intPtr(5)
	c.UsedCount = 4
	assert.True(t, Evaluate(c, dec(1000), false, midYear).Valid)
}

func TestDiscountBounds(t *testing.T) {
	subtotals := []int64{0, 1, 999, 50000, 499999, 500000, 500001, 10000000}
	for _, s := range subtotals {
		res := Evaluate(sale10(), dec(s), false, midYear)
		assert.True(t, res.Discount.LessThanOrEqual(dec(s)), "subtotal %d", s)
		assert.True(t, res.Discount.LessThanOrEqual(dec(50000)), "subtotal %d", s)
		assert.False(t, res.Discount.IsNegative())
	}
}
