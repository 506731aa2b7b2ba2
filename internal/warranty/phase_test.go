package warranty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-storefront/internal/models"
)

func unitAt(start time.Time, months, exchangeDays int) *models.WarrantyUnit {
	u := &models.WarrantyUnit{
		StartDate: start,
		EndDate:   start.AddDate(0, months, 0),
		Status:    models.WarrantyActive,
	}
	if exchangeDays > 0 {
		eu := start.AddDate(0, 0, exchangeDays)
		u.ExchangeUntil = &eu
	}
	return u
}

func TestPhaseAt(t *testing.T) {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	u := unitAt(start, 12, 7)

	cases := []struct {
		name string
		at   time.Time
		want models.WarrantyPhase
	}{
		{"day of purchase", start, models.PhaseExchange},
		{"last instant of exchange", *u.ExchangeUntil, models.PhaseExchange},
		{"just past exchange", u.ExchangeUntil.Add(time.Second), models.PhaseRepair},
		{"mid warranty", start.AddDate(0, 6, 0), models.PhaseRepair},
		{"exactly at end", u.EndDate, models.PhaseRepair},
		{"after end", u.EndDate.Add(time.Second), models.PhaseExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PhaseAt(u, tc.at))
		})
	}
}

func TestPhaseWithoutExchangePolicy(t *testing.T) {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	u := unitAt(start, 6, 0)

	assert.Equal(t, models.PhaseRepair, PhaseAt(u, start))
	assert.Equal(t, models.PhaseExpired, PhaseAt(u, start.AddDate(0, 7, 0)))
}

func TestPhaseAfterExchangeVoided(t *testing.T) {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	u := unitAt(start, 12, 30)
	now := start.AddDate(0, 0, 3)
	u.ExchangeUntil = &now

	assert.Equal(t, models.PhaseRepair, PhaseAt(u, now.Add(time.Millisecond)))
}

func TestDaysRemaining(t *testing.T) {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	u := unitAt(start, 1, 0)

	assert.Equal(t, 31, DaysRemaining(u, start))
	assert.Equal(t, 1, DaysRemaining(u, u.EndDate.Add(-time.Hour)))
	assert.Equal(t, 0, DaysRemaining(u, u.EndDate.Add(time.Hour)))
}

func TestNewUnits(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	order := &models.Order{ID: "o1", UserID: "u1"}
	item := &models.OrderItem{ID: "i1", ProductID: "p1", Quantity: 3, WarrantyMonths: 12}

	units := NewUnits(order, item, 7, now)
	assert.Len(t, units, 3)
	codes := map[string]bool{}
	for _, u := range units {
		codes[u.Code] = true
		assert.Equal(t, "u1", u.UserID)
		assert.Equal(t, now.AddDate(1, 0, 0), u.EndDate)
		assert.Equal(t, now.AddDate(0, 0, 7), *u.ExchangeUntil)
		assert.Equal(t, models.WarrantyActive, u.Status)
	}
	assert.Len(t, codes, 3)

	item.WarrantyMonths = 0
	assert.Empty(t, NewUnits(order, item, 7, now))

	item.WarrantyMonths = 12
	item.Quantity = -2
	assert.Empty(t, NewUnits(order, item, 7, now))
}
