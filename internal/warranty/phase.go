package warranty

import (
	"math"
	"time"

	"ms-storefront/internal/models"
)

// PhaseAt derives the phase of u at now from its dates alone; status is
// not consulted.
func PhaseAt(u *models.WarrantyUnit, now time.Time) models.WarrantyPhase {
	if u.ExchangeUntil != nil && !now.After(*u.ExchangeUntil) {
		return models.PhaseExchange
	}
	if !now.After(u.EndDate) {
		return models.PhaseRepair
	}
	return models.PhaseExpired
}

// DaysRemaining counts whole days left until end_date, rounded up, and
// never goes below zero.
func DaysRemaining(u *models.WarrantyUnit, now time.Time) int {
	left := u.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
