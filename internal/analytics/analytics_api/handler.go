package analytics_api

import (
	"net/http"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/apperr"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

const (
	dateLayout    = "2006-01-02"
	defaultWindow = 30 * 24 * time.Hour
	maxWindowDays = 366
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log, Now: time.Now}
}

// Summary handles GET /api/admin/analytics/summary?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Both bounds are whole UTC days and inclusive; the default is the last 30 days.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	to := h.Now().UTC()
	from := to.Add(-defaultWindow)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			utils.WriteError(w, h.Logger, apperr.Validation("from must be YYYY-MM-DD"))
			return
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			utils.WriteError(w, h.Logger, apperr.Validation("to must be YYYY-MM-DD"))
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		utils.WriteError(w, h.Logger, apperr.Validation("from must be before to"))
		return
	}
	if to.Sub(from) > maxWindowDays*24*time.Hour {
		utils.WriteError(w, h.Logger, apperr.Validation("range is limited to one year"))
		return
	}

	summary, err := h.Service.Summary(r.Context(), from, to)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", summary)
}
