package eventlog_api

import (
	"net/http"
	"strconv"

	"github.com/uptrace/bun"

	"ms-storefront/internal/eventlog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

type Handler struct {
	DB     *bun.DB
	Logger *logger.Logger
}

func NewHandler(db *bun.DB, log *logger.Logger) *Handler {
	return &Handler{DB: db, Logger: log}
}

// List handles GET /api/admin/event-logs with optional entity_type,
// entity_id, action, limit and offset query params.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, err := eventlog.List(r.Context(), h.DB, eventlog.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", rows)
}
