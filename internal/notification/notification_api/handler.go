package notification_api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/notification"
	"ms-storefront/internal/utils"
)

type Handler struct {
	Service *notification.Service
	Logger  *logger.Logger
}

func NewHandler(svc *notification.Service, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

// List handles GET /api/notifications?unread=true&limit=20
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.Service.List(r.Context(), p.UserID, unread, limit)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", rows)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.UnreadCount(r.Context(), auth.FromContext(r.Context()).UserID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", map[string]int{"unread": n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := h.Service.MarkRead(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "notification marked as read", nil)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.MarkAllRead(r.Context(), auth.FromContext(r.Context()).UserID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", map[string]int64{"updated": n})
}
