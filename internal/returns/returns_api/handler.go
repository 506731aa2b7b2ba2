package returns_api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/returns"
	"ms-storefront/internal/utils"
)

type Handler struct {
	Service *returns.Service
	Logger  *logger.Logger
}

func NewHandler(svc *returns.Service, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req returns.CreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	rr, err := h.Service.Create(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "return request submitted", rr)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	rows, err := h.Service.List(r.Context(), returns.Filter{UserID: p.UserID})
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", rows)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	rows, err := h.Service.List(r.Context(), returns.Filter{
		Status: models.ReturnStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", rows)
}

type resolveRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Service.Approve, "return request approved")
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Service.Reject, "return request rejected")
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, auth.Principal, string, string) (*models.ReturnRequest, error), msg string) {
	var req resolveRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	rr, err := fn(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, msg, rr)
}
