package order_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/utils"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	p := auth.FromContext(r.Context())
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: items=%d user=%q coupon=%q", len(req.Items), p.UserID, req.CouponCode))

	details, err := h.OrderService.PlaceOrder(r.Context(), p, req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "order placed", details)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	details, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", details)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	orders, err := h.OrderService.ListOrdersForUser(r.Context(), p.UserID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", orders)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: orderId=%s", orderID))

	o, err := h.OrderService.CancelOrder(r.Context(), auth.FromContext(r.Context()), orderID, req.Reason)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order cancelled", o)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
	Reason string             `json:"reason" validate:"max=1000"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req statusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateStatus: orderId=%s status=%s", orderID, req.Status))

	o, err := h.OrderService.UpdateStatus(r.Context(), auth.FromContext(r.Context()), orderID, req.Status, req.Reason)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order updated", o)
}
