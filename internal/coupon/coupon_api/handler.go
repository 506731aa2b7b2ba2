package coupon_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/coupon"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

type Handler struct {
	CouponService *coupon.Service
	Logger        *logger.Logger
}

func NewHandler(svc *coupon.Service, log *logger.Logger) *Handler {
	return &Handler{CouponService: svc, Logger: log}
}

type validateResponse struct {
	Code      string           `json:"code"`
	Valid     bool             `json:"valid"`
	Discount  string           `json:"discount"`
	Total     string           `json:"total"`
	Rejection coupon.Rejection `json:"rejection,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Validate previews a coupon against a subtotal. It never redeems.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req coupon.ValidateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	if req.Subtotal.IsNegative() {
		utils.WriteError(w, h.Logger, apperr.Validation("subtotal cannot be negative"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("ValidateCoupon: code=%s", req.Code))

	p := auth.FromContext(r.Context())
	_, res, err := h.CouponService.Validate(r.Context(), h.CouponService.DB, req.Code, req.Subtotal, p.UserID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}

	out := validateResponse{
		Code:      coupon.NormalizeCode(req.Code),
		Valid:     res.Valid,
		Discount:  res.Discount.StringFixed(2),
		Total:     req.Subtotal.Sub(res.Discount).StringFixed(2),
		Rejection: res.Rejection,
	}
	if !res.Valid {
		if ae, ok := apperr.As(res.Rejection.Err()); ok {
			out.Message = ae.Message
		}
	}
	utils.WriteSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req coupon.CreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	c, err := h.CouponService.Create(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "coupon created", c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.CouponService.List(r.Context())
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", rows)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.CouponService.SetActive(r.Context(), auth.FromContext(r.Context()), id, req.Active); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.Logger.Info("COUPON", fmt.Sprintf("Coupon %s active=%t", id, req.Active))
	utils.WriteSuccess(w, http.StatusOK, "coupon updated", nil)
}
