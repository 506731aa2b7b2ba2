package warranty_api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
	"ms-storefront/internal/warranty"
)

const CronSecretHeader = "X-Cron-Secret"

type Handler struct {
	Service    *warranty.Service
	CheckURL   string
	CronSecret string
	Logger     *logger.Logger
}

func NewHandler(svc *warranty.Service, checkURL, cronSecret string, log *logger.Logger) *Handler {
	return &Handler{Service: svc, CheckURL: checkURL, CronSecret: cronSecret, Logger: log}
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Check(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", result)
}

func (h *Handler) QR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.CardQR(r.Context(), chi.URLParam(r, "code"), h.CheckURL)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	units, err := h.Service.ListForUser(r.Context(), p.UserID)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", units)
}

func (h *Handler) CreateServiceTicket(w http.ResponseWriter, r *http.Request) {
	var req warranty.ServiceTicketRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	ticket, err := h.Service.CreateServiceTicket(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "service request received", ticket)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.Logger.Info("API", fmt.Sprintf("Terminate warranty: id=%s", id))

	unit, err := h.Service.Terminate(r.Context(), auth.FromContext(r.Context()), id, req.Reason)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "warranty terminated", unit)
}

func (h *Handler) VoidExchange(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.Logger.Info("API", fmt.Sprintf("Void exchange: id=%s", id))

	unit, err := h.Service.VoidExchange(r.Context(), auth.FromContext(r.Context()), id, req.Reason)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "exchange right voided", unit)
}

func (h *Handler) UpdateServiceTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req warranty.ServiceStatusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	ticket, err := h.Service.UpdateServiceTicketStatus(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "service request updated", ticket)
}

// SweepExpired is hit by the external scheduler. When a cron secret is
// configured the caller must present it.
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	if h.CronSecret != "" {
		got := r.Header.Get(CronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.CronSecret)) != 1 {
			h.Logger.LogSecurity("CRON_REJECTED", fmt.Sprintf("bad cron secret from %s", r.RemoteAddr))
			utils.WriteError(w, h.Logger, apperr.Unauthorized("invalid cron secret"))
			return
		}
	}

	res, err := h.Service.SweepExpired(r.Context())
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "warranty sweep finished", res)
}
