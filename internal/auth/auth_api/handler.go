package auth_api

import (
	"net/http"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

type Handler struct {
	Service      *auth.Service
	Middleware   *auth.Middleware
	CookieSecure bool
	Logger       *logger.Logger
}

func (h *Handler) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	sess, err := h.Service.Register(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.setCookie(w, sess.Token, sess.ExpiresAt)
	utils.WriteSuccess(w, http.StatusCreated, "registered", sess)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	sess, err := h.Service.Login(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.setCookie(w, sess.Token, sess.ExpiresAt)
	utils.WriteSuccess(w, http.StatusOK, "logged in", sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), h.Middleware.TokenFromRequest(r)); err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	h.setCookie(w, "", time.Unix(0, 0))
	utils.WriteSuccess(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.Me(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		utils.WriteError(w, h.Logger, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", user)
}
