package auth

import (
	"net/http"
	"strings"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

// Middleware resolves the session on every request. Requests without a
// token continue as guests; a bad or revoked token is rejected.
type Middleware struct {
	Tokens      *Tokens
	Revocations Revocations
	CookieName  string
	Logger      *logger.Logger
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func (m *Middleware) TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(m.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (m *Middleware) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := m.TokenFromRequest(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Tokens.Parse(raw)
		if err != nil {
			m.Logger.LogSecurity("INVALID_TOKEN", r.Method+" "+r.URL.Path)
			utils.WriteError(w, m.Logger, apperr.Unauthorized("session is invalid or expired"))
			return
		}

		if m.Revocations != nil {
			revoked, err := m.Revocations.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				utils.WriteError(w, m.Logger, err)
				return
			}
			if revoked {
				utils.WriteError(w, m.Logger, apperr.Unauthorized("session has been logged out"))
				return
			}
		}

		p := Principal{UserID: claims.Subject, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			utils.WriteError(w, nil, apperr.Unauthorized("login required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if !p.Authenticated() {
				utils.WriteError(w, nil, apperr.Unauthorized("login required"))
				return
			}
			if !p.Is(roles...) {
				utils.WriteError(w, nil, apperr.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
