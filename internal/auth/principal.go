package auth

import (
	"context"

	"ms-storefront/internal/models"
)

// Principal is the caller resolved once per request. The zero value is an
// anonymous guest.
type Principal struct {
	UserID string
	Role   models.Role
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

// Staff covers the back-office roles allowed to act on warranties.
func (p Principal) Staff() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleTech
}

func (p Principal) Is(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the request's principal, or a guest.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Principal{}
}
