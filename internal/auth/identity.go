// Package auth verifies bearer tokens issued elsewhere and exposes the
// caller identity to handlers.
package auth

import (
	"context"
	"strings"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the authenticated principal extracted from a bearer token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

func (i *Identity) IsAdmin() bool {
	return i != nil && strings.EqualFold(i.Role, RoleAdmin)
}

type contextKey string

const identityContextKey contextKey = "ordenes-checkout/auth/identity"

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
