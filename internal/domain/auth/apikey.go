package auth

import (
	"context"
	"slices"
)

// Scopes granted to API keys.
const (
	ScopeOrders = "orders"
	ScopeAdmin  = "admin"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Name   string
	Scopes []string
}

// HasScope reports whether the caller was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// IsAdmin reports whether the caller may use admin operations.
func (p Principal) IsAdmin() bool {
	return p.HasScope(ScopeAdmin)
}

// PrincipalFromKey converts a stored API key into the caller identity.
func PrincipalFromKey(info *APIKeyInfo) Principal {
	return Principal{
		UserID: info.ID,
		Name:   info.Name,
		Scopes: info.Scopes,
	}
}

type principalKey struct{}

// WithPrincipal stores the caller in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
