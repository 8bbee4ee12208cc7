package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/auth"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the caller presenting key. The stored hash is
// compared in constant time.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, errUnauthorized
	}
	hash := HashAPIKey(key, s.pepper)

	info, err := s.apikeys.FindByHash(ctx, hash)
	if err != nil {
		zctx.From(ctx).Debug("API key lookup failed", zap.Error(err))
		return auth.Principal{}, errUnauthorized
	}

	presented, err := hex.DecodeString(hash)
	if err != nil {
		return auth.Principal{}, errUnauthorized
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errUnauthorized
	}
	if subtle.ConstantTimeCompare(presented, stored) != 1 {
		return auth.Principal{}, errUnauthorized
	}

	return auth.PrincipalFromKey(info), nil
}

// RequireScope rejects requests without a valid API key with 401 and keys
// lacking scope with 403. The caller is stored in the request context.
func (s *SecurityHandler) RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key_id", p.UserID))
		if !p.HasScope(scope) {
			zctx.From(ctx).Info("API key lacks scope", zap.String("scope", scope))
			httpmiddleware.WriteError(w, http.StatusForbidden, scope+" scope required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, p)))
	})
}

// Require guards the customer order routes.
func (s *SecurityHandler) Require(next http.Handler) http.Handler {
	return s.RequireScope(auth.ScopeOrders, next)
}

// RequireAdmin guards the admin routes.
func (s *SecurityHandler) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireScope(auth.ScopeAdmin, next)
}
