package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/energy-community-auth/auth"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyPrincipal stores the authenticated account and credential
	ContextKeyPrincipal ContextKey = "principal"
	// ContextKeyBearer stores the raw bearer credential that was presented
	ContextKeyBearer ContextKey = "bearer"
)

// RequireAuth is middleware that validates the bearer credential in the
// Authorization header: a signed access token or an opaque session id.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				writeJSONError(w, "invalid_token", "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			principal, err := s.auth.Authenticate(r.Context(), raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				s.writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			ctx = context.WithValue(ctx, ContextKeyBearer, raw)
			next(w, r.WithContext(ctx))
		}
	}
}

// PrincipalFromContext returns the caller set by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, error) {
	principal, ok := ctx.Value(ContextKeyPrincipal).(*auth.Principal)
	if !ok || principal == nil {
		return nil, apperrors.ErrInvalidToken
	}
	return principal, nil
}

func bearerFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(ContextKeyBearer).(string)
	return raw
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
