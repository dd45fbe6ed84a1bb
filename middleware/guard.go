package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// AccessValidator is satisfied by *authcore.Engine.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) (*authcore.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*authcore.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.AccessClaims)
	return claims, ok
}

// RequireAccess rejects requests without a valid access token with 401.
func RequireAccess(v AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(v, r)
			if !ok {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(v AccessValidator, r *http.Request) (*authcore.AccessClaims, bool) {
	if v == nil {
		return nil, false
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, false
	}
	claims, err := v.ValidateAccess(r.Context(), token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
