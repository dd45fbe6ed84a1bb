package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// AccountLoader is satisfied by *authcore.Engine.
type AccountLoader interface {
	AccessValidator
	Profile(ctx context.Context, accountID string) (authcore.Profile, error)
}

type profileContextKey struct{}

// ProfileFromContext returns the profile stored by RequireAccount.
func ProfileFromContext(ctx context.Context) (authcore.Profile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(authcore.Profile)
	return p, ok
}

// RequireAccount behaves like RequireAccess and additionally loads the
// account. Missing accounts get 401; store failures get 503.
func RequireAccount(l AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(l, r)
			if !ok {
				unauthorized(w)
				return
			}

			profile, err := l.Profile(r.Context(), claims.AccountID)
			switch {
			case errors.Is(err, authcore.ErrNotFound):
				unauthorized(w)
				return
			case err != nil:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, profileContextKey{}, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
