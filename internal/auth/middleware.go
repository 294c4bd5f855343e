package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/snaplist-app/snaplist/internal/api"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.jwt.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware resolves an identity when a valid bearer token is
// present and falls through anonymously otherwise. A malformed or expired
// token is still rejected: silently downgrading a signed-in caller to the
// anonymous pool would double-charge them against the per-IP cap.
func OptionalMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.jwt.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*AccessClaims)
	return claims
}
