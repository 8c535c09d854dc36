package httputil

import (
	"context"
	"net/http"
	"strings"
)

// TokenValidator resolves a bearer token to the acting user's email.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (actor string, err error)
}

type actorKey struct{}

// AuthMiddleware resolves the request actor from a bearer token.
// With required unset, anonymous requests pass, but a malformed or invalid
// Authorization header is still rejected.
func AuthMiddleware(validator TokenValidator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			if header == "" {
				Error(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}
			actor, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the request actor, or "" for anonymous requests.
func GetActor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
