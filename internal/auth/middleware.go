package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// ActorResolver turns a bearer token into an actor.
type ActorResolver interface {
	Lookup(ctx context.Context, token string) (shared.Actor, error)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved actor in the request context.
func RequireAuth(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			actor, err := resolver.Lookup(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
