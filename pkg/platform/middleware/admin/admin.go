// Package admin guards the operator API behind a shared token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"edgeguard/pkg/platform/httputil"
	"edgeguard/pkg/platform/validation"
	"edgeguard/pkg/requestcontext"
)

type contextKeyActor struct{}

// Actor returns the operator identifier recorded by RequireAdminToken.
// Defaults to "admin" when the caller did not identify itself.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(contextKeyActor{}).(string); ok && actor != "" {
		return actor
	}
	return "admin"
}

// WithActor stores the operator identifier, used by tests and the CLI.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, contextKeyActor{}, actor)
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match expectedToken.
// An empty expectedToken leaves the routes open; main logs a warning in that case.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if expectedToken != "" {
				token := r.Header.Get("X-Admin-Token")
				if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
					logger.WarnContext(ctx, "admin token mismatch",
						"request_id", requestcontext.RequestID(ctx),
						"path", r.URL.Path,
					)
					httputil.WriteDenied(w, http.StatusUnauthorized, "unauthorized", "admin token required")
					return
				}
			}

			if actor := r.Header.Get("X-Admin-Actor"); actor != "" && len(actor) <= validation.MaxActorLength {
				ctx = WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
