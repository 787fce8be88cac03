// Package requesttime pins a single "now" for the whole request, so the
// security pipeline, audit entries and stores all agree on one timestamp.
package requesttime

import (
	"net/http"
	"time"

	"edgeguard/pkg/requestcontext"
)

// Middleware pins the wall clock at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock pins now() instead of the wall clock. Tests use it to drive
// window and block expiry deterministically through the full router.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
