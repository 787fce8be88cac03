package request

import (
	"net/http"

	"edgeguard/pkg/platform/httputil"
)

// BodyLimit caps admin request bodies at maxBytes. A declared Content-Length
// over the cap is refused with 413 before the handler runs; undeclared or
// chunked bodies are cut off by http.MaxBytesReader, which also closes the
// connection once the cap is passed.
//
// Proxied traffic does not use this: the input validator reports oversize
// bodies as security events instead.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteDenied(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
