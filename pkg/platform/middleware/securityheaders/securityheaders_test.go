package securityheaders

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	t.Run("sets headers on allowed responses", func(t *testing.T) {
		handler := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
		assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
		assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
	})

	t.Run("sets headers on denied responses", func(t *testing.T) {
		handler := Middleware(DefaultConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "blocked", http.StatusForbidden)
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("honours overrides", func(t *testing.T) {
		handler := Middleware(Config{HSTSMaxAge: 600, ContentSecurityPolicy: "default-src 'none'"})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "max-age=600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
		assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	})

	t.Run("zero value matches defaults", func(t *testing.T) {
		headersFor := func(cfg Config) http.Header {
			w := httptest.NewRecorder()
			Middleware(cfg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
				ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			return w.Header()
		}

		assert.Equal(t, headersFor(DefaultConfig()), headersFor(Config{}))
	})

	t.Run("subdomains can be excluded", func(t *testing.T) {
		handler := Middleware(Config{HSTSExcludeSubdomains: true})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "max-age=31536000", w.Header().Get("Strict-Transport-Security"))
	})
}
