// Package securityheaders sets the static response headers every gateway
// response carries, allowed or denied.
package securityheaders

import (
	"fmt"
	"net/http"
)

// Config tunes the header values. The zero value yields the defaults;
// HSTSExcludeSubdomains drops includeSubDomains from the HSTS header.
type Config struct {
	HSTSMaxAge            int
	HSTSExcludeSubdomains bool
	ContentSecurityPolicy string
	PermissionsPolicy     string
	ReferrerPolicy        string
}

// DefaultConfig returns the production header set.
func DefaultConfig() Config {
	return Config{
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'; object-src 'none'",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HSTSMaxAge <= 0 {
		c.HSTSMaxAge = d.HSTSMaxAge
	}
	if c.ContentSecurityPolicy == "" {
		c.ContentSecurityPolicy = d.ContentSecurityPolicy
	}
	if c.PermissionsPolicy == "" {
		c.PermissionsPolicy = d.PermissionsPolicy
	}
	if c.ReferrerPolicy == "" {
		c.ReferrerPolicy = d.ReferrerPolicy
	}
	return c
}

// Middleware applies the headers before the wrapped handler writes anything,
// so denials produced further down the chain carry them too.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
	if !cfg.HSTSExcludeSubdomains {
		hsts += "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Strict-Transport-Security", hsts)
			h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			h.Set("Permissions-Policy", cfg.PermissionsPolicy)
			h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			next.ServeHTTP(w, r)
		})
	}
}
