package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"edgeguard/pkg/requestcontext"
)

// MaxForwardHeaderLength bounds forwarding headers to keep header injection
// out of keys and logs.
const MaxForwardHeaderLength = 500

// forwardHeaders are consulted in order; the first usable address wins.
var forwardHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustForwardHeaders trusts forwarding headers from any peer. Set when
	// the gateway only ever receives traffic from a CDN or load balancer.
	TrustForwardHeaders bool
	// TrustedProxies lists peers allowed to set forwarding headers when
	// TrustForwardHeaders is false.
	TrustedProxies []netip.Prefix
}

// DefaultConfig returns a Config that trusts no forwarding headers.
func DefaultConfig() *Config {
	return &Config{}
}

// Middleware resolves the client key for every request.
type Middleware struct {
	config *Config
}

// NewMiddleware creates a new metadata middleware with the given config.
func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Middleware{config: cfg}
}

// Handler stores the client key and User-Agent in the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.ClientKey(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientKey derives the rate-limiting key for r.
//
// With trusted forwarding headers the order is X-Forwarded-For (first hop),
// X-Real-IP, CF-Connecting-IP, then "unknown". Otherwise the peer address is used.
func (m *Middleware) ClientKey(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if !m.trustsForwarding(remoteIP) {
		if remoteIP == "" {
			return requestcontext.UnknownClient
		}
		return remoteIP
	}

	for _, name := range forwardHeaders {
		if ip, ok := headerAddr(r.Header.Get(name)); ok {
			return ip
		}
	}
	return requestcontext.UnknownClient
}

func (m *Middleware) trustsForwarding(remoteIP string) bool {
	if m.config.TrustForwardHeaders {
		return true
	}
	return m.isTrustedProxy(remoteIP)
}

// headerAddr returns the first address of a forwarding header if it parses,
// in the same canonical form parseRemoteAddr yields for RemoteAddr.
func headerAddr(value string) (string, bool) {
	if value == "" || len(value) > MaxForwardHeaderLength {
		return "", false
	}
	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)
	addr, err := netip.ParseAddr(first)
	if err != nil {
		return "", false
	}
	return addr.WithZone("").Unmap().String(), true
}

func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr extracts the IP from RemoteAddr (strips port).
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().WithZone("").Unmap().String()
	}
	if addr, err := netip.ParseAddr(strings.Trim(remoteAddr, "[]")); err == nil {
		return addr.WithZone("").Unmap().String()
	}
	return ""
}
