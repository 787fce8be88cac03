package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"edgeguard/internal/platform/config"
	secconfig "edgeguard/internal/security/config"
)

// WiringSuite boots the gateway in memory-only mode against a fake upstream.
//
// Justification: the wiring is where stage order, admin routes and the proxy
// meet; unit tests cover each piece but not that they share one registry.
type WiringSuite struct {
	suite.Suite
	upstream *httptest.Server
	app      *app
	hits     int
}

func TestWiringSuite(t *testing.T) {
	suite.Run(t, new(WiringSuite))
}

func (s *WiringSuite) SetupTest() {
	s.hits = 0
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits++
		_, _ = io.WriteString(w, "upstream ok")
	}))
	s.app = s.build(s.upstream.URL)
}

func (s *WiringSuite) TearDownTest() {
	s.app.close()
	s.upstream.Close()
}

func (s *WiringSuite) build(upstream string) *app {
	cfg := config.Server{
		Environment:   "test",
		AdminToken:    "secret",
		UpstreamURL:   upstream,
		UpstreamRate:  100,
		UpstreamBurst: 100,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := build(context.Background(), cfg, secconfig.DefaultConfig(), log, prometheus.NewRegistry())
	s.Require().NoError(err)
	return a
}

func (s *WiringSuite) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-Admin-Token", "secret")
		req.Header.Set("X-Admin-Actor", "ops")
	}
	rec := httptest.NewRecorder()
	s.app.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Proxy path
// =============================================================================

func (s *WiringSuite) TestAllowedRequestReachesUpstream() {
	rec := s.do(http.MethodGet, "/orders", "", false)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("upstream ok", rec.Body.String())
	s.Equal(1, s.hits)
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *WiringSuite) TestMaliciousQueryIsRejectedBeforeUpstream() {
	rec := s.do(http.MethodGet, "/search?q=1%27%20OR%201=1%20--", "", false)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Zero(s.hits)
}

func (s *WiringSuite) TestBlockedClientIsDenied() {
	rec := s.do(http.MethodPost, "/admin/ip/block", `{"ip":"192.0.2.10","reason":"abuse report"}`, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/orders", "", false)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), `"error":"blocked"`)
	s.Zero(s.hits)

	rec = s.do(http.MethodGet, "/admin/ip/blocked", "", true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "192.0.2.10")
}

// =============================================================================
// Operator surface
// =============================================================================

func (s *WiringSuite) TestAdminRequiresToken() {
	rec := s.do(http.MethodGet, "/admin/security/stats", "", false)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *WiringSuite) TestStatsAreServed() {
	s.do(http.MethodGet, "/orders", "", false)

	rec := s.do(http.MethodGet, "/admin/security/stats?hours=1", "", true)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *WiringSuite) TestHealthBypassesPipeline() {
	rec := s.do(http.MethodGet, "/health/live", "", false)
	s.Equal(http.StatusOK, rec.Code)
	s.Zero(s.hits)
}

func TestNoUpstreamReturnsNotFound(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := build(context.Background(), config.Server{Environment: "test"}, secconfig.DefaultConfig(), log, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "192.0.2.20:4000"
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not_found")
}
