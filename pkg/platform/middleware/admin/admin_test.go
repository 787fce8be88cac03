package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// AdminMiddlewareSuite tests the admin token middleware.
//
// Justification: block/unblock and compliance exports sit behind this check.
// The invariant "wrong token never reaches handler" must be preserved.
type AdminMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupTest() {
	s.logger = slog.Default()
}

func (s *AdminMiddlewareSuite) serve(expected string, headers map[string]string) (*httptest.ResponseRecorder, bool, string) {
	called := false
	actor := ""
	handler := RequireAdminToken(expected, s.logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			actor = Actor(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/ip/block", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called, actor
}

func (s *AdminMiddlewareSuite) TestTokenValidation() {
	s.Run("correct token passes to next handler", func() {
		w, called, actor := s.serve("secret-admin-token", map[string]string{"X-Admin-Token": "secret-admin-token"})
		s.True(called)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("admin", actor)
	})

	s.Run("wrong token returns 401 and blocks handler", func() {
		w, called, _ := s.serve("secret-admin-token", map[string]string{"X-Admin-Token": "guess"})
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "admin token required")
	})

	s.Run("missing token returns 401", func() {
		w, called, _ := s.serve("secret-admin-token", nil)
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("empty configured token leaves routes open", func() {
		w, called, _ := s.serve("", nil)
		s.True(called)
		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *AdminMiddlewareSuite) TestActorAttribution() {
	s.Run("records actor header", func() {
		_, _, actor := s.serve("t", map[string]string{"X-Admin-Token": "t", "X-Admin-Actor": "oncall-sre"})
		s.Equal("oncall-sre", actor)
	})

	s.Run("ignores oversized actor header", func() {
		_, _, actor := s.serve("t", map[string]string{"X-Admin-Token": "t", "X-Admin-Actor": strings.Repeat("a", 65)})
		s.Equal("admin", actor)
	})
}
