package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Reports,Blocks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"edgeguard/internal/security/handler/mocks"
	"edgeguard/internal/security/models"
	"edgeguard/internal/security/service/blocking"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/platform/middleware/admin"
	"edgeguard/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockReports *mocks.MockReports
	mockBlocks  *mocks.MockBlocks
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockReports = mocks.NewMockReports(s.ctrl)
	s.mockBlocks = mocks.NewMockBlocks(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(s.mockReports, s.mockBlocks, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), fixedNow)))
		})
	})
	r.Use(admin.RequireAdminToken("", logger))
	h.RegisterAdmin(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// GET /security/stats
// =============================================================================

func (s *HandlerSuite) TestStats_DefaultsTo24Hours() {
	s.mockReports.EXPECT().
		QueryMetrics(gomock.Any(), models.TimeRange{Start: fixedNow.Add(-24 * time.Hour), End: fixedNow}).
		Return(&models.SecurityMetrics{TotalRequests: 42}, nil)

	rec := s.do(http.MethodGet, "/security/stats", "")

	s.Equal(http.StatusOK, rec.Code)
	s.EqualValues(42, s.decode(rec)["total_requests"])
}

func (s *HandlerSuite) TestStats_HonoursHours() {
	s.mockReports.EXPECT().
		QueryMetrics(gomock.Any(), models.TimeRange{Start: fixedNow.Add(-720 * time.Hour), End: fixedNow}).
		Return(&models.SecurityMetrics{}, nil)

	rec := s.do(http.MethodGet, "/security/stats?hours=720", "")

	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestStats_RejectsOutOfRangeHours() {
	for _, q := range []string{"0", "721", "abc"} {
		rec := s.do(http.MethodGet, "/security/stats?hours="+q, "")
		s.Equal(http.StatusBadRequest, rec.Code, "hours=%s", q)
	}
}

func (s *HandlerSuite) TestStats_DependencyFailure() {
	s.mockReports.EXPECT().QueryMetrics(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Dependency(errors.New("connection refused"), "failed to load events"))

	rec := s.do(http.MethodGet, "/security/stats", "")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.NotContains(rec.Body.String(), "connection refused")
}

// =============================================================================
// POST /ip/block and /ip/unblock
// =============================================================================

func (s *HandlerSuite) TestBlock_TimedBlock() {
	expires := fixedNow.Add(24 * time.Hour)
	s.mockBlocks.EXPECT().
		Block(gomock.Any(), blocking.BlockParams{
			Key:      "203.0.113.7",
			Reason:   "credential stuffing",
			Source:   models.BlockSourceAdmin,
			Duration: 24 * time.Hour,
			Actor:    "oncall",
		}).
		Return(models.BlockEntry{Key: "203.0.113.7", ExpiresAt: &expires}, nil)

	rec := s.do(http.MethodPost, "/ip/block",
		`{"ip":" 203.0.113.7 ","reason":" credential stuffing ","durationHours":24}`,
		"X-Admin-Actor", "oncall")

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["blocked"])
	s.Equal("203.0.113.7", body["ip"])
	s.NotEmpty(body["expires_at"])
}

func (s *HandlerSuite) TestBlock_PermanentWhenNoDuration() {
	s.mockBlocks.EXPECT().
		Block(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p blocking.BlockParams) (models.BlockEntry, error) {
			s.Zero(p.Duration)
			s.Equal("admin", p.Actor)
			return models.BlockEntry{Key: p.Key}, nil
		})

	rec := s.do(http.MethodPost, "/ip/block", `{"ip":"2001:db8::1","reason":"abuse"}`)

	s.Equal(http.StatusOK, rec.Code)
	s.NotContains(s.decode(rec), "expires_at")
}

func (s *HandlerSuite) TestBlock_CanonicalizesMappedAddress() {
	s.mockBlocks.EXPECT().
		Block(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p blocking.BlockParams) (models.BlockEntry, error) {
			s.Equal("10.0.0.1", p.Key)
			return models.BlockEntry{Key: p.Key}, nil
		})

	rec := s.do(http.MethodPost, "/ip/block", `{"ip":"::ffff:10.0.0.1","reason":"abuse"}`)

	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestBlock_RejectsInvalidInput() {
	cases := map[string]string{
		"invalid json":      "not valid json",
		"missing ip":        `{"reason":"abuse"}`,
		"not an ip":         `{"ip":"example.com","reason":"abuse"}`,
		"missing reason":    `{"ip":"203.0.113.7","reason":"   "}`,
		"zero duration":     `{"ip":"203.0.113.7","reason":"abuse","durationHours":0}`,
		"duration too long": `{"ip":"203.0.113.7","reason":"abuse","durationHours":9000}`,
		"reason too long":   `{"ip":"203.0.113.7","reason":"` + strings.Repeat("x", 501) + `"}`,
	}
	for name, body := range cases {
		rec := s.do(http.MethodPost, "/ip/block", body)
		assert.Equal(s.T(), http.StatusBadRequest, rec.Code, name)
	}
}

func (s *HandlerSuite) TestUnblock_AbsentAddressSucceeds() {
	s.mockBlocks.EXPECT().Unblock(gomock.Any(), "203.0.113.7", "admin").Return(false, nil)

	rec := s.do(http.MethodPost, "/ip/unblock", `{"ip":"203.0.113.7"}`)

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["unblocked"])
	s.Equal(false, body["was_blocked"])
}

func (s *HandlerSuite) TestUnblock_InvalidJSON() {
	rec := s.do(http.MethodPost, "/ip/unblock", "not valid json")

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code,
		"expected 400 for invalid JSON")
}

func (s *HandlerSuite) TestListBlocked() {
	s.mockBlocks.EXPECT().List(gomock.Any()).Return([]models.BlockEntry{
		{Key: "203.0.113.7", Reason: "abuse", Source: models.BlockSourceAdmin, BlockedAt: fixedNow},
	}, nil)

	rec := s.do(http.MethodGet, "/ip/blocked", "")

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.EqualValues(1, body["count"])
	s.Len(body["blocked"], 1)
}

// =============================================================================
// POST /compliance/report
// =============================================================================

func (s *HandlerSuite) TestComplianceReport() {
	start := fixedNow.Add(-7 * 24 * time.Hour)
	s.mockReports.EXPECT().
		GenerateComplianceReport(gomock.Any(), models.ReportPCIDSS, models.TimeRange{Start: start, End: fixedNow}).
		Return(&models.ComplianceReport{ID: "r-1", ReportType: models.ReportPCIDSS}, nil)

	rec := s.do(http.MethodPost, "/compliance/report",
		`{"reportType":"PCI_DSS","startDate":"`+start.Format(time.RFC3339)+`","endDate":"`+fixedNow.Format(time.RFC3339)+`"}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("pci_dss", s.decode(rec)["report_type"])
}

func (s *HandlerSuite) TestComplianceReport_RejectsInvalidInput() {
	cases := map[string]string{
		"unknown type":   `{"reportType":"hipaa","startDate":"2026-02-01T00:00:00Z","endDate":"2026-03-01T00:00:00Z"}`,
		"inverted range": `{"reportType":"gdpr","startDate":"2026-03-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`,
		"missing dates":  `{"reportType":"gdpr"}`,
		"bad date":       `{"reportType":"gdpr","startDate":"yesterday","endDate":"2026-03-01T00:00:00Z"}`,
		"too long":       `{"reportType":"gdpr","startDate":"2024-01-01T00:00:00Z","endDate":"2026-03-01T00:00:00Z"}`,
	}
	for name, body := range cases {
		rec := s.do(http.MethodPost, "/compliance/report", body)
		assert.Equal(s.T(), http.StatusBadRequest, rec.Code, name)
	}
}
