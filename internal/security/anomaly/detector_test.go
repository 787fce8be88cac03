package anomaly

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
)

const chromeUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name       string
		userAgent  string
		automation bool
	}{
		{"empty counts as automation", "", true},
		{"curl", "curl/8.4.0", true},
		{"python requests", "python-requests/2.31.0", true},
		{"go client", "Go-http-client/1.1", true},
		{"headless chrome", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", true},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"desktop chrome", chromeUA, false},
		{"mobile safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := ClassifyUserAgent(tc.userAgent)
			assert.Equal(t, tc.automation, client.Automation)
			assert.NotEmpty(t, client.Name)
		})
	}
}

// DetectorSuite tests anomaly scoring.
//
// Justification: the detector can block clients on its own. Thresholds are
// strict ("more than"), and header heuristics must never recommend a block.
type DetectorSuite struct {
	suite.Suite
	d   *Detector
	now time.Time
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	d, err := New(Config{ScanWindow: time.Minute, ScanRequestThreshold: 20, ScanDistinctEndpoints: 10})
	s.Require().NoError(err)
	s.d = d
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *DetectorSuite) request(ua string, headers map[string]string) *models.RequestDescriptor {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &models.RequestDescriptor{ClientKey: "10.0.0.1", Method: http.MethodGet, Path: "/api/search", UserAgent: ua, Headers: h}
}

func (s *DetectorSuite) history(n, endpoints int, age time.Duration) []models.AuditEntry {
	out := make([]models.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.AuditEntry{
			ClientKey: "10.0.0.1",
			Endpoint:  fmt.Sprintf("/scan/%d", i%endpoints),
			Timestamp: s.now.Add(-age),
		})
	}
	return out
}

func (s *DetectorSuite) TestRejectsInvalidConfig() {
	_, err := New(Config{ScanWindow: 0, ScanRequestThreshold: 1, ScanDistinctEndpoints: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *DetectorSuite) TestBrowserWithHeadersIsClean() {
	a := s.d.Assess(s.request(chromeUA, map[string]string{"Accept": "text/html", "Accept-Language": "en"}), nil, s.now)
	s.False(a.Flagged)
	s.Empty(a.Reasons)
}

func (s *DetectorSuite) TestAutomationHeaderSeverity() {
	s.Run("one header missing is low", func() {
		a := s.d.Assess(s.request("curl/8.4.0", map[string]string{"Accept": "*/*"}), nil, s.now)
		s.True(a.Flagged)
		s.Equal(models.SeverityLow, a.Severity)
		s.False(a.BlockRecommended)
	})

	s.Run("both headers missing is medium", func() {
		a := s.d.Assess(s.request("", nil), nil, s.now)
		s.True(a.Flagged)
		s.Equal(models.SeverityMedium, a.Severity)
		s.False(a.BlockRecommended, "header heuristics never block")
		s.Equal("empty", a.UserAgent)
	})

	s.Run("automation with full headers is clean", func() {
		a := s.d.Assess(s.request("curl/8.4.0", map[string]string{"Accept": "*/*", "Accept-Language": "en"}), nil, s.now)
		s.False(a.Flagged)
	})
}

func (s *DetectorSuite) TestScanningDetection() {
	headers := map[string]string{"Accept": "text/html", "Accept-Language": "en"}

	s.Run("above both thresholds recommends block", func() {
		a := s.d.Assess(s.request(chromeUA, headers), s.history(20, 11, 10*time.Second), s.now)
		s.True(a.Flagged)
		s.True(a.BlockRecommended)
		s.Equal(models.SeverityHigh, a.Severity)
		s.Equal(21, a.RecentRequests)
		s.Equal(12, a.DistinctEndpoints)
	})

	s.Run("many requests to few endpoints is not scanning", func() {
		a := s.d.Assess(s.request(chromeUA, headers), s.history(50, 3, 10*time.Second), s.now)
		s.False(a.Flagged)
	})

	s.Run("at threshold is not scanning", func() {
		a := s.d.Assess(s.request(chromeUA, headers), s.history(19, 19, 10*time.Second), s.now)
		s.Equal(20, a.RecentRequests)
		s.False(a.BlockRecommended)
	})

	s.Run("entries outside the window are ignored", func() {
		a := s.d.Assess(s.request(chromeUA, headers), s.history(40, 20, 2*time.Minute), s.now)
		s.Equal(1, a.RecentRequests)
		s.False(a.Flagged)
	})
}

func (s *DetectorSuite) TestCombinedReasonsTakeMaxSeverity() {
	a := s.d.Assess(s.request("python-requests/2.31.0", nil), s.history(30, 15, 5*time.Second), s.now)
	s.True(a.BlockRecommended)
	s.Equal(models.SeverityHigh, a.Severity)
	s.Len(a.Reasons, 2)

	details := a.Details()
	s.Equal(models.DetailsAnomaly, details.Kind)
	s.True(details.Anomaly.BlockRecommended)
}
