package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeguard/internal/security/handler"
	"edgeguard/internal/security/models"
)

type captured struct {
	method string
	path   string
	query  string
	token  string
	actor  string
	body   []byte
}

func fakeAPI(t *testing.T, status int, response any) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.token = r.Header.Get("X-Admin-Token")
		got.actor = r.Header.Get("X-Admin-Actor")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--api-url", srv.URL, "--token", "secret", "--actor", "ops"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestBlockSendsRequest(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	srv, got := fakeAPI(t, http.StatusOK, handler.BlockResponse{Blocked: true, IP: "203.0.113.7", ExpiresAt: &expires})

	out, err := run(t, srv, "block", "203.0.113.7", "--reason", "credential stuffing", "--hours", "2")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/admin/ip/block", got.path)
	assert.Equal(t, "secret", got.token)
	assert.Equal(t, "ops", got.actor)
	assert.JSONEq(t, `{"ip":"203.0.113.7","reason":"credential stuffing","durationHours":2}`, string(got.body))
	assert.Contains(t, out, "blocked 203.0.113.7 (expires: 2026-01-02T03:00:00Z)")
}

func TestBlockWithoutHoursIsPermanent(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, handler.BlockResponse{Blocked: true, IP: "203.0.113.7"})

	out, err := run(t, srv, "block", "203.0.113.7", "--reason", "abuse")
	require.NoError(t, err)
	assert.NotContains(t, string(got.body), "durationHours")
	assert.Contains(t, out, "expires: never")
}

func TestBlockRequiresReason(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, nil)

	_, err := run(t, srv, "block", "203.0.113.7")
	require.Error(t, err)
	assert.Empty(t, got.path)
}

func TestUnblockReportsPriorState(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, handler.UnblockResponse{Unblocked: true, IP: "203.0.113.7"})

	out, err := run(t, srv, "unblock", "203.0.113.7")
	require.NoError(t, err)
	assert.Contains(t, out, "was not blocked")
}

func TestBlockedTable(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, handler.BlockedListResponse{
		Blocked: []models.BlockEntry{{
			Key:       "198.51.100.4",
			Reason:    "ddos",
			Source:    models.BlockSourceDDoS,
			BlockedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
		Count: 1,
	})

	out, err := run(t, srv, "blocked")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Contains(t, out, "IP")
	assert.Contains(t, out, "198.51.100.4")
	assert.Contains(t, out, "never")
}

func TestStatsJSONOutput(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, models.SecurityMetrics{TotalRequests: 42, BlockedRequests: 3})

	out, err := run(t, srv, "stats", "--hours", "6", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "hours=6", got.query)

	var decoded models.SecurityMetrics
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 42, decoded.TotalRequests)
	assert.Equal(t, 3, decoded.BlockedRequests)
}

func TestStatsYAMLUsesAPIFieldNames(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, models.SecurityMetrics{TotalRequests: 7})

	out, err := run(t, srv, "stats", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "total_requests: 7")
}

func TestReportSendsPeriod(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, models.ComplianceReport{
		ID:              "r-1",
		ReportType:      models.ReportPCIDSS,
		Recommendations: []string{"Review payment endpoint access"},
	})

	out, err := run(t, srv, "report", "pci_dss", "--from", "2026-01-01", "--to", "2026-01-31")
	require.NoError(t, err)

	var sent handler.ReportRequest
	require.NoError(t, json.Unmarshal(got.body, &sent))
	assert.Equal(t, "pci_dss", sent.ReportType)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), sent.StartDate)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), sent.EndDate)
	assert.Contains(t, out, "Report r-1 (pci_dss)")
	assert.Contains(t, out, "- Review payment endpoint access")
}

func TestReportRejectsBadDate(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, nil)

	_, err := run(t, srv, "report", "gdpr", "--from", "01/02/2026")
	require.Error(t, err)
	assert.Empty(t, got.path)
}

func TestAPIErrorsSurface(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusBadRequest, map[string]string{
		"error":             "validation_error",
		"error_description": "ip failed ip",
	})

	_, err := run(t, srv, "unblock", "not-an-ip")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_error: ip failed ip", err.Error())
}

func TestParseAPIErrorFallsBackToStatus(t *testing.T) {
	err := parseAPIError(http.StatusUnauthorized, []byte("not json"))
	assert.EqualError(t, err, "invalid or missing admin token")
}

func TestUnknownOutputFormat(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, nil)

	_, err := run(t, srv, "blocked", "-o", "xml")
	require.Error(t, err)
	assert.Empty(t, got.path)
}

func TestMissingAPIURL(t *testing.T) {
	t.Setenv("EDGEGUARD_API_URL", "")
	root := NewRootCmd("test")
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"blocked"})
	require.ErrorContains(t, root.Execute(), "API URL not configured")
}
