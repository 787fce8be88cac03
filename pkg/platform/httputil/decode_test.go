package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "edgeguard/pkg/domain-errors"
)

// blockRequest mirrors the admin block payload: tags, normalization and a
// cross-field rule.
type blockRequest struct {
	IP     string `json:"ip" validate:"required,ip"`
	Reason string `json:"reason" validate:"required,max=32"`
	Hours  *int   `json:"durationHours,omitempty" validate:"omitempty,min=1"`
}

func (r *blockRequest) Normalize() {
	r.IP = strings.TrimSpace(r.IP)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *blockRequest) Validate() error {
	if r.Reason == "test" {
		return dErrors.New(dErrors.CodeBadRequest, "reason must describe the incident")
	}
	return nil
}

// plainRequest fails with a non-domain error.
type plainRequest struct {
	Name string `json:"name"`
}

func (r *plainRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func decodeBlock(t *testing.T, body string) (*blockRequest, bool, *httptest.ResponseRecorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "/admin/ip/block", strings.NewReader(body))
	rec := httptest.NewRecorder()
	out, ok := DecodeAndPrepare[blockRequest](rec, req, logger, context.Background(), "req-1")
	return out, ok, rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes before validating", func(t *testing.T) {
		out, ok, _ := decodeBlock(t, `{"ip":"  203.0.113.7 ","reason":" abuse "}`)
		require.True(t, ok)
		assert.Equal(t, "203.0.113.7", out.IP)
		assert.Equal(t, "abuse", out.Reason)
		assert.Nil(t, out.Hours)
	})

	tests := []struct {
		name     string
		body     string
		wantCode string
		wantDesc string
	}{
		{"malformed JSON", `{"ip":`, "bad_request", "invalid request body"},
		{"empty body", ``, "bad_request", "invalid request body"},
		{"tag failure names the json field", `{"ip":"nope","reason":"abuse"}`, "validation_error", "ip failed ip"},
		{"several tag failures are joined", `{"reason":"abuse","durationHours":0}`, "validation_error", "ip failed required; durationHours failed min"},
		{"domain error from Validate keeps its code", `{"ip":"203.0.113.7","reason":"test"}`, "bad_request", "reason must describe the incident"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok, rec := decodeBlock(t, tt.body)
			require.False(t, ok)
			assert.Nil(t, out)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := errorBody(t, rec)
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, tt.wantDesc, body["error_description"])
		})
	}
}

func TestDecodeAndPreparePlainErrorBecomesValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	rec := httptest.NewRecorder()

	_, ok := DecodeAndPrepare[plainRequest](rec, req, logger, context.Background(), "req-2")

	require.False(t, ok)
	body := errorBody(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "name is required", body["error_description"])
}

func TestPrepareRequestIgnoresNonStructs(t *testing.T) {
	hours := 3
	assert.NoError(t, PrepareRequest(&hours))
}
