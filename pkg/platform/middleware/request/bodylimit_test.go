package request

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	const limit int64 = 64

	tests := []struct {
		name       string
		body       string
		chunked    bool
		wantStatus int
		wantRead   int
		wantErr    bool
	}{
		{name: "under limit", body: strings.Repeat("a", 10), wantStatus: http.StatusOK, wantRead: 10},
		{name: "exactly at limit", body: strings.Repeat("a", 64), wantStatus: http.StatusOK, wantRead: 64},
		{name: "declared length over limit", body: strings.Repeat("a", 65), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "undeclared length over limit", body: strings.Repeat("a", 200), chunked: true, wantStatus: http.StatusOK, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				called bool
				read   int
				err    error
			)
			h := BodyLimit(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				var data []byte
				data, err = io.ReadAll(r.Body)
				read = len(data)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/ip/block", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				assert.False(t, called, "handler must not run")
				assert.Contains(t, rec.Body.String(), `"error":"body_too_large"`)
				return
			}
			require.True(t, called)
			if tt.wantErr {
				var maxErr *http.MaxBytesError
				require.True(t, errors.As(err, &maxErr))
				assert.Equal(t, limit, maxErr.Limit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRead, read)
		})
	}
}
