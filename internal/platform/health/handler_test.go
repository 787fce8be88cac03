package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	rec := serve(New("test"), "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all required checks up", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", up)
		rec := serve(h, "/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("required check down", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", down)
		rec := serve(h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body ReadinessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "down: connection refused", body.Checks["postgres"])
	})

	t.Run("optional check down is reported but ready", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", up)
		h.RegisterOptionalCheck("redis", down)
		rec := serve(h, "/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body ReadinessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "up", body.Checks["postgres"])
		assert.Equal(t, "down: connection refused", body.Checks["redis"])
	})

	t.Run("checks get a deadline", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("slow", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		})
		rec := serve(h, "/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestStatus(t *testing.T) {
	rec := serve(New("production"), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "production", body.Environment)
}
