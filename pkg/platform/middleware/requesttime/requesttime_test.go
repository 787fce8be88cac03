package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"edgeguard/pkg/requestcontext"
)

func serve(mw func(http.Handler) http.Handler, reads int) []time.Time {
	var seen []time.Time
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for range reads {
			seen = append(seen, requestcontext.Now(r.Context()))
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	return seen
}

func TestMiddlewarePinsWallClock(t *testing.T) {
	before := time.Now()
	seen := serve(Middleware, 2)
	after := time.Now()

	assert.False(t, seen[0].Before(before))
	assert.False(t, seen[0].After(after))
	assert.Equal(t, seen[0], seen[1], "every read within a request sees the same instant")
}

func TestWithClockUsesInjectedTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return fixed
	}

	seen := serve(WithClock(clock), 3)

	assert.Equal(t, []time.Time{fixed, fixed, fixed}, seen)
	assert.Equal(t, 1, calls, "clock is read once per request")
}
