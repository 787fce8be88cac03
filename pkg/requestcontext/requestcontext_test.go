package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow_FallbackToRealTime(t *testing.T) {
	before := time.Now()
	result := Now(context.Background())
	after := time.Now()

	assert.True(t, !result.Before(before), "result should be >= before")
	assert.True(t, !result.After(after), "result should be <= after")
}

func TestWithTime_OverridesExistingTime(t *testing.T) {
	originalTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newTime := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	ctx := WithTime(context.Background(), originalTime)
	ctx = WithTime(ctx, newTime)

	assert.Equal(t, newTime, Now(ctx))
}

func TestClientMetadata(t *testing.T) {
	t.Run("defaults to unknown client", func(t *testing.T) {
		assert.Equal(t, UnknownClient, ClientIP(context.Background()))
		assert.Empty(t, UserAgent(context.Background()))
	})

	t.Run("round trips client key and user agent", func(t *testing.T) {
		ctx := WithClientMetadata(context.Background(), "198.51.100.4", "curl/8.4.0")
		assert.Equal(t, "198.51.100.4", ClientIP(ctx))
		assert.Equal(t, "curl/8.4.0", UserAgent(ctx))
	})

	t.Run("empty client key reads as unknown", func(t *testing.T) {
		ctx := WithClientMetadata(context.Background(), "", "")
		assert.Equal(t, UnknownClient, ClientIP(ctx))
	})
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
