package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() *RateLimitMiddleware {
	svc := &RateLimitMiddleware{windows: map[string]*window{}}
	svc.configs = map[string]*limitConfig{
		"test": {maxRequests: 2, windowSize: time.Minute, blockTime: time.Minute * 5},
	}
	return svc
}

func TestIPLimit_AllowsUnderLimit(t *testing.T) {
	svc := newTestLimiter()

	allowed, info := svc.IsAllowed("1.2.3.4", "test")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Remaining)

	allowed, info = svc.IsAllowed("1.2.3.4", "test")
	assert.True(t, allowed)
	assert.Equal(t, 0, info.Remaining)
}

func TestIPLimit_BlocksOverLimit(t *testing.T) {
	svc := newTestLimiter()

	svc.IsAllowed("1.2.3.4", "test")
	svc.IsAllowed("1.2.3.4", "test")

	allowed, info := svc.IsAllowed("1.2.3.4", "test")
	assert.False(t, allowed)
	require.NotNil(t, info.BlockedUntil)
	assert.True(t, info.BlockedUntil.After(time.Now()))
}

func TestIPLimit_ClientsAreIndependent(t *testing.T) {
	svc := newTestLimiter()

	svc.IsAllowed("1.2.3.4", "test")
	svc.IsAllowed("1.2.3.4", "test")
	allowed, _ := svc.IsAllowed("1.2.3.4", "test")
	assert.False(t, allowed)

	allowed, _ = svc.IsAllowed("5.6.7.8", "test")
	assert.True(t, allowed)
}

func TestIPLimit_UnknownEndpointTypeAllowed(t *testing.T) {
	svc := newTestLimiter()

	allowed, info := svc.IsAllowed("1.2.3.4", "nonexistent")
	assert.True(t, allowed)
	assert.Equal(t, -1, info.Remaining)
}

func TestIPLimit_WindowExpiryResetsCount(t *testing.T) {
	svc := newTestLimiter()

	svc.IsAllowed("1.2.3.4", "test")
	svc.IsAllowed("1.2.3.4", "test")

	// Age the window past its size; the next request starts a fresh one.
	svc.windows["test:1.2.3.4"].windowStart = time.Now().Add(-2 * time.Minute)

	allowed, info := svc.IsAllowed("1.2.3.4", "test")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Remaining)
}
