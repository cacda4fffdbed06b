package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeline/meter_api/shared"
	"github.com/scribeline/meter_api/store"
)

func newTestStore(t *testing.T, name string) *store.Store {
	t.Helper()

	s, err := store.NewRegistry().Open(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	return s
}

func newTestRateLimiter(t *testing.T, limit int, now *time.Time) *RateLimitService {
	t.Helper()

	return &RateLimitService{
		dailyLimit: limit,
		limits:     newTestStore(t, shared.StoreRateLimit),
		nowFn:      func() time.Time { return *now },
	}
}

func TestRateLimit_DeniesAfterLimit(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 2, &now)

	require.NoError(t, svc.Check("alice"))
	require.NoError(t, svc.Check("alice"))

	err := svc.Check("alice")
	require.Error(t, err)
	assert.True(t, shared.IsUsageLimitExceeded(err))

	limitErr, ok := err.(*shared.UsageLimitExceededError)
	require.True(t, ok)
	assert.Equal(t, 2, limitErr.Limit)
}

func TestRateLimit_UsersAreIndependent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)

	require.NoError(t, svc.Check("alice"))
	require.Error(t, svc.Check("alice"))

	// bob's budget is untouched by alice's spend
	require.NoError(t, svc.Check("bob"))
}

func TestRateLimit_ResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)

	require.NoError(t, svc.Check("alice"))
	require.Error(t, svc.Check("alice"))

	now = now.Add(2 * time.Minute)
	require.NoError(t, svc.Check("alice"))

	// Yesterday's counter is left behind, not mutated.
	used, ok := svc.limits.GetInt("limit:alice:2024-06-01")
	require.True(t, ok)
	assert.Equal(t, int64(1), used)

	used, ok = svc.limits.GetInt("limit:alice:2024-06-02")
	require.True(t, ok)
	assert.Equal(t, int64(1), used)
}

func TestRateLimit_UsageDoesNotConsume(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 5, &now)

	require.NoError(t, svc.Check("alice"))

	for i := 0; i < 10; i++ {
		info := svc.Usage("alice")
		assert.Equal(t, int64(1), info.Used)
		assert.Equal(t, int64(4), info.Remaining)
		assert.Equal(t, 5, info.Limit)
		assert.Equal(t, "2024-06-01", info.Day)
	}
}

func TestRateLimit_UsageForUnknownUser(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 5, &now)

	info := svc.Usage("stranger")
	assert.Equal(t, int64(0), info.Used)
	assert.Equal(t, int64(5), info.Remaining)
}

func TestRateLimit_RemainingNeverNegative(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)

	// A lowered limit can leave the stored count above it.
	require.NoError(t, svc.limits.Set("limit:alice:2024-06-01", 7))

	info := svc.Usage("alice")
	assert.Equal(t, int64(7), info.Used)
	assert.Equal(t, int64(0), info.Remaining)
}

func TestRateLimit_Reset(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)

	require.NoError(t, svc.Check("alice"))
	require.Error(t, svc.Check("alice"))

	require.NoError(t, svc.Reset("alice"))
	require.NoError(t, svc.Check("alice"))
}

func TestRateLimit_ResetUnknownUserIsNoop(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)

	require.NoError(t, svc.Reset("stranger"))
}

func TestRateLimit_FailsOpenWhenCounterWriteFails(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 2, &now)

	require.NoError(t, svc.Check("alice"))

	// A directory squatting on the flush temp path breaks counter writes.
	require.NoError(t, os.Mkdir(svc.limits.Path()+".tmp", 0o755))

	before := testutil.ToFloat64(quotaFailOpenTotal)
	require.NoError(t, svc.Check("alice"))
	assert.Equal(t, before+1, testutil.ToFloat64(quotaFailOpenTotal))

	// The failed write never lands, so the persisted count is unchanged.
	used, ok := svc.limits.GetInt("limit:alice:2024-06-01")
	require.True(t, ok)
	assert.Equal(t, int64(1), used)

	// Denial needs no write and still applies when the count is already
	// at the limit.
	require.NoError(t, os.Remove(svc.limits.Path()+".tmp"))
	require.NoError(t, svc.Check("alice"))
	require.NoError(t, os.Mkdir(svc.limits.Path()+".tmp", 0o755))
	err := svc.Check("alice")
	require.Error(t, err)
	assert.True(t, shared.IsUsageLimitExceeded(err))
}

func TestRateLimit_FailsOpenWhenRedisUnreachable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 1, &now)
	svc.redisSvc = &RedisService{
		redis: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	}

	before := testutil.ToFloat64(quotaFailOpenTotal)

	// Well past the limit: every check must still be admitted.
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Check("alice"))
	}
	assert.Equal(t, before+3, testutil.ToFloat64(quotaFailOpenTotal))
}

func TestRateLimit_DefaultLimitDaySpan(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestRateLimiter(t, 5, &now)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Check("alice"))
	}

	err := svc.Check("alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5")

	now = now.Add(24 * time.Hour)
	require.NoError(t, svc.Check("alice"))
}
