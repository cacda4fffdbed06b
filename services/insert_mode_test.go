package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeline/meter_api/shared"
)

func newTestModeService(t *testing.T, ttl time.Duration, now *time.Time) *ModeService {
	t.Helper()

	return &ModeService{
		ttl:      ttl,
		modes:    newTestStore(t, shared.StoreInsertMode),
		inFlight: map[string]struct{}{},
		nowFn:    func() time.Time { return *now },
	}
}

func TestMode_ArmAndConsume(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	require.NoError(t, svc.Arm("alice", shared.StylePrep))

	flag, ok := svc.Consume("alice")
	require.True(t, ok)
	assert.Equal(t, shared.StylePrep, flag.Style)

	// One-shot: the flag is gone after the first consume.
	_, ok = svc.Consume("alice")
	assert.False(t, ok)
}

func TestMode_ConsumeWithoutArm(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	_, ok := svc.Consume("alice")
	assert.False(t, ok)
}

func TestMode_RearmOverwrites(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	require.NoError(t, svc.Arm("alice", shared.StyleMarkdown))
	require.NoError(t, svc.Arm("alice", shared.StylePas))

	flag, ok := svc.Consume("alice")
	require.True(t, ok)
	assert.Equal(t, shared.StylePas, flag.Style)
}

func TestMode_StaleFlagIsDiscarded(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	require.NoError(t, svc.Arm("alice", shared.StylePrep))

	now = now.Add(5*time.Minute + time.Second)

	_, ok := svc.Consume("alice")
	assert.False(t, ok)

	// The stale entry was removed, not left to rot.
	assert.Equal(t, 0, svc.modes.Len())
}

func TestMode_FlagAtExactTTLStillValid(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	require.NoError(t, svc.Arm("alice", shared.StylePrep))

	now = now.Add(5 * time.Minute)

	_, ok := svc.Consume("alice")
	assert.True(t, ok)
}

func TestMode_UsersAreIndependent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	require.NoError(t, svc.Arm("alice", shared.StylePrep))

	_, ok := svc.Consume("bob")
	assert.False(t, ok)

	_, ok = svc.Consume("alice")
	assert.True(t, ok)
}

func TestMode_ProcessingGuard(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestModeService(t, 5*time.Minute, &now)

	assert.True(t, svc.TryBegin("alice"))
	assert.False(t, svc.TryBegin("alice"))

	// A different key is not blocked.
	assert.True(t, svc.TryBegin("bob"))

	svc.End("alice")
	assert.True(t, svc.TryBegin("alice"))
}
