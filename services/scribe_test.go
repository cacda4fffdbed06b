package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeline/meter_api/dto"
	"github.com/scribeline/meter_api/shared"
)

type scribeFixture struct {
	svc       *ScribeService
	entSvc    *EntitlementService
	modeSvc   *ModeService
	generated *int
	sent      *[]sentMail
	now       *time.Time
}

func newScribeFixture(t *testing.T, dailyLimit int) *scribeFixture {
	t.Helper()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	generated := 0
	var sent []sentMail

	entSvc := newTestEntitlementService(t)
	modeSvc := newTestModeService(t, 5*time.Minute, &now)
	emailSvc := newTestEmailService(&sent)

	transformSvc := &TransformService{
		generateFn: func(ctx context.Context, system, prompt string) (string, error) {
			generated++
			return "# Document\n\n" + prompt, nil
		},
	}

	historySvc := &EmailHistoryService{
		emailSvc: emailSvc,
		entSvc:   entSvc,
		history:  newTestStore(t, shared.StoreEmailHistory),
	}

	svc := &ScribeService{
		rateLimitSvc: newTestRateLimiter(t, dailyLimit, &now),
		modeSvc:      modeSvc,
		entSvc:       entSvc,
		transformSvc: transformSvc,
		tempFileSvc:  newTestTempFileService(t, &now),
		emailSvc:     emailSvc,
		historySvc:   historySvc,
	}

	return &scribeFixture{
		svc:       svc,
		entSvc:    entSvc,
		modeSvc:   modeSvc,
		generated: &generated,
		sent:      &sent,
		now:       &now,
	}
}

func TestScribe_Generate(t *testing.T) {
	f := newScribeFixture(t, 5)

	resp, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID:   "alice",
		Filename: "meeting.txt",
		Content:  "raw transcript",
		Style:    shared.StylePrep,
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Markdown, "raw transcript")
	assert.False(t, resp.Emailed)

	content, err := os.ReadFile(resp.TempPath)
	require.NoError(t, err)
	assert.Equal(t, resp.Markdown, string(content))

	rec, ok := f.svc.historySvc.Last("alice")
	require.True(t, ok)
	assert.Equal(t, "Your document: meeting.md", rec.Subject)
	require.Len(t, rec.Attachments, 1)
	assert.Equal(t, resp.TempPath, rec.Attachments[0].Path)
}

func TestScribe_GenerateEmailsVerifiedUser(t *testing.T) {
	f := newScribeFixture(t, 5)
	verifyEmail(t, f.entSvc, "alice", "alice@example.com")

	resp, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID:   "alice",
		Filename: "meeting.txt",
		Content:  "raw transcript",
	})
	require.NoError(t, err)

	assert.True(t, resp.Emailed)
	require.Len(t, *f.sent, 1)
	assert.Equal(t, []string{"alice@example.com"}, (*f.sent)[0].to)
}

func TestScribe_GenerateEnforcesQuota(t *testing.T) {
	f := newScribeFixture(t, 1)

	_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "a.txt", Content: "one",
	})
	require.NoError(t, err)

	_, err = f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "b.txt", Content: "two",
	})
	require.Error(t, err)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 429, appErr.StatusCode)

	// Denied requests never reach the transform backend.
	assert.Equal(t, 1, *f.generated)
}

func TestScribe_PaidUserBypassesQuota(t *testing.T) {
	f := newScribeFixture(t, 1)
	require.NoError(t, f.entSvc.SetPaid("alice", nil))

	for i := 0; i < 3; i++ {
		_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
			UserID: "alice", Filename: "a.txt", Content: "text",
		})
		require.NoError(t, err)
	}
}

func TestScribe_GuildPlanBypassesQuota(t *testing.T) {
	f := newScribeFixture(t, 1)
	require.NoError(t, f.entSvc.SetPlan("guild-1", shared.PlanPro))

	for i := 0; i < 3; i++ {
		_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
			UserID: "alice", GuildID: "guild-1", Filename: "a.txt", Content: "text",
		})
		require.NoError(t, err)
	}

	// Same user outside the pro guild is back on the metered path.
	_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "a.txt", Content: "text",
	})
	require.NoError(t, err)
	_, err = f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "a.txt", Content: "text",
	})
	require.Error(t, err)
}

func TestScribe_GenerateBlockedWhileInFlight(t *testing.T) {
	f := newScribeFixture(t, 5)

	require.True(t, f.modeSvc.TryBegin("alice"))
	defer f.modeSvc.End("alice")

	_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "a.txt", Content: "text",
	})
	require.Error(t, err)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 429, appErr.StatusCode)
}

func TestScribe_TransformFailureDoesNotRecordHistory(t *testing.T) {
	f := newScribeFixture(t, 5)
	f.svc.transformSvc.generateFn = func(ctx context.Context, system, prompt string) (string, error) {
		return "", errors.New("upstream unavailable")
	}

	_, err := f.svc.Generate(context.Background(), dto.GenerateRequest{
		UserID: "alice", Filename: "a.txt", Content: "text",
	})
	require.Error(t, err)

	_, ok := f.svc.historySvc.Last("alice")
	assert.False(t, ok)
}

func TestScribe_ArmInsertDefaultsToMarkdown(t *testing.T) {
	f := newScribeFixture(t, 5)

	require.NoError(t, f.svc.ArmInsert("alice", ""))

	flag, ok := f.modeSvc.Consume("alice")
	require.True(t, ok)
	assert.Equal(t, shared.StyleMarkdown, flag.Style)
}

func TestScribe_ArmInsertRejectsUnknownStyle(t *testing.T) {
	f := newScribeFixture(t, 5)

	err := f.svc.ArmInsert("alice", "haiku")
	require.Error(t, err)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
}

func TestScribe_ProcessMessageNotArmed(t *testing.T) {
	f := newScribeFixture(t, 5)

	resp, err := f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "just chatting",
	})
	require.NoError(t, err)

	assert.False(t, resp.Armed)
	assert.Empty(t, resp.Markdown)
	assert.Equal(t, 0, *f.generated)
}

func TestScribe_ProcessMessageConsumesFlag(t *testing.T) {
	f := newScribeFixture(t, 5)
	require.NoError(t, f.svc.ArmInsert("alice", shared.StylePas))

	resp, err := f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "these are my notes",
	})
	require.NoError(t, err)

	assert.True(t, resp.Armed)
	assert.Contains(t, resp.Markdown, "these are my notes")

	// One-shot: the next message is plain again.
	resp, err = f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "back to chatting",
	})
	require.NoError(t, err)
	assert.False(t, resp.Armed)

	assert.Equal(t, 1, *f.generated)
}

func TestScribe_ProcessMessageBusyKeepsFlagArmed(t *testing.T) {
	f := newScribeFixture(t, 5)
	require.NoError(t, f.svc.ArmInsert("alice", shared.StylePas))

	require.True(t, f.modeSvc.TryBegin("alice"))
	_, err := f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "these are my notes",
	})
	require.Error(t, err)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 429, appErr.StatusCode)
	f.modeSvc.End("alice")

	// The user does not have to arm again once the guard clears.
	resp, err := f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "these are my notes",
	})
	require.NoError(t, err)
	assert.True(t, resp.Armed)
	assert.Contains(t, resp.Markdown, "these are my notes")
	assert.Equal(t, 1, *f.generated)
}

func TestScribe_ProcessMessageStaleFlag(t *testing.T) {
	f := newScribeFixture(t, 5)
	require.NoError(t, f.svc.ArmInsert("alice", shared.StylePas))

	*f.now = f.now.Add(6 * time.Minute)

	resp, err := f.svc.ProcessMessage(context.Background(), dto.InsertMessageRequest{
		UserID: "alice", Text: "too late",
	})
	require.NoError(t, err)
	assert.False(t, resp.Armed)
	assert.Equal(t, 0, *f.generated)
}
