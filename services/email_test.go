package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeline/meter_api/model"
)

func TestEmail_SendDocumentSkipsWhenUnconfigured(t *testing.T) {
	svc := &EmailService{}

	missing, err := svc.SendDocument("alice@example.com", "subject", "body", nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestEmail_SendDocumentReportsUnreadableAttachments(t *testing.T) {
	var sent []sentMail
	svc := newTestEmailService(&sent)

	missing, err := svc.SendDocument("alice@example.com", "subject", "body", []model.AttachmentRef{
		{Filename: "gone.md", Path: filepath.Join(t.TempDir(), "gone.md"), MimeType: "text/markdown"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"gone.md"}, missing)
	require.Len(t, sent, 1)
	assert.Contains(t, string(sent[0].msg), "body")
}

func TestEmail_SendDocumentMultipartHeaders(t *testing.T) {
	var sent []sentMail
	svc := newTestEmailService(&sent)

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Doc"), 0644))

	_, err := svc.SendDocument("alice@example.com", "Your document", "see attached", []model.AttachmentRef{
		{Filename: "doc.md", Path: path, MimeType: "text/markdown"},
	})
	require.NoError(t, err)

	require.Len(t, sent, 1)
	msg := string(sent[0].msg)
	assert.Contains(t, msg, "From: Scribeline <bot@example.com>")
	assert.Contains(t, msg, "To: alice@example.com")
	assert.Contains(t, msg, "Subject: Your document")
	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, `filename="doc.md"`)
	assert.Contains(t, msg, "Content-Transfer-Encoding: base64")
}
