package model

// AttachmentRef points at a file in the temporary file area. The area has
// its own retention policy, so a stored ref may outlive its file; resend
// treats that as a per-attachment soft failure.
type AttachmentRef struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

// EmailRecord is the most recently sent outbound notification for a
// (user, bot identity) pair. Overwritten on every successful send.
type EmailRecord struct {
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	Attachments []AttachmentRef `json:"attachments"`
}

func EmailHistoryKey(userID, botID string) string {
	return "last_email:" + userID + ":" + botID
}
