package dto

type RegisterEmailRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

type ConfirmEmailRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Token  string `json:"token" validate:"required"`
}

// ResendResult reports a resend outcome. Attachments whose temp files have
// been swept are skipped, not fatal, so Sent can be true with skipped
// entries present.
type ResendResult struct {
	Sent     bool     `json:"sent"`
	Subject  string   `json:"subject"`
	Attached int      `json:"attached"`
	Skipped  []string `json:"skipped,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}
