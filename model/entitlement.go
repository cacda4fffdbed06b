package model

// Entitlement is the per-user paid/free record. Absence of a record means
// paid=false; Info is opaque passthrough data (billing references, display
// name, whatever the upstream attaches).
type Entitlement struct {
	Paid bool                   `json:"paid"`
	Info map[string]interface{} `json:"info"`
}

// UserSettings holds the e-mail registration state for one user. Verified
// addresses are keyed by bot identity so several bot personalities can
// deliver to different inboxes. PendingTokenHash is a bcrypt hash of the
// confirmation token mailed to the user.
type UserSettings struct {
	Verified         map[string]string `json:"verified"`
	PendingEmail     string            `json:"pending_email,omitempty"`
	PendingBotID     string            `json:"pending_bot_id,omitempty"`
	PendingTokenHash string            `json:"pending_token_hash,omitempty"`
}
