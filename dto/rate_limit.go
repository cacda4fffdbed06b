package dto

import "time"

type RateLimitInfo struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	ResetTime    *time.Time `json:"reset_time,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// UsageStats aggregates the persisted audit trail for the admin API.
type UsageStats struct {
	TotalChecks    int64 `json:"total_checks"`
	DeniedChecks   int64 `json:"denied_checks"`
	FailOpenChecks int64 `json:"fail_open_checks"`
}

// UsageInfo is the non-mutating quota view; it never consumes a call.
type UsageInfo struct {
	UserID    string `json:"user_id"`
	Day       string `json:"day"`
	Used      int64  `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int64  `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
}
