package model

import "time"

// LimitKey builds the per-user per-UTC-day counter key.
func LimitKey(userID, day string) string {
	return "limit:" + userID + ":" + day
}

// UsageAudit is one row per quota decision. The audit trail is advisory:
// writing it must never change the verdict of a check.
type UsageAudit struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text;not null"`
	UserID    string    `json:"user_id" gorm:"not null;index;size:255"`
	Day       string    `json:"day" gorm:"not null;index;size:10"`
	Allowed   bool      `json:"allowed" gorm:"not null"`
	Count     int64     `json:"count" gorm:"not null"`
	Backend   string    `json:"backend" gorm:"not null;size:16"`
	FailOpen  bool      `json:"fail_open" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}
