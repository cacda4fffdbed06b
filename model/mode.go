package model

import "time"

// ModeFlag is the one-shot "treat the next message specially" marker. At
// most one flag is active per user; arming again overwrites it.
type ModeFlag struct {
	Style     string    `json:"style"`
	CreatedAt time.Time `json:"created_at"`
}

func (f ModeFlag) StaleAt(ttl time.Duration) time.Time {
	return f.CreatedAt.Add(ttl)
}

func ModeKey(userID string) string {
	return "insert_mode:" + userID
}
