package models

import "time"

// Session is an authentication session. Sessions older than the configured
// window (default 24 hours) are deleted by the maintenance janitor.
type Session struct {
	BaseModel

	Token  string `gorm:"not null;size:128;uniqueIndex" json:"-"`
	UserID ULID   `gorm:"not null;index;type:varchar(26)" json:"user_id"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// ShareToken is a one-time share link for a stream's recording. A token
// validates iff it exists and has not expired; expired rows are purged
// lazily on validation and by the periodic sweep.
type ShareToken struct {
	BaseModel

	Token    string    `gorm:"not null;size:128;uniqueIndex" json:"token"`
	StreamID ULID      `gorm:"not null;index;type:varchar(26)" json:"stream_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName returns the table name for ShareToken.
func (ShareToken) TableName() string {
	return "share_tokens"
}

// Valid reports whether the token is still usable at the given instant.
func (t *ShareToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
