package domain

import "time"

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionRevoked SessionStatus = "revoked"
)

// Terminal reports whether a status permits no further transitions other
// than physical deletion by the cleanup sweep.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired || s == SessionRevoked
}

type Session struct {
	SessionID    string        `gorm:"primaryKey;size:64" json:"session_id"`
	UserID       string        `gorm:"size:36;index;not null" json:"user_id"`
	Status       SessionStatus `gorm:"size:16;index;not null;default:active" json:"status"`
	IPAddress    string        `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    string        `gorm:"size:512" json:"user_agent,omitempty"`
	Metadata     Metadata      `gorm:"type:text" json:"metadata,omitempty"`
	ExpiresAt    time.Time     `gorm:"index;not null" json:"expires_at"`
	LastAccessed time.Time     `json:"last_accessed"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Alive reports whether the session still authenticates at the given
// instant. The stored status is authoritative; a token that decodes
// cleanly does not authenticate once its row left the active state.
func (s *Session) Alive(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
