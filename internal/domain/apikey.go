package domain

import "time"

// APIKey is a long-lived non-interactive credential. The plaintext secret
// exists only in the issuance response; rows store its SHA-256 hash.
type APIKey struct {
	KeyID              string     `gorm:"primaryKey;size:36" json:"key_id"`
	UserID             string     `gorm:"size:36;index;not null" json:"user_id"`
	KeyHash            string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	Name               string     `gorm:"size:128;not null" json:"name"`
	Permissions        StringList `gorm:"type:text" json:"permissions"`
	IsActive           bool       `gorm:"index;not null;default:true" json:"is_active"`
	UsageCount         int64      `gorm:"not null;default:0" json:"usage_count"`
	RateLimitPerMinute *int       `json:"rate_limit_per_minute,omitempty"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`
	LastUsed           *time.Time `json:"last_used,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Usable reports whether the key authenticates at the given instant.
// A nil ExpiresAt means the key never expires.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}
