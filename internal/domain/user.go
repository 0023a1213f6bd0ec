package domain

import "time"

// User is the minimal slice of the user entity the auth core needs. The
// full profile (learning paths, conversations, preferences) lives in the
// surrounding application and is out of scope here.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
