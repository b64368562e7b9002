package domain

import "time"

// User is an account whose mailbox the engine acts on. The OAuth tokens are
// written by the login flow (out of scope here) and rotated through the
// provider client's refresh callback
type User struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	Email         string    `json:"email" gorm:"uniqueIndex;not null"`
	Name          string    `json:"name"`
	GoogleID      string    `json:"google_id,omitempty" gorm:"index"`
	AccessToken   string    `json:"-"`
	RefreshToken  string    `json:"-"`
	LastHistoryID uint64    `json:"-"` // Gmail history cursor for notification dedup
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
