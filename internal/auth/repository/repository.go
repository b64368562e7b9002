package repository

import authdomain "mailpilot-backend/internal/auth/domain"

// UserRepository defines the interface for user data access
type UserRepository interface {
	// FindByID finds a user by id, or nil
	FindByID(id string) (*authdomain.User, error)

	// FindByEmail finds a user by primary email address, or nil
	FindByEmail(email string) (*authdomain.User, error)

	// FindAll returns every user; the ingestion loop walks this list
	FindAll() ([]*authdomain.User, error)

	// UpdateTokens persists rotated OAuth tokens for a user
	UpdateTokens(userID, accessToken, refreshToken string) error

	// UpdateLastHistoryID advances the user's Gmail history cursor
	UpdateLastHistoryID(userID string, historyID uint64) error
}
