package models

import "time"

// Account represents a bank account holder who can sign in to the portal.
type Account struct {
	ID            int64     `json:"id"`
	AccountNumber string    `json:"account_number"`
	PasswordHash  string    `json:"-"`
	HolderName    string    `json:"holder_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session is the single authenticated session slot for the portal.
type Session struct {
	Token        string            `json:"token"`
	User         map[string]string `json:"user"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// AttemptRecord tracks failed login attempts for one account number.
// A zero LockedUntil means the account is not locked.
type AttemptRecord struct {
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// FieldChange describes one profile field edit for the update notification.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// LoginEvent carries the details sent with a login notification.
type LoginEvent struct {
	UserEmail     string
	AccountNumber string
	IPAddress     string
	UserAgent     string
}

// UpdateEvent carries the details sent with a profile update notification.
type UpdateEvent struct {
	UserEmail     string
	AccountNumber string
	Changes       []FieldChange
}
