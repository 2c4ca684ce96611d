package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a row in the accounts table.
type Account struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time // nil until the address is confirmed
	CreatedAt        time.Time
}

// Confirmed reports whether the account's email address has been confirmed.
func (a *Account) Confirmed() bool {
	return a.EmailConfirmedAt != nil
}

// Identity is stored in the request context after bearer authentication.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	SessionID string
}

// IssuedSession is the credential pair handed to a client on login, signup
// and refresh.
type IssuedSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}
