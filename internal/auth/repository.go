package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAccountNotFound is returned when an account record is not found.
var ErrAccountNotFound = errors.New("account not found")

// ErrEmailTaken is returned when an account with the same email already exists.
var ErrEmailTaken = errors.New("email already registered")

// AccountRepository provides operations on the accounts table.
type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// ListOrphans returns accounts created before cutoff that have no profile.
	ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
