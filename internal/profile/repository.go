package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrProfileNotFound is returned when a profile record is not found.
var ErrProfileNotFound = errors.New("profile not found")

// ErrUsernameTaken is returned when another profile already owns the username.
var ErrUsernameTaken = errors.New("username already exists")

// ErrProfileExists is returned when the identity already has a profile.
var ErrProfileExists = errors.New("profile already exists")

// DefaultListLimit applies when ListFilter.Limit is zero.
const DefaultListLimit = 100

// ListFilter narrows List results. A nil UserType lists every profile.
type ListFilter struct {
	UserType *UserType
	Limit    int
}

// Repository provides operations on the profiles table.
type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, id uuid.UUID, u Update) (*Profile, error)
	List(ctx context.Context, filter ListFilter) ([]Profile, error)
}
