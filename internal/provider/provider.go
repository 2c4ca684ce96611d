// Package provider defines the identity, profile and storage operations the
// session core consumes. The HTTP client in internal/client is the production
// implementation; tests script their own.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/storage"
)

// Errors reported by providers. Implementations wrap them so callers can use errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not authorized")
	ErrObjectExists       = errors.New("object already exists")
	ErrRejected           = errors.New("request rejected")
	ErrUnavailable        = errors.New("provider unavailable")
)

// Identity is the authenticated principal.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is a provider-issued credential together with the identity it belongs to.
type Session struct {
	Token    *oauth2.Token `json:"token"`
	Identity Identity      `json:"user"`
}

// Expired reports whether the access token can no longer be used without a refresh.
func (s *Session) Expired() bool {
	return s.Token == nil || !s.Token.Valid()
}

// ExpiresIn returns the remaining access token lifetime.
func (s *Session) ExpiresIn() time.Duration {
	if s.Token == nil || s.Token.Expiry.IsZero() {
		return 0
	}
	return time.Until(s.Token.Expiry)
}

// Event names the cause of a session change notification.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// SessionListener receives session change notifications. session is nil on sign-out.
type SessionListener func(event Event, session *Session)

// Subscription is the handle returned by OnSessionChange.
type Subscription interface {
	Unsubscribe()
}

// Auth covers session and account operations.
type Auth interface {
	// GetSession restores the persisted session, or returns nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn SessionListener) Subscription
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
}

// Profiles covers the profiles table.
type Profiles interface {
	// GetProfile returns nil, nil when the identity has no profile.
	GetProfile(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	InsertProfile(ctx context.Context, p *profile.Profile) (*profile.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, u profile.Update) (*profile.Profile, error)
}

// Storage covers file buckets.
type Storage interface {
	UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) error
	GetPublicURL(bucket, path string) string
	ListFiles(ctx context.Context, bucket, prefix string) ([]storage.Object, error)
	DeleteFiles(ctx context.Context, bucket string, paths []string) error
}

// Provider is the full backend surface.
type Provider interface {
	Auth
	Profiles
	Storage
}
