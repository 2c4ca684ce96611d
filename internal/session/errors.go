package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/studentfund/studentfund/internal/provider"
)

// Errors returned by Store commands. Every command error matches exactly one
// of them under KindOf; the provider cause stays reachable with errors.Is.
var (
	ErrAuthentication      = errors.New("authentication failed")
	ErrEmailNotConfirmed   = fmt.Errorf("%w: please confirm your email address, check your inbox for a verification link", ErrAuthentication)
	ErrUsernameTaken       = errors.New("username already exists")
	ErrUsernameRequired    = errors.New("username is required for students")
	ErrProfileCreation     = errors.New("failed to create user profile")
	ErrNotAuthenticated    = errors.New("no user logged in")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)

// ErrorKind names the class of a Store error.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAuthentication
	KindEmailNotConfirmed
	KindUsernameTaken
	KindUsernameRequired
	KindProfileCreation
	KindNotAuthenticated
	KindProviderUnavailable
	KindInvalidInput
	KindUnknown
)

var kindNames = map[ErrorKind]string{
	KindNone:                "none",
	KindAuthentication:      "authentication",
	KindEmailNotConfirmed:   "email_not_confirmed",
	KindUsernameTaken:       "username_taken",
	KindUsernameRequired:    "username_required",
	KindProfileCreation:     "profile_creation",
	KindNotAuthenticated:    "not_authenticated",
	KindProviderUnavailable: "provider_unavailable",
	KindInvalidInput:        "invalid_input",
	KindUnknown:             "unknown",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindOf classifies err. EmailNotConfirmed is checked before Authentication
// since it is a specialization of it.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmailNotConfirmed):
		return KindEmailNotConfirmed
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrUsernameTaken):
		return KindUsernameTaken
	case errors.Is(err, ErrUsernameRequired):
		return KindUsernameRequired
	case errors.Is(err, ErrProfileCreation):
		return KindProfileCreation
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindUnknown
	}
}

func unavailable(err error) bool {
	return errors.Is(err, provider.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// authError maps a sign-in or sign-up failure.
func authError(err error) error {
	switch {
	case errors.Is(err, provider.ErrEmailNotConfirmed):
		return fmt.Errorf("%w: %w", ErrEmailNotConfirmed, err)
	case unavailable(err):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
}

// dataError maps a profile read or write failure.
func dataError(err error) error {
	switch {
	case unavailable(err):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case errors.Is(err, provider.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	case errors.Is(err, provider.ErrRejected):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return err
	}
}
