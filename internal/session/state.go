package session

import (
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
)

// Phase is the coarse authentication state derived from AuthState.
type Phase int

const (
	PhaseBootstrapping Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticatedNoProfile
	PhaseAuthenticatedWithProfile
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticatedNoProfile:
		return "authenticated_no_profile"
	case PhaseAuthenticatedWithProfile:
		return "authenticated_with_profile"
	default:
		return "unknown"
	}
}

// AuthState is a snapshot of who is signed in. Values reachable from a
// snapshot are shared with the store and must not be modified.
type AuthState struct {
	Session  *provider.Session
	Identity *provider.Identity
	Profile  *profile.Profile

	// Loading is true from construction until the first session resolution completes.
	Loading bool
	// ProfilePending is true while a profile fetch for Identity is in flight.
	ProfilePending bool
}

// IsAuthenticated reports whether an identity is present.
func (s AuthState) IsAuthenticated() bool {
	return s.Identity != nil
}

// Phase derives the state machine position.
func (s AuthState) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseBootstrapping
	case s.Identity == nil:
		return PhaseUnauthenticated
	case s.Profile == nil:
		return PhaseAuthenticatedNoProfile
	default:
		return PhaseAuthenticatedWithProfile
	}
}

// UserType returns the profile's user type, or "" when no profile is loaded.
func (s AuthState) UserType() profile.UserType {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.UserType
}
