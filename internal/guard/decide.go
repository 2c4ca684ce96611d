// Package guard decides whether a protected view may be shown for the current
// session state, and bounds how long a view may wait for that state to settle.
package guard

import (
	"time"

	"github.com/studentfund/studentfund/internal/profile"
)

// DefaultTimeout is how long a view waits for bootstrapping before redirecting.
const DefaultTimeout = 8 * time.Second

// RedirectPath is the public landing route every Redirect leads to.
const RedirectPath = "/"

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	Wait Decision = iota
	Allow
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "WAIT"
	case Allow:
		return "ALLOW"
	case Redirect:
		return "REDIRECT"
	default:
		return "UNKNOWN"
	}
}

// Input is everything a decision depends on.
type Input struct {
	Loading       bool
	Elapsed       time.Duration
	Timeout       time.Duration // zero means DefaultTimeout
	Authenticated bool
	Profile       *profile.Profile
	Required      profile.UserType // empty means any signed-in user
}

// Decide evaluates the rules in order; the first match wins.
func Decide(in Input) Decision {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch {
	case in.Loading && in.Elapsed < timeout:
		return Wait
	case in.Loading:
		return Redirect
	case !in.Authenticated:
		return Redirect
	case in.Required != "" && (in.Profile == nil || in.Profile.UserType != in.Required):
		return Redirect
	default:
		return Allow
	}
}
