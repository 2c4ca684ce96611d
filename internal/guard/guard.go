package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/session"
)

// Source is the read side of a session store.
type Source interface {
	State() session.AuthState
	Subscribe(fn func(session.AuthState)) (unsubscribe func())
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger used to report forced redirects.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

// Guard is a guard mounted on a protected view. The bounded wait is measured
// from the moment it is created.
type Guard struct {
	src     Source
	now     func() time.Time
	timeout time.Duration
	logger  *slog.Logger
	mounted time.Time
}

// New mounts a guard over src.
func New(src Source, opts ...Option) *Guard {
	g := &Guard{
		src:     src,
		now:     time.Now,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.mounted = g.now()
	return g
}

// Elapsed returns the time since the guard was mounted.
func (g *Guard) Elapsed() time.Duration {
	return g.now().Sub(g.mounted)
}

// CanAccess evaluates the guard against the current state.
func (g *Guard) CanAccess(required profile.UserType) Decision {
	return g.decide(g.src.State(), g.Elapsed(), required)
}

func (g *Guard) decide(st session.AuthState, elapsed time.Duration, required profile.UserType) Decision {
	d := Decide(Input{
		Loading:       st.Loading,
		Elapsed:       elapsed,
		Timeout:       g.timeout,
		Authenticated: st.IsAuthenticated(),
		Profile:       st.Profile,
		Required:      required,
	})
	if d == Redirect && st.Loading {
		g.logger.Warn("session not resolved within bounded wait, redirecting",
			"timeout", g.timeout.String(),
			"redirect", RedirectPath,
		)
	}
	return d
}

// Await blocks until the decision is no longer Wait. It re-evaluates on every
// state change and redirects once the bounded wait runs out. The returned
// error is non-nil only when ctx ends first, in which case the decision is Wait.
func (g *Guard) Await(ctx context.Context, required profile.UserType) (Decision, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := g.src.Subscribe(func(session.AuthState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		d := g.CanAccess(required)
		if d != Wait {
			return d, nil
		}

		timer := time.NewTimer(g.timeout - g.Elapsed())
		select {
		case <-ctx.Done():
			timer.Stop()
			return Wait, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
			return g.decide(g.src.State(), max(g.Elapsed(), g.timeout), required), nil
		}
	}
}

// NavMode tells navigation what to render.
type NavMode int

const (
	NavSkeleton NavMode = iota
	NavAnonymous
	NavAuthenticated
)

func (m NavMode) String() string {
	switch m {
	case NavSkeleton:
		return "skeleton"
	case NavAnonymous:
		return "anonymous"
	case NavAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Nav never reports authenticated navigation while the state is loading.
func Nav(st session.AuthState) NavMode {
	switch {
	case st.Loading:
		return NavSkeleton
	case st.IsAuthenticated():
		return NavAuthenticated
	default:
		return NavAnonymous
	}
}
