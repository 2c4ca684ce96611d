// Package session owns the client-side authentication state: the provider
// session, the identity it belongs to and that identity's profile. Store is the
// only writer of that state; everything else reads snapshots or subscribes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for background failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithProfileTimeout bounds each background profile fetch. Zero means no
// bound, leaving the guard's wait as the only timeout.
func WithProfileTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.profileTimeout = d
	}
}

// SignupRequest carries the fields of a new account and its profile.
type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	UserType  profile.UserType
	// Username is required for students and ignored for other user types.
	Username string
}

type listener struct {
	id int
	fn func(AuthState)
}

// Store holds AuthState and applies provider session changes to it.
type Store struct {
	provider       provider.Provider
	logger         *slog.Logger
	profileTimeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	initOnce sync.Once
	ready    chan struct{}

	mu          sync.Mutex
	state       AuthState
	gen         uint64
	resolved    bool
	sub         provider.Subscription
	listeners   []listener
	nextID      int
	pending     []AuthState
	dispatching bool
}

// New creates a Store in the bootstrapping state. Call Initialize to start
// session restoration.
func New(p provider.Provider, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		provider: p,
		logger:   slog.Default(),
		baseCtx:  ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		state:    AuthState{Loading: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize subscribes to provider session changes and restores the
// persisted session in the background. Only the first call has an effect.
// ctx bounds the restoration call.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		sub := s.provider.OnSessionChange(s.onSessionChange)

		s.mu.Lock()
		s.sub = sub
		gen := s.gen
		s.mu.Unlock()

		go s.restore(ctx, gen)
	})
}

func (s *Store) restore(ctx context.Context, gen uint64) {
	sess, err := s.provider.GetSession(ctx)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logger.Debug("session restore superseded by notification")
		return
	}
	if err != nil {
		s.logger.Warn("session restore failed", "error", err)
		sess = nil
	}
	s.gen++
	s.applyLocked(s.gen, sess)
	s.mu.Unlock()

	s.flush()
}

// onSessionChange is the provider callback.
func (s *Store) onSessionChange(event provider.Event, sess *provider.Session) {
	s.logger.Debug("auth state changed", "event", string(event))

	s.mu.Lock()
	s.gen++
	s.applyLocked(s.gen, sess)
	s.mu.Unlock()

	s.flush()
}

// applyLocked replaces session and identity. The caller holds mu.
func (s *Store) applyLocked(gen uint64, sess *provider.Session) {
	if sess == nil {
		s.state.Session = nil
		s.state.Identity = nil
		s.state.Profile = nil
		s.state.ProfilePending = false
		s.resolveLocked()
		s.publishLocked()
		return
	}

	id := sess.Identity
	if s.state.Identity == nil || s.state.Identity.ID != id.ID {
		s.state.Profile = nil
	}
	s.state.Session = sess
	s.state.Identity = &id
	s.state.ProfilePending = true
	s.publishLocked()

	go s.fetchProfile(gen, id.ID)
}

func (s *Store) fetchProfile(gen uint64, id uuid.UUID) {
	ctx := s.baseCtx
	if s.profileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.profileTimeout)
		defer cancel()
	}

	p, err := s.provider.GetProfile(ctx, id)

	s.mu.Lock()
	if s.gen != gen || s.state.Identity == nil || s.state.Identity.ID != id {
		s.mu.Unlock()
		s.logger.Debug("discarding stale profile fetch", "user_id", id)
		return
	}
	if err != nil {
		// Keep what is already known; a refetch failure must not revoke access.
		s.logger.Warn("profile fetch failed", "user_id", id, "error", err)
	} else {
		s.state.Profile = p
	}
	s.state.ProfilePending = false
	s.resolveLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.flush()
}

// resolveLocked ends bootstrapping. The caller holds mu.
func (s *Store) resolveLocked() {
	s.state.Loading = false
	if !s.resolved {
		s.resolved = true
		close(s.ready)
	}
}

func (s *Store) publishLocked() {
	s.pending = append(s.pending, s.state)
}

// flush delivers queued snapshots in order, outside mu. Only one goroutine
// dispatches at a time; others leave their snapshots to it.
func (s *Store) flush() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		ls := make([]listener, len(s.listeners))
		copy(ls, s.listeners)
		s.mu.Unlock()

		for _, st := range batch {
			for _, l := range ls {
				l.fn(st)
			}
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

// State returns the current snapshot.
func (s *Store) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every subsequent state change. The returned
// function removes it.
func (s *Store) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Ready is closed once bootstrapping has resolved.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Close unsubscribes from the provider and abandons in-flight profile fetches.
func (s *Store) Close() {
	s.cancel()
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Login signs in with a password. State changes arrive through the provider's
// session notification, not from here.
func (s *Store) Login(ctx context.Context, email, password string) error {
	if _, err := s.provider.SignInWithPassword(ctx, strings.TrimSpace(email), password); err != nil {
		return authError(err)
	}
	return nil
}

// Signup creates an account and its profile. For students the username is
// checked for availability before the account is created; the unique index
// behind InsertProfile still decides concurrent signups.
func (s *Store) Signup(ctx context.Context, req SignupRequest) (*profile.Profile, error) {
	if !req.UserType.Valid() {
		return nil, fmt.Errorf("%w: unknown user type %q", ErrInvalidInput, req.UserType)
	}

	var username *string
	if req.UserType == profile.Student {
		name := strings.TrimSpace(req.Username)
		if name == "" {
			return nil, ErrUsernameRequired
		}
		exists, err := s.provider.UsernameExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("checking username: %w", dataError(err))
		}
		if exists {
			return nil, ErrUsernameTaken
		}
		username = &name
	}

	ident, err := s.provider.SignUp(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, authError(err)
	}

	created, err := s.provider.InsertProfile(ctx, &profile.Profile{
		ID:        ident.ID,
		Username:  username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserType:  req.UserType,
		Interests: []string{},
	})
	if err != nil {
		s.logger.Error("profile creation failed", "user_id", ident.ID, "error", err)
		if errors.Is(err, provider.ErrUsernameTaken) {
			return nil, fmt.Errorf("%w: %w", ErrUsernameTaken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrProfileCreation, err)
	}

	s.setProfileIfCurrent(ident.ID, created)
	return created, nil
}

// Logout signs out at the provider and clears local state whatever the
// provider answers. A returned error is informational; the user is signed out.
func (s *Store) Logout(ctx context.Context) error {
	err := s.provider.SignOut(ctx)
	if err != nil {
		s.logger.Warn("sign out failed, clearing local session anyway", "error", err)
	}

	s.mu.Lock()
	s.gen++
	s.applyLocked(s.gen, nil)
	s.mu.Unlock()
	s.flush()

	if err != nil {
		return fmt.Errorf("signing out: %w", dataError(err))
	}
	return nil
}

// UpdateProfile persists u for the signed-in identity and stores the profile
// the provider returns.
func (s *Store) UpdateProfile(ctx context.Context, u profile.Update) (*profile.Profile, error) {
	s.mu.Lock()
	ident := s.state.Identity
	s.mu.Unlock()
	if ident == nil {
		return nil, ErrNotAuthenticated
	}

	updated, err := s.provider.UpdateProfile(ctx, ident.ID, u)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", dataError(err))
	}

	s.setProfileIfCurrent(ident.ID, updated)
	return updated, nil
}

// setProfileIfCurrent stores p when id is still the signed-in identity. In-flight
// fetches are invalidated since p is at least as new as anything they return.
func (s *Store) setProfileIfCurrent(id uuid.UUID, p *profile.Profile) {
	s.mu.Lock()
	if s.state.Identity == nil || s.state.Identity.ID != id {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state.Profile = p
	s.state.ProfilePending = false
	s.resolveLocked()
	s.publishLocked()
	s.mu.Unlock()

	s.flush()
}
