package guard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfund/studentfund/internal/guard"
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/provider/providertest"
	"github.com/studentfund/studentfund/internal/session"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// staticSource is a Source whose state is set directly.
type staticSource struct {
	mu        sync.Mutex
	state     session.AuthState
	listeners []func(session.AuthState)
}

func (s *staticSource) State() session.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *staticSource) Subscribe(fn func(session.AuthState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func (s *staticSource) Set(st session.AuthState) {
	s.mu.Lock()
	s.state = st
	ls := append([]func(session.AuthState){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}

func TestGuard_BoundedWaitBoundary(t *testing.T) {
	clock := newFakeClock()
	src := &staticSource{state: session.AuthState{Loading: true}}
	g := guard.New(src, guard.WithClock(clock.Now))

	assert.Equal(t, guard.Wait, g.CanAccess(profile.Donor))

	clock.Advance(7999 * time.Millisecond)
	assert.Equal(t, guard.Wait, g.CanAccess(profile.Donor))

	clock.Advance(time.Millisecond)
	assert.Equal(t, guard.Redirect, g.CanAccess(profile.Donor))
	assert.Equal(t, 8*time.Second, g.Elapsed())
}

func TestGuard_Await_ResolvesWithoutTimer(t *testing.T) {
	id := uuid.New()
	src := &staticSource{state: session.AuthState{Loading: true}}
	g := guard.New(src, guard.WithTimeout(time.Hour))

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.Set(session.AuthState{
			Identity: &provider.Identity{ID: id},
			Profile:  &profile.Profile{ID: id, UserType: profile.Student},
		})
	}()

	d, err := g.Await(context.Background(), profile.Student)
	require.NoError(t, err)
	assert.Equal(t, guard.Allow, d)
}

func TestGuard_Await_TimesOut(t *testing.T) {
	src := &staticSource{state: session.AuthState{Loading: true}}
	g := guard.New(src, guard.WithTimeout(30*time.Millisecond))

	start := time.Now()
	d, err := g.Await(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, guard.Redirect, d)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGuard_Await_TimerUsesFrozenClock(t *testing.T) {
	clock := newFakeClock()
	src := &staticSource{state: session.AuthState{Loading: true}}
	g := guard.New(src, guard.WithClock(clock.Now), guard.WithTimeout(20*time.Millisecond))

	d, err := g.Await(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, guard.Redirect, d)
}

func TestGuard_Await_ContextCancelled(t *testing.T) {
	src := &staticSource{state: session.AuthState{Loading: true}}
	g := guard.New(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := g.Await(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, guard.Wait, d)
}

func TestNav(t *testing.T) {
	assert.Equal(t, guard.NavSkeleton, guard.Nav(session.AuthState{Loading: true, Identity: &provider.Identity{}}))
	assert.Equal(t, guard.NavAnonymous, guard.Nav(session.AuthState{}))
	assert.Equal(t, guard.NavAuthenticated, guard.Nav(session.AuthState{Identity: &provider.Identity{}}))
	assert.Equal(t, "skeleton", guard.NavSkeleton.String())
}

// Scenario A: fresh start, nothing persisted.
func TestScenario_NoPersistedSession(t *testing.T) {
	fake := providertest.New()
	fake.GetSessionFn = func(context.Context) (*provider.Session, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	store := session.New(fake)
	defer store.Close()
	g := guard.New(store)
	store.Initialize(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d, err := g.Await(ctx, profile.Donor)
	require.NoError(t, err)
	assert.Equal(t, guard.Redirect, d)

	st := store.State()
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Profile)
	assert.False(t, st.Loading)
}

// Scenario B: persisted donor session, profile arrives after 300ms.
func TestScenario_PersistedDonorSession(t *testing.T) {
	id := uuid.New()
	fake := providertest.New()
	fake.GetSessionFn = func(context.Context) (*provider.Session, error) {
		return providertest.NewSession(id, "u1@example.com"), nil
	}
	fake.GetProfileFn = func(context.Context, uuid.UUID) (*profile.Profile, error) {
		time.Sleep(300 * time.Millisecond)
		return &profile.Profile{ID: id, FirstName: "Don", LastName: "Or", UserType: profile.Donor}, nil
	}
	store := session.New(fake)
	defer store.Close()
	g := guard.New(store)
	store.Initialize(context.Background())

	assert.Equal(t, guard.Wait, g.CanAccess(profile.Donor))

	d, err := g.Await(context.Background(), profile.Donor)
	require.NoError(t, err)
	assert.Equal(t, guard.Allow, d)
	assert.False(t, store.State().Loading)
	assert.Equal(t, guard.Redirect, g.CanAccess(profile.Student))
}

// Scenario C: the profile fetch never returns.
func TestScenario_ProfileFetchHangs(t *testing.T) {
	id := uuid.New()
	fake := providertest.New()
	fake.GetSessionFn = func(context.Context) (*provider.Session, error) {
		return providertest.NewSession(id, "u1@example.com"), nil
	}
	fake.GetProfileFn = func(ctx context.Context, _ uuid.UUID) (*profile.Profile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	store := session.New(fake)
	defer store.Close()
	store.Initialize(context.Background())
	require.Eventually(t, func() bool { return store.State().Identity != nil }, time.Second, time.Millisecond)

	clock := newFakeClock()
	g := guard.New(store, guard.WithClock(clock.Now))

	clock.Advance(7999 * time.Millisecond)
	assert.Equal(t, guard.Wait, g.CanAccess(profile.Donor))

	clock.Advance(time.Millisecond)
	assert.Equal(t, guard.Redirect, g.CanAccess(profile.Donor))
	assert.True(t, store.State().Loading, "the store itself is still waiting")
}

// Scenario D: wrong password.
func TestScenario_WrongPassword(t *testing.T) {
	fake := providertest.New()
	store := session.New(fake)
	defer store.Close()
	g := guard.New(store)
	store.Initialize(context.Background())
	<-store.Ready()

	err := store.Login(context.Background(), "a@b.com", "wrongpass")
	require.Error(t, err)
	assert.Equal(t, session.KindAuthentication, session.KindOf(err))
	assert.Nil(t, store.State().Identity)
	assert.Equal(t, guard.Redirect, g.CanAccess(profile.Donor))
}
