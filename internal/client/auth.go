package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/studentfund/studentfund/internal/provider"
)

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u userResponse) identity() (provider.Identity, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return provider.Identity{}, fmt.Errorf("invalid user id %q: %w", u.ID, err)
	}
	return provider.Identity{ID: id, Email: u.Email}, nil
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    string       `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func (s *sessionResponse) session() (*provider.Session, error) {
	ident, err := s.User.identity()
	if err != nil {
		return nil, err
	}
	expiry, err := time.Parse(time.RFC3339, s.ExpiresAt)
	if err != nil {
		expiry = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &provider.Session{
		Token: &oauth2.Token{
			AccessToken:  s.AccessToken,
			TokenType:    s.TokenType,
			RefreshToken: s.RefreshToken,
			Expiry:       expiry,
		},
		Identity: ident,
	}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type subscription struct {
	c  *Client
	id int
}

func (s subscription) Unsubscribe() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.listeners, s.id)
}

// OnSessionChange registers fn for sign-in, sign-out and token refresh events.
// Listeners run synchronously on the goroutine that caused the change.
func (c *Client) OnSessionChange(fn provider.SessionListener) provider.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return subscription{c: c, id: id}
}

func (c *Client) emit(event provider.Event, sess *provider.Session) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]provider.SessionListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

// current returns the in-memory session, loading it from the session file on
// first use.
func (c *Client) current() *provider.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.loaded = true
		if c.file != nil {
			sess, err := c.file.Load()
			if err != nil {
				c.logger.Warn("ignoring unreadable session file", "path", c.file.Path(), "error", err)
			}
			c.session = sess
		}
	}
	return c.session
}

func (c *Client) setSession(sess *provider.Session) {
	c.mu.Lock()
	c.session = sess
	c.loaded = true
	c.mu.Unlock()

	if c.file == nil {
		return
	}
	var err error
	if sess == nil {
		err = c.file.Clear()
	} else {
		err = c.file.Save(sess)
	}
	if err != nil {
		c.logger.Warn("failed to persist session", "error", err)
	}
}

// forget drops the in-memory session without touching the session file, so
// this process treats the user as signed out while a later run can still
// restore the session.
func (c *Client) forget() {
	c.mu.Lock()
	c.session = nil
	c.loaded = true
	c.mu.Unlock()
}

// GetSession restores the persisted session. An expired access token is
// refreshed first; the session is then checked against the server and
// discarded if the server no longer accepts it.
func (c *Client) GetSession(ctx context.Context) (*provider.Session, error) {
	sess := c.current()
	if sess == nil {
		return nil, nil
	}

	if sess.Expired() {
		refreshed, err := c.refresh(ctx, sess)
		if err != nil {
			if errors.Is(err, provider.ErrUnauthorized) {
				c.setSession(nil)
				return nil, nil
			}
			c.forget()
			return nil, err
		}
		sess = refreshed
	}

	var user userResponse
	err := c.send(ctx, request{method: http.MethodGet, path: "/auth/user", token: sess.Token}, &user)
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) {
			c.logger.Debug("stored session rejected by server")
			c.setSession(nil)
			return nil, nil
		}
		c.forget()
		return nil, fmt.Errorf("validating session: %w", err)
	}
	return sess, nil
}

// refresh rotates stale's refresh token. Concurrent callers holding the same
// stale session share one rotation.
func (c *Client) refresh(ctx context.Context, stale *provider.Session) (*provider.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if cur := c.current(); cur != nil && cur != stale && !cur.Expired() && cur.Identity.ID == stale.Identity.ID {
		return cur, nil
	}
	if stale.Token == nil || stale.Token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", provider.ErrUnauthorized)
	}

	req, err := jsonRequest(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": stale.Token.RefreshToken})
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	sess, err := resp.session()
	if err != nil {
		return nil, err
	}

	c.setSession(sess)
	c.emit(provider.EventTokenRefreshed, sess)
	return sess, nil
}

// token returns a usable access token for authenticated calls.
func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	sess := c.current()
	if sess == nil {
		return nil, fmt.Errorf("%w: not signed in", provider.ErrUnauthorized)
	}
	if sess.Expired() {
		var err error
		if sess, err = c.refresh(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess.Token, nil
}

// SignInWithPassword signs in and notifies listeners with EventSignedIn.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.Identity, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/login", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	sess, err := resp.session()
	if err != nil {
		return nil, err
	}

	c.setSession(sess)
	c.emit(provider.EventSignedIn, sess)
	ident := sess.Identity
	return &ident, nil
}

// SignUp creates an account. When the server opens a session right away,
// listeners are notified with EventSignedIn.
func (c *Client) SignUp(ctx context.Context, email, password string) (*provider.Identity, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/signup", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var resp struct {
		User    userResponse     `json:"user"`
		Session *sessionResponse `json:"session"`
	}
	if err := c.send(ctx, req, &resp); err != nil {
		return nil, err
	}
	ident, err := resp.User.identity()
	if err != nil {
		return nil, err
	}

	if resp.Session != nil {
		sess, err := resp.Session.session()
		if err != nil {
			return nil, err
		}
		c.setSession(sess)
		c.emit(provider.EventSignedIn, sess)
	}
	return &ident, nil
}

// SignOut revokes the server session. Local state is cleared and
// EventSignedOut emitted even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.current()
	if sess == nil {
		return nil
	}

	var err error
	if sess.Token != nil {
		err = c.send(ctx, request{method: http.MethodPost, path: "/auth/logout", token: sess.Token}, nil)
		if errors.Is(err, provider.ErrUnauthorized) {
			err = nil
		}
	}

	c.setSession(nil)
	c.emit(provider.EventSignedOut, nil)
	return err
}
