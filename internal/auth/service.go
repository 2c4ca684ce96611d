package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the email/password pair does not match an account.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// ErrEmailNotConfirmed is returned on login when confirmation is required and missing.
var ErrEmailNotConfirmed = errors.New("email not confirmed")

// ServiceConfig tunes the auth Service.
type ServiceConfig struct {
	BcryptCost               int
	RequireEmailConfirmation bool
}

// Service provides account and session operations for the provider API.
type Service struct {
	accounts AccountRepository
	sessions *SessionRegistry
	tokens   *TokenManager
	cfg      ServiceConfig

	// dummyHash is compared against when the email is unknown so both
	// branches cost one bcrypt comparison.
	dummyHash []byte
}

// NewService creates a new auth Service.
func NewService(accounts AccountRepository, sessions *SessionRegistry, tokens *TokenManager, cfg ServiceConfig) (*Service, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("studentfund-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing dummy password: %w", err)
	}
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		tokens:    tokens,
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

// SignUp creates an account. The returned session is nil when the account
// must confirm its email before signing in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Account, *IssuedSession, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	a := &Account{Email: email, PasswordHash: string(hash)}
	if !s.cfg.RequireEmailConfirmation {
		now := time.Now().UTC()
		a.EmailConfirmedAt = &now
	}

	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, nil, err
	}

	if s.cfg.RequireEmailConfirmation {
		return a, nil, nil
	}

	sess, err := s.issue(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	return a, sess, nil
}

// SignIn verifies a password and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*IssuedSession, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if s.cfg.RequireEmailConfirmation && !a.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}

	return s.issue(ctx, a)
}

// Refresh rotates the refresh token and issues a new access token for the same session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*IssuedSession, error) {
	sid, userID, nextRefresh, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	a, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = s.sessions.Revoke(ctx, sid)
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(a.ID, a.Email, sid)
	if err != nil {
		return nil, err
	}

	return &IssuedSession{
		AccessToken:  token,
		RefreshToken: nextRefresh,
		ExpiresAt:    expiresAt,
		Identity:     Identity{UserID: a.ID, Email: a.Email, SessionID: sid},
	}, nil
}

// SignOut revokes the server session. Access tokens bound to it stop
// authenticating immediately.
func (s *Service) SignOut(ctx context.Context, sid string) error {
	return s.sessions.Revoke(ctx, sid)
}

// Authenticate resolves a bearer access token to an Identity. The token must
// verify and its session must still be live.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	identity, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	owner, err := s.sessions.Lookup(ctx, identity.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if owner != identity.UserID {
		return nil, ErrInvalidToken
	}

	return identity, nil
}

// Ping checks the session backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) issue(ctx context.Context, a *Account) (*IssuedSession, error) {
	sid, refreshToken, err := s.sessions.Create(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(a.ID, a.Email, sid)
	if err != nil {
		_ = s.sessions.Revoke(ctx, sid)
		return nil, err
	}

	return &IssuedSession{
		AccessToken:  token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Identity:     Identity{UserID: a.ID, Email: a.Email, SessionID: sid},
	}, nil
}
