package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a server session is unknown, expired or revoked.
var ErrSessionNotFound = errors.New("session not found")

// ErrRefreshMismatch is returned when a refresh secret does not match the session.
var ErrRefreshMismatch = errors.New("refresh token mismatch")

const (
	rotateMissing  int64 = 0
	rotateRotated  int64 = 1
	rotateMismatch int64 = 2
)

const rotateRefreshScript = `
local current = redis.call("HGET", KEYS[1], "refresh_hash")
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 2
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// SessionRegistry tracks live server sessions in Redis. A session exists from
// login until logout or until its TTL lapses without a refresh.
type SessionRegistry struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionRegistry creates a registry storing keys under prefix.
func NewSessionRegistry(rdb *redis.Client, prefix string, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *SessionRegistry) key(sid string) string {
	return s.prefix + ":session:" + sid
}

// Create opens a session for userID and returns its id and refresh token.
func (s *SessionRegistry) Create(ctx context.Context, userID uuid.UUID) (sid, refreshToken string, err error) {
	secret, err := newSecret()
	if err != nil {
		return "", "", err
	}
	sid = uuid.NewString()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key(sid), map[string]any{
		"user_id":      userID.String(),
		"refresh_hash": hashSecret(secret),
		"created_at":   time.Now().UTC().Unix(),
	})
	pipe.PExpire(ctx, s.key(sid), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", fmt.Errorf("storing session: %w", err)
	}

	return sid, sid + "." + secret, nil
}

// Lookup returns the user owning sid.
func (s *SessionRegistry) Lookup(ctx context.Context, sid string) (uuid.UUID, error) {
	raw, err := s.rdb.HGet(ctx, s.key(sid), "user_id").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrSessionNotFound
		}
		return uuid.Nil, fmt.Errorf("reading session: %w", err)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}
	return userID, nil
}

// Rotate swaps the refresh secret of the session named in refreshToken and
// extends its lifetime. It returns the session id, the owner and the new refresh token.
func (s *SessionRegistry) Rotate(ctx context.Context, refreshToken string) (string, uuid.UUID, string, error) {
	sid, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || sid == "" || secret == "" {
		return "", uuid.Nil, "", ErrRefreshMismatch
	}

	next, err := newSecret()
	if err != nil {
		return "", uuid.Nil, "", err
	}

	status, err := rotateRefreshLua.Run(ctx, s.rdb,
		[]string{s.key(sid)},
		hashSecret(secret), hashSecret(next), s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return "", uuid.Nil, "", fmt.Errorf("rotating refresh token: %w", err)
	}

	switch status {
	case rotateRotated:
	case rotateMissing:
		return "", uuid.Nil, "", ErrSessionNotFound
	case rotateMismatch:
		return "", uuid.Nil, "", ErrRefreshMismatch
	default:
		return "", uuid.Nil, "", fmt.Errorf("rotating refresh token: unexpected status %d", status)
	}

	userID, err := s.Lookup(ctx, sid)
	if err != nil {
		return "", uuid.Nil, "", err
	}

	return sid, userID, sid + "." + next, nil
}

// Revoke deletes a session. Revoking an unknown session is not an error.
func (s *SessionRegistry) Revoke(ctx context.Context, sid string) error {
	if err := s.rdb.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *SessionRegistry) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
