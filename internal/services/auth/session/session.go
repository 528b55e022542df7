// Package session provides redis-backed browser sessions.
//
// A session is the server-side record behind the opaque cookie value: who
// the caller is, plus the single in-flight WebAuthn challenge slot. Identity
// and challenges are never read from request bodies.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/id"
	"github.com/veravid/veravid/internal/services/auth/domain"
)

// ErrNotFound indicates a missing or expired session.
var ErrNotFound = apperrors.EK(apperrors.KindUnauthorized, "session.not_found", "session not found")

// Session is the server-side browser session record.
type Session struct {
	ID     string      `json:"id"`
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	// ChallengeJSON holds the single in-flight webauthn.SessionData.
	// Every ceremony begin overwrites it; a successful assertion
	// verification consumes it.
	ChallengeJSON []byte    `json:"challenge_json,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Store persists sessions in Redis with a TTL.
type Store struct {
	client      *redis.Client
	ttl         time.Duration
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewStore builds a session store. A zero ttl defaults to 24 hours.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		client:      client,
		ttl:         ttl,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock overrides the store clock, for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Create mints a session for an authenticated user.
func (s *Store) Create(ctx context.Context, userID string, role domain.Role) (Session, error) {
	if s == nil || s.client == nil {
		return Session{}, fmt.Errorf("session store is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return Session{}, fmt.Errorf("user id is required")
	}
	if !role.Valid() {
		return Session{}, fmt.Errorf("role %q is not valid", role)
	}

	sessionID, err := s.idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	now := s.clock().UTC()
	sess := Session{
		ID:        sessionID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.write(ctx, sess, s.ttl); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Get fetches a session by its opaque ID.
func (s *Store) Get(ctx context.Context, sessionID string) (Session, error) {
	if s == nil || s.client == nil {
		return Session{}, fmt.Errorf("session store is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, ErrNotFound
	}

	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("session store is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PutChallenge overwrites the session's challenge slot.
func (s *Store) PutChallenge(ctx context.Context, sessionID string, challengeJSON []byte) error {
	if len(challengeJSON) == 0 {
		return fmt.Errorf("challenge json is required")
	}
	return s.updateChallenge(ctx, sessionID, challengeJSON)
}

// ClearChallenge empties the session's challenge slot.
func (s *Store) ClearChallenge(ctx context.Context, sessionID string) error {
	return s.updateChallenge(ctx, sessionID, nil)
}

func (s *Store) updateChallenge(ctx context.Context, sessionID string, challengeJSON []byte) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("session store is not configured")
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.ChallengeJSON = challengeJSON
	// Keep the original session TTL; challenges never extend a session.
	return s.write(ctx, sess, redis.KeepTTL)
}

func (s *Store) write(ctx context.Context, sess Session, expiration time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), payload, expiration).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}
