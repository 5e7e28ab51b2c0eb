// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// SessionResult bundles a session with its owning user. Fresh is true only
// when the session's expiration was renewed as part of the current call;
// newly created sessions are never fresh.
type SessionResult struct {
	Session *Session
	User    *User
	Fresh   bool
}

// CreateUserKey describes the credential created alongside a user in
// Service.CreateUser. Password may be nil for passwordless provider keys.
type CreateUserKey struct {
	Provider       string
	ProviderUserID string
	Password       *string
}

// Service orchestrates users, keys, and sessions over an Adapter. It holds
// no mutable state beyond configuration set at construction; all operations
// are independent calls against the adapter.
//
// Two concurrent ValidateSession calls for the same idle session may both
// renew it; the storage layer's last write wins. This race is accepted, no
// optimistic locking is attempted.
type Service struct {
	adapter Adapter
	hasher  PasswordHasher
	tokens  TokenGenerator
	policy  ExpirationPolicy
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHasher overrides the default argon2id password hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithTokenGenerator overrides the default session token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Service) { s.tokens = g }
}

// WithExpirationPolicy overrides the default active/idle periods.
func WithExpirationPolicy(p ExpirationPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source. Used by tests to drive the session
// state machine deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over the given adapter.
func NewService(adapter Adapter, opts ...Option) (*Service, error) {
	if adapter == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("adapter is required")
	}
	s := &Service{
		adapter: adapter,
		hasher:  NewArgon2idHasher(),
		tokens:  NewRandomTokenGenerator(DefaultTokenLength),
		policy:  DefaultExpirationPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("password hasher is required")
	}
	if s.tokens == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("token generator is required")
	}
	if s.policy.ActivePeriod <= 0 || s.policy.IdlePeriod <= 0 {
		return nil, oops.Code("SERVICE_INVALID").Errorf("expiration periods must be positive")
	}
	return s, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.adapter.GetUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	if user == nil {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(ErrNotFound)
	}
	return user, nil
}

// CreateUser creates a user, and when key is non-nil, its first credential
// in the same atomic storage operation. A non-nil key password is hashed
// before anything is persisted.
func (s *Service) CreateUser(ctx context.Context, key *CreateUserKey, attributes UserAttributes) (*User, error) {
	user := &User{Attributes: attributes}

	if key == nil {
		created, err := s.adapter.SetUser(ctx, user, nil)
		if err != nil {
			return nil, oops.Code("USER_CREATE_FAILED").
				Wrap(errors.Join(ErrCreationFailed, err))
		}
		return created, nil
	}

	var hashedPassword *string
	if key.Password != nil {
		hashed, err := s.hasher.Hash(*key.Password)
		if err != nil {
			return nil, oops.Code("USER_CREATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		hashedPassword = &hashed
	}

	// UserID is bound by the adapter once the user row exists.
	dbKey := &Key{
		Provider:       key.Provider,
		ProviderUserID: key.ProviderUserID,
		HashedPassword: hashedPassword,
	}

	created, err := s.adapter.SetUser(ctx, user, dbKey)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("provider", key.Provider).
			Wrap(errors.Join(ErrCreationFailed, err))
	}
	return created, nil
}

// UpdateUserAttributes replaces the user's profile attributes.
func (s *Service) UpdateUserAttributes(ctx context.Context, userID string, attributes UserAttributes) (*User, error) {
	user, err := s.adapter.UpdateUser(ctx, userID, attributes)
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return user, nil
}

// DeleteUser cascades: sessions, then keys, then the user. The steps are
// not atomic; a crash mid-sequence may leave orphaned rows referencing a
// gone user. That is an accepted risk, surfaced as-is without rollback.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.adapter.DeleteUser(ctx, userID); err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// UseKey verifies a credential and returns it. Keys carrying a hashed
// password require a matching password; passwordless keys accept any
// supplied value without verification.
func (s *Service) UseKey(ctx context.Context, provider, providerUserID string, password *string) (*Key, error) {
	key, err := s.adapter.GetKey(ctx, provider, providerUserID)
	if err != nil {
		return nil, oops.Code("KEY_GET_FAILED").
			With("provider", provider).
			Wrap(err)
	}
	if key == nil {
		return nil, oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(ErrNotFound)
	}

	if key.HashedPassword != nil {
		if password == nil {
			return nil, oops.Code("KEY_PASSWORD_REQUIRED").
				With("provider", provider).
				Wrap(ErrPasswordRequired)
		}
		valid, err := s.hasher.Verify(*password, *key.HashedPassword)
		if err != nil {
			return nil, oops.Code("KEY_VERIFY_FAILED").
				With("provider", provider).
				Wrap(err)
		}
		if !valid {
			return nil, oops.Code("KEY_INVALID_PASSWORD").
				With("provider", provider).
				Wrap(ErrInvalidCredential)
		}
	}
	return key, nil
}

// CreateKey creates a credential for an existing user. A non-nil password
// is hashed; nil creates a passwordless key.
func (s *Service) CreateKey(ctx context.Context, userID, provider, providerUserID string, password *string) (*Key, error) {
	var hashedPassword *string
	if password != nil {
		hashed, err := s.hasher.Hash(*password)
		if err != nil {
			return nil, oops.Code("KEY_CREATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		hashedPassword = &hashed
	}

	key, err := NewKey(provider, providerUserID, userID, hashedPassword)
	if err != nil {
		return nil, err
	}

	created, err := s.adapter.SetKey(ctx, key)
	if err != nil {
		return nil, oops.Code("KEY_CREATE_FAILED").
			With("provider", provider).
			With("user_id", userID).
			Wrap(errors.Join(ErrCreationFailed, err))
	}
	return created, nil
}

// GetKey retrieves a key by its (provider, providerUserId) primary key.
func (s *Service) GetKey(ctx context.Context, provider, providerUserID string) (*Key, error) {
	key, err := s.adapter.GetKey(ctx, provider, providerUserID)
	if err != nil {
		return nil, oops.Code("KEY_GET_FAILED").
			With("provider", provider).
			Wrap(err)
	}
	if key == nil {
		return nil, oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(ErrNotFound)
	}
	return key, nil
}

// GetAllUserKeys retrieves all keys bound to a user.
func (s *Service) GetAllUserKeys(ctx context.Context, userID string) ([]*Key, error) {
	keys, err := s.adapter.GetKeysByUserID(ctx, userID)
	if err != nil {
		return nil, oops.Code("KEY_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return keys, nil
}

// UpdateKeyPassword rewrites the key's password. A non-nil password is
// hashed; nil removes password protection, making the key passwordless.
func (s *Service) UpdateKeyPassword(ctx context.Context, provider, providerUserID string, password *string) (*Key, error) {
	var hashedPassword *string
	if password != nil {
		hashed, err := s.hasher.Hash(*password)
		if err != nil {
			return nil, oops.Code("KEY_UPDATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		hashedPassword = &hashed
	}

	key, err := s.adapter.UpdateKey(ctx, provider, providerUserID, hashedPassword)
	if err != nil {
		return nil, oops.Code("KEY_UPDATE_FAILED").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(err)
	}
	return key, nil
}

// DeleteKey removes a credential.
func (s *Service) DeleteKey(ctx context.Context, provider, providerUserID string) error {
	if err := s.adapter.DeleteKey(ctx, provider, providerUserID); err != nil {
		return oops.Code("KEY_DELETE_FAILED").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(err)
	}
	return nil
}

// CreateSession creates a session for an existing user. sessionID may be
// empty, in which case a token is generated. The result is never fresh:
// freshness denotes a renewal, not creation.
func (s *Service) CreateSession(ctx context.Context, userID, sessionID string) (*SessionResult, error) {
	user, err := s.adapter.GetUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "get user").
			With("user_id", userID).
			Wrap(err)
	}
	if user == nil {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(ErrNotFound)
	}

	token := sessionID
	if token == "" {
		token, err = s.tokens.Generate()
		if err != nil {
			return nil, oops.Code("SESSION_CREATE_FAILED").
				With("operation", "generate token").
				Wrap(err)
		}
	}

	activeExpires, idleExpires := s.policy.Renew(s.now())
	session, err := NewSession(token, userID, activeExpires, idleExpires)
	if err != nil {
		return nil, err
	}

	created, err := s.adapter.SetSession(ctx, session)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("user_id", userID).
			Wrap(errors.Join(ErrCreationFailed, err))
	}

	return &SessionResult{Session: created, User: user, Fresh: false}, nil
}

// GetSession is the cheap read path: it fetches session and user in one
// storage call and treats any non-expired session as valid without
// renewing. The result is never fresh.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	session, user, err := s.sessionAndUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionResult{Session: session, User: user, Fresh: false}, nil
}

// ValidateSession is the authoritative path. Active sessions are returned
// unchanged; idle sessions are renewed with fresh sliding-window
// expirations and returned with Fresh set; expired sessions fail with
// ErrExpired.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	session, user, err := s.sessionAndUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if session.StateAt(now) == SessionActive {
		return &SessionResult{Session: session, User: user, Fresh: false}, nil
	}

	activeExpires, idleExpires := s.policy.Renew(now)
	renewed, err := s.adapter.UpdateSession(ctx, session.ID, activeExpires, idleExpires)
	if err != nil {
		return nil, oops.Code("SESSION_RENEW_FAILED").
			With("session_id", sessionID).
			Wrap(err)
	}
	return &SessionResult{Session: renewed, User: user, Fresh: true}, nil
}

// GetAllUserSessions returns all of a user's sessions that are not yet
// expired.
func (s *Service) GetAllUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := s.adapter.GetSessionsByUserID(ctx, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}

	now := s.now()
	live := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		if session.StateAt(now) != SessionDead {
			live = append(live, session)
		}
	}
	return live, nil
}

// InvalidateSession deletes one session.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.adapter.DeleteSession(ctx, sessionID); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("session_id", sessionID).
			Wrap(err)
	}
	return nil
}

// InvalidateAllUserSessions deletes all of a user's sessions except an
// explicit keep-list ("log out everywhere except this device").
func (s *Service) InvalidateAllUserSessions(ctx context.Context, userID string, sessionsToKeep []string) error {
	if err := s.adapter.DeleteSessionsByUserID(ctx, userID, sessionsToKeep); err != nil {
		return oops.Code("SESSION_DELETE_ALL_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// DeleteDeadUserSessions deletes exactly the user's expired sessions. This
// is maintenance, not correctness: validation rejects expired sessions even
// if they are never swept.
func (s *Service) DeleteDeadUserSessions(ctx context.Context, userID string) error {
	sessions, err := s.adapter.GetSessionsByUserID(ctx, userID)
	if err != nil {
		return oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "list sessions").
			With("user_id", userID).
			Wrap(err)
	}

	now := s.now()
	var dead []string
	for _, session := range sessions {
		if session.StateAt(now) == SessionDead {
			dead = append(dead, session.ID)
		}
	}
	if len(dead) == 0 {
		return nil
	}

	if err := s.adapter.DeleteSessions(ctx, dead); err != nil {
		return oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "delete sessions").
			With("user_id", userID).
			With("count", len(dead)).
			Wrap(err)
	}
	return nil
}

// sessionAndUser fetches session plus user in a single storage call and
// performs the shared classification: missing session, expired session,
// missing joined user.
func (s *Service) sessionAndUser(ctx context.Context, sessionID string) (*Session, *User, error) {
	session, user, err := s.adapter.GetSessionAndUser(ctx, sessionID)
	if err != nil {
		return nil, nil, oops.Code("SESSION_GET_FAILED").
			With("session_id", sessionID).
			Wrap(err)
	}
	if session == nil {
		return nil, nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if session.StateAt(s.now()) == SessionDead {
		return nil, nil, oops.Code("SESSION_EXPIRED").
			With("idle_expires", session.IdleExpires).
			Wrap(ErrExpired)
	}
	if user == nil {
		return nil, nil, oops.Code("USER_NOT_FOUND").
			With("user_id", session.UserID).
			Wrap(ErrNotFound)
	}
	return session, user, nil
}
