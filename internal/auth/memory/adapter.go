// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package memory provides an in-memory auth.Adapter. It backs the core's
// unit tests and works as a real adapter for single-process embedding.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/auth"
)

type keyID struct {
	provider       string
	providerUserID string
}

// Adapter implements auth.Adapter with mutex-guarded maps. All returned
// entities are clones; stored state is never aliased to callers.
type Adapter struct {
	mu       sync.RWMutex
	users    map[string]*auth.User
	keys     map[keyID]*auth.Key
	sessions map[string]*auth.Session
}

// NewAdapter creates an empty in-memory adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		users:    make(map[string]*auth.User),
		keys:     make(map[keyID]*auth.Key),
		sessions: make(map[string]*auth.Session),
	}
}

// GetUser retrieves a user by ID, or nil if absent.
func (a *Adapter) GetUser(_ context.Context, userID string) (*auth.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.users[userID].Clone(), nil
}

// SetUser persists a new user, assigning a ULID when user.ID is empty.
// With a non-nil key the pair is atomic: the key is validated and checked
// for uniqueness before either entity becomes observable.
func (a *Adapter) SetUser(_ context.Context, user *auth.User, key *auth.Key) (*auth.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := user.Clone()
	if stored.ID == "" {
		stored.ID = ulid.Make().String()
	}
	if _, exists := a.users[stored.ID]; exists {
		return nil, oops.Code("USER_DUPLICATE").
			With("user_id", stored.ID).
			Wrap(auth.ErrConstraintViolation)
	}

	if key == nil {
		a.users[stored.ID] = stored
		return stored.Clone(), nil
	}

	id := keyID{provider: key.Provider, providerUserID: key.ProviderUserID}
	if _, exists := a.keys[id]; exists {
		return nil, oops.Code("KEY_DUPLICATE").
			With("provider", key.Provider).
			With("provider_user_id", key.ProviderUserID).
			Wrap(auth.ErrConstraintViolation)
	}
	boundKey, err := auth.NewKey(key.Provider, key.ProviderUserID, stored.ID, key.HashedPassword)
	if err != nil {
		return nil, err
	}

	a.users[stored.ID] = stored
	a.keys[id] = boundKey
	return stored.Clone(), nil
}

// UpdateUser replaces the user's attributes.
func (a *Adapter) UpdateUser(_ context.Context, userID string, attributes auth.UserAttributes) (*auth.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[userID]; !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	updated := &auth.User{ID: userID, Attributes: attributes}
	a.users[userID] = updated.Clone()
	return updated.Clone(), nil
}

// DeleteUser removes sessions, then keys, then the user.
func (a *Adapter) DeleteUser(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, session := range a.sessions {
		if session.UserID == userID {
			delete(a.sessions, id)
		}
	}
	for id, key := range a.keys {
		if key.UserID == userID {
			delete(a.keys, id)
		}
	}
	if _, ok := a.users[userID]; !ok {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	delete(a.users, userID)
	return nil
}

// GetKey retrieves a key by its primary key, or nil if absent.
func (a *Adapter) GetKey(_ context.Context, provider, providerUserID string) (*auth.Key, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keys[keyID{provider: provider, providerUserID: providerUserID}].Clone(), nil
}

// GetKeysByUserID retrieves all keys bound to a user.
func (a *Adapter) GetKeysByUserID(_ context.Context, userID string) ([]*auth.Key, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var keys []*auth.Key
	for _, key := range a.keys {
		if key.UserID == userID {
			keys = append(keys, key.Clone())
		}
	}
	return keys, nil
}

// SetKey persists a new key. The referenced user must exist.
func (a *Adapter) SetKey(_ context.Context, key *auth.Key) (*auth.Key, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[key.UserID]; !ok {
		return nil, oops.Code("KEY_USER_MISSING").
			With("user_id", key.UserID).
			Wrap(auth.ErrConstraintViolation)
	}
	id := keyID{provider: key.Provider, providerUserID: key.ProviderUserID}
	if _, exists := a.keys[id]; exists {
		return nil, oops.Code("KEY_DUPLICATE").
			With("provider", key.Provider).
			With("provider_user_id", key.ProviderUserID).
			Wrap(auth.ErrConstraintViolation)
	}
	a.keys[id] = key.Clone()
	return key.Clone(), nil
}

// UpdateKey rewrites the key's hashed password.
func (a *Adapter) UpdateKey(_ context.Context, provider, providerUserID string, hashedPassword *string) (*auth.Key, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := keyID{provider: provider, providerUserID: providerUserID}
	key, ok := a.keys[id]
	if !ok {
		return nil, oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(auth.ErrNotFound)
	}
	key.HashedPassword = nil
	if hashedPassword != nil {
		hp := *hashedPassword
		key.HashedPassword = &hp
	}
	return key.Clone(), nil
}

// DeleteKey removes a key by its primary key.
func (a *Adapter) DeleteKey(_ context.Context, provider, providerUserID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := keyID{provider: provider, providerUserID: providerUserID}
	if _, ok := a.keys[id]; !ok {
		return oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(auth.ErrNotFound)
	}
	delete(a.keys, id)
	return nil
}

// GetSessionsByUserID retrieves all sessions bound to a user.
func (a *Adapter) GetSessionsByUserID(_ context.Context, userID string) ([]*auth.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var sessions []*auth.Session
	for _, session := range a.sessions {
		if session.UserID == userID {
			sessions = append(sessions, session.Clone())
		}
	}
	return sessions, nil
}

// SetSession persists a new session. The referenced user must exist and
// the token must be unused.
func (a *Adapter) SetSession(_ context.Context, session *auth.Session) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[session.UserID]; !ok {
		return nil, oops.Code("SESSION_USER_MISSING").
			With("user_id", session.UserID).
			Wrap(auth.ErrConstraintViolation)
	}
	if _, exists := a.sessions[session.ID]; exists {
		return nil, oops.Code("SESSION_DUPLICATE").
			Wrap(auth.ErrConstraintViolation)
	}
	a.sessions[session.ID] = session.Clone()
	return session.Clone(), nil
}

// UpdateSession rewrites the session's expiration timestamps.
func (a *Adapter) UpdateSession(_ context.Context, sessionID string, activeExpires, idleExpires time.Time) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.sessions[sessionID]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	session.ActiveExpires = activeExpires
	session.IdleExpires = idleExpires
	return session.Clone(), nil
}

// DeleteSession removes a single session.
func (a *Adapter) DeleteSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sessions[sessionID]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(a.sessions, sessionID)
	return nil
}

// DeleteSessions removes the given sessions, ignoring missing IDs.
func (a *Adapter) DeleteSessions(_ context.Context, sessionIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range sessionIDs {
		delete(a.sessions, id)
	}
	return nil
}

// DeleteSessionsByUserID removes all of a user's sessions except those in
// sessionsToKeep.
func (a *Adapter) DeleteSessionsByUserID(_ context.Context, userID string, sessionsToKeep []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, session := range a.sessions {
		if session.UserID == userID && !slices.Contains(sessionsToKeep, id) {
			delete(a.sessions, id)
		}
	}
	return nil
}

// GetSessionAndUser retrieves a session and its owning user together, or
// nils if the session is absent.
func (a *Adapter) GetSessionAndUser(_ context.Context, sessionID string) (*auth.Session, *auth.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	session, ok := a.sessions[sessionID]
	if !ok {
		return nil, nil, nil
	}
	return session.Clone(), a.users[session.UserID].Clone(), nil
}

// Compile-time interface check.
var _ auth.Adapter = (*Adapter)(nil)
