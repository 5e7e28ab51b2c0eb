// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"context"
	"time"
)

// Adapter is the storage contract the Service orchestrates against. It is
// the only component that talks to persistent storage; any backend
// (relational, document, in-memory) implements it directly.
//
// Contract rules:
//
//   - Reads (GetUser, GetKey, GetSessionAndUser) return nil with a nil
//     error when nothing matches. Not-found is not an error at this layer;
//     the Service performs the classification.
//   - Writes return the persisted row, reflecting server-assigned defaults
//     such as generated identifiers.
//   - Updates and deletes return ErrNotFound when no row matched.
//   - SetUser with a non-nil key creates the user and the key as a single
//     atomic unit: if the key insert fails, the user insert must not be
//     observable afterward. This is the only operation with a transactional
//     guarantee. DeleteUser's three deletes in particular are ordered
//     (sessions, then keys, then user) but NOT atomic.
//   - Uniqueness and foreign-key failures are surfaced wrapping
//     ErrConstraintViolation.
type Adapter interface {
	// GetUser retrieves a user by ID, or nil if absent.
	GetUser(ctx context.Context, userID string) (*User, error)

	// SetUser persists a new user, assigning an ID if user.ID is empty.
	// When key is non-nil it is inserted in the same scoped transaction,
	// bound to the created user's ID. Returns the persisted user.
	SetUser(ctx context.Context, user *User, key *Key) (*User, error)

	// UpdateUser replaces the user's attributes and returns the updated row.
	UpdateUser(ctx context.Context, userID string, attributes UserAttributes) (*User, error)

	// DeleteUser removes the user and everything referencing it, deleting
	// sessions, then keys, then the user row. The steps are not atomic; a
	// crash mid-sequence may leave orphaned rows (documented risk).
	DeleteUser(ctx context.Context, userID string) error

	// GetKey retrieves a key by its (provider, providerUserId) primary key,
	// or nil if absent.
	GetKey(ctx context.Context, provider, providerUserID string) (*Key, error)

	// GetKeysByUserID retrieves all keys bound to a user.
	GetKeysByUserID(ctx context.Context, userID string) ([]*Key, error)

	// SetKey persists a new key and returns the persisted row.
	SetKey(ctx context.Context, key *Key) (*Key, error)

	// UpdateKey rewrites the key's hashed password (nil clears it) and
	// returns the updated row.
	UpdateKey(ctx context.Context, provider, providerUserID string, hashedPassword *string) (*Key, error)

	// DeleteKey removes a key by its primary key.
	DeleteKey(ctx context.Context, provider, providerUserID string) error

	// GetSessionsByUserID retrieves all sessions bound to a user,
	// regardless of expiration state.
	GetSessionsByUserID(ctx context.Context, userID string) ([]*Session, error)

	// SetSession persists a new session and returns the persisted row.
	SetSession(ctx context.Context, session *Session) (*Session, error)

	// UpdateSession rewrites the session's expiration timestamps in place
	// and returns the updated row.
	UpdateSession(ctx context.Context, sessionID string, activeExpires, idleExpires time.Time) (*Session, error)

	// DeleteSession removes a single session.
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteSessions removes the given sessions. Missing IDs are ignored.
	DeleteSessions(ctx context.Context, sessionIDs []string) error

	// DeleteSessionsByUserID removes all of a user's sessions except those
	// listed in sessionsToKeep.
	DeleteSessionsByUserID(ctx context.Context, userID string, sessionsToKeep []string) error

	// GetSessionAndUser retrieves a session and its owning user in a single
	// round trip, or nils if the session is absent. A session whose user is
	// gone yields the session with a nil user.
	GetSessionAndUser(ctx context.Context, sessionID string) (*Session, *User, error)
}
