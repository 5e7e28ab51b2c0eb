// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package postgres provides the PostgreSQL auth.Adapter backed by pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/auth"
)

// DB is the subset of pgxpool.Pool the adapter needs. pgxmock satisfies it
// for unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Adapter implements auth.Adapter using PostgreSQL.
type Adapter struct {
	db   DB
	pool *pgxpool.Pool
}

// NewAdapter creates an Adapter over an existing connection handle. The
// caller owns the handle's lifecycle.
func NewAdapter(db DB) *Adapter {
	return &Adapter{db: db}
}

// Connect opens a connection pool for the given DSN and returns an Adapter
// that owns it. Close releases the pool.
func Connect(ctx context.Context, dsn string) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return &Adapter{db: pool, pool: pool}, nil
}

// Close releases the connection pool when the adapter owns one.
func (a *Adapter) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Ping reports whether the underlying pool is reachable. Used as a
// readiness probe; always true for adapters over a borrowed handle.
func (a *Adapter) Ping(ctx context.Context) bool {
	if a.pool == nil {
		return true
	}
	return a.pool.Ping(ctx) == nil
}

// classify wraps integrity-constraint SQLSTATEs (23xxx) so callers can
// test for auth.ErrConstraintViolation; other errors pass through.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return errors.Join(auth.ErrConstraintViolation, err)
	}
	return err
}

// GetUser retrieves a user by ID, or nil if absent.
func (a *Adapter) GetUser(ctx context.Context, userID string) (*auth.User, error) {
	row := a.db.QueryRow(ctx, `
		SELECT id, attributes FROM users WHERE id = $1
	`, userID)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return user, nil
}

// SetUser persists a new user, assigning a ULID when user.ID is empty.
// With a non-nil key both inserts run in one transaction; a failed key
// insert rolls the user back.
func (a *Adapter) SetUser(ctx context.Context, user *auth.User, key *auth.Key) (*auth.User, error) {
	userID := user.ID
	if userID == "" {
		userID = ulid.Make().String()
	}
	attrsJSON, err := json.Marshal(user.Attributes)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "marshal attributes").
			Wrap(err)
	}

	const insertUser = `
		INSERT INTO users (id, attributes) VALUES ($1, $2)
		RETURNING id, attributes
	`

	if key == nil {
		created, err := scanUser(a.db.QueryRow(ctx, insertUser, userID, attrsJSON))
		if err != nil {
			return nil, oops.Code("USER_CREATE_FAILED").
				With("user_id", userID).
				Wrap(classify(err))
		}
		return created, nil
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	created, err := scanUser(tx.QueryRow(ctx, insertUser, userID, attrsJSON))
	if err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // insert error takes precedence
		return nil, oops.Code("USER_CREATE_FAILED").
			With("user_id", userID).
			Wrap(classify(err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO auth_keys (provider, provider_user_id, user_id, hashed_password)
		VALUES ($1, $2, $3, $4)
	`, key.Provider, key.ProviderUserID, created.ID, key.HashedPassword)
	if err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // insert error takes precedence
		return nil, oops.Code("KEY_CREATE_FAILED").
			With("provider", key.Provider).
			With("user_id", created.ID).
			Wrap(classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return created, nil
}

// UpdateUser replaces the user's attributes and returns the updated row.
func (a *Adapter) UpdateUser(ctx context.Context, userID string, attributes auth.UserAttributes) (*auth.User, error) {
	attrsJSON, err := json.Marshal(attributes)
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "marshal attributes").
			Wrap(err)
	}

	row := a.db.QueryRow(ctx, `
		UPDATE users SET attributes = $2 WHERE id = $1
		RETURNING id, attributes
	`, userID, attrsJSON)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("user_id", userID).
			Wrap(classify(err))
	}
	return user, nil
}

// DeleteUser removes sessions, then keys, then the user. The order keeps
// referencing rows from ever pointing at a missing user; the steps are
// deliberately not wrapped in a transaction.
func (a *Adapter) DeleteUser(ctx context.Context, userID string) error {
	if _, err := a.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete sessions").
			With("user_id", userID).
			Wrap(err)
	}
	if _, err := a.db.Exec(ctx, `DELETE FROM auth_keys WHERE user_id = $1`, userID); err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete keys").
			With("user_id", userID).
			Wrap(err)
	}
	result, err := a.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// GetKey retrieves a key by its primary key, or nil if absent.
func (a *Adapter) GetKey(ctx context.Context, provider, providerUserID string) (*auth.Key, error) {
	row := a.db.QueryRow(ctx, `
		SELECT provider, provider_user_id, user_id, hashed_password
		FROM auth_keys
		WHERE provider = $1 AND provider_user_id = $2
	`, provider, providerUserID)

	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("KEY_GET_FAILED").
			With("provider", provider).
			Wrap(err)
	}
	return key, nil
}

// GetKeysByUserID retrieves all keys bound to a user.
func (a *Adapter) GetKeysByUserID(ctx context.Context, userID string) ([]*auth.Key, error) {
	rows, err := a.db.Query(ctx, `
		SELECT provider, provider_user_id, user_id, hashed_password
		FROM auth_keys
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, oops.Code("KEY_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	defer rows.Close()

	var keys []*auth.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, oops.Code("KEY_SCAN_FAILED").Wrap(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("KEY_LIST_FAILED").
			With("operation", "iterate rows").
			Wrap(err)
	}
	return keys, nil
}

// SetKey persists a new key and returns the persisted row.
func (a *Adapter) SetKey(ctx context.Context, key *auth.Key) (*auth.Key, error) {
	row := a.db.QueryRow(ctx, `
		INSERT INTO auth_keys (provider, provider_user_id, user_id, hashed_password)
		VALUES ($1, $2, $3, $4)
		RETURNING provider, provider_user_id, user_id, hashed_password
	`, key.Provider, key.ProviderUserID, key.UserID, key.HashedPassword)

	created, err := scanKey(row)
	if err != nil {
		return nil, oops.Code("KEY_CREATE_FAILED").
			With("provider", key.Provider).
			With("user_id", key.UserID).
			Wrap(classify(err))
	}
	return created, nil
}

// UpdateKey rewrites the key's hashed password and returns the updated row.
func (a *Adapter) UpdateKey(ctx context.Context, provider, providerUserID string, hashedPassword *string) (*auth.Key, error) {
	row := a.db.QueryRow(ctx, `
		UPDATE auth_keys SET hashed_password = $3
		WHERE provider = $1 AND provider_user_id = $2
		RETURNING provider, provider_user_id, user_id, hashed_password
	`, provider, providerUserID, hashedPassword)

	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("KEY_UPDATE_FAILED").
			With("provider", provider).
			Wrap(err)
	}
	return key, nil
}

// DeleteKey removes a key by its primary key.
func (a *Adapter) DeleteKey(ctx context.Context, provider, providerUserID string) error {
	result, err := a.db.Exec(ctx, `
		DELETE FROM auth_keys WHERE provider = $1 AND provider_user_id = $2
	`, provider, providerUserID)
	if err != nil {
		return oops.Code("KEY_DELETE_FAILED").
			With("provider", provider).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("KEY_NOT_FOUND").
			With("provider", provider).
			With("provider_user_id", providerUserID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// GetSessionsByUserID retrieves all sessions bound to a user.
func (a *Adapter) GetSessionsByUserID(ctx context.Context, userID string) ([]*auth.Session, error) {
	rows, err := a.db.Query(ctx, `
		SELECT id, user_id, active_expires, idle_expires
		FROM sessions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "iterate rows").
			Wrap(err)
	}
	return sessions, nil
}

// SetSession persists a new session and returns the persisted row.
func (a *Adapter) SetSession(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	row := a.db.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, active_expires, idle_expires)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, active_expires, idle_expires
	`, session.ID, session.UserID, session.ActiveExpires, session.IdleExpires)

	created, err := scanSession(row)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("user_id", session.UserID).
			Wrap(classify(err))
	}
	return created, nil
}

// UpdateSession rewrites the session's expiration timestamps in place.
func (a *Adapter) UpdateSession(ctx context.Context, sessionID string, activeExpires, idleExpires time.Time) (*auth.Session, error) {
	row := a.db.QueryRow(ctx, `
		UPDATE sessions SET active_expires = $2, idle_expires = $3
		WHERE id = $1
		RETURNING id, user_id, active_expires, idle_expires
	`, sessionID, activeExpires, idleExpires)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_UPDATE_FAILED").Wrap(err)
	}
	return session, nil
}

// DeleteSession removes a single session.
func (a *Adapter) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := a.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteSessions removes the given sessions, ignoring missing IDs.
func (a *Adapter) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := a.db.Exec(ctx, `DELETE FROM sessions WHERE id = ANY($1)`, sessionIDs)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("count", len(sessionIDs)).
			Wrap(err)
	}
	return nil
}

// DeleteSessionsByUserID removes all of a user's sessions except those in
// sessionsToKeep.
func (a *Adapter) DeleteSessionsByUserID(ctx context.Context, userID string, sessionsToKeep []string) error {
	// A nil slice encodes as SQL NULL, turning the NOT-ANY predicate into
	// NULL and matching nothing. Normalize to an empty array so a nil
	// keep-list deletes every session for the user.
	if sessionsToKeep == nil {
		sessionsToKeep = []string{}
	}
	_, err := a.db.Exec(ctx, `
		DELETE FROM sessions WHERE user_id = $1 AND NOT (id = ANY($2))
	`, userID, sessionsToKeep)
	if err != nil {
		return oops.Code("SESSION_DELETE_ALL_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// GetSessionAndUser retrieves a session and its owning user in a single
// round trip. The left join keeps validate-session at one storage call.
func (a *Adapter) GetSessionAndUser(ctx context.Context, sessionID string) (*auth.Session, *auth.User, error) {
	row := a.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.active_expires, s.idle_expires, u.id, u.attributes
		FROM sessions s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, sessionID)

	var (
		sessionUserID string
		activeExpires time.Time
		idleExpires   time.Time
		id            string
		userID        *string
		attrsJSON     []byte
	)
	err := row.Scan(&id, &sessionUserID, &activeExpires, &idleExpires, &userID, &attrsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}

	session := &auth.Session{
		ID:            id,
		UserID:        sessionUserID,
		ActiveExpires: activeExpires,
		IdleExpires:   idleExpires,
	}
	if userID == nil {
		return session, nil, nil
	}

	user, err := buildUser(*userID, attrsJSON)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// DeleteExpiredSessions removes all sessions past their idle expiration at
// the given time and returns the count. Maintenance operation for the
// sweeper; not part of the auth.Adapter contract.
func (a *Adapter) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := a.db.Exec(ctx, `DELETE FROM sessions WHERE idle_expires <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		id        string
		attrsJSON []byte
	)
	if err := row.Scan(&id, &attrsJSON); err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to classify.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}
	return buildUser(id, attrsJSON)
}

func buildUser(id string, attrsJSON []byte) (*auth.User, error) {
	user := &auth.User{ID: id}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &user.Attributes); err != nil {
			return nil, oops.Code("USER_INVALID_ATTRIBUTES").
				With("user_id", id).
				Wrap(err)
		}
	}
	return user, nil
}

func scanKey(row pgx.Row) (*auth.Key, error) {
	var key auth.Key
	err := row.Scan(&key.Provider, &key.ProviderUserID, &key.UserID, &key.HashedPassword)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.Code("KEY_SCAN_FAILED").Wrap(err)
	}
	return &key, nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var session auth.Session
	err := row.Scan(&session.ID, &session.UserID, &session.ActiveExpires, &session.IdleExpires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").Wrap(err)
	}
	return &session, nil
}

// Compile-time interface check.
var _ auth.Adapter = (*Adapter)(nil)
