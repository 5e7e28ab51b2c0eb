// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/auth"
)

func strptr(s string) *string { return &s }

func mustUser(t *testing.T, a *Adapter, attrs auth.UserAttributes) *auth.User {
	t.Helper()
	user, err := a.SetUser(context.Background(), &auth.User{Attributes: attrs}, nil)
	require.NoError(t, err)
	return user
}

func mustSession(t *testing.T, a *Adapter, id, userID string) *auth.Session {
	t.Helper()
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	session, err := a.SetSession(context.Background(), &auth.Session{
		ID:            id,
		UserID:        userID,
		ActiveExpires: base.Add(time.Hour),
		IdleExpires:   base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	return session
}

func TestAdapter_Users(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns ULID when ID is empty", func(t *testing.T) {
		a := NewAdapter()
		user, err := a.SetUser(ctx, &auth.User{}, nil)
		require.NoError(t, err)
		assert.Len(t, user.ID, 26)
	})

	t.Run("keeps caller-supplied ID", func(t *testing.T) {
		a := NewAdapter()
		user, err := a.SetUser(ctx, &auth.User{ID: "custom-id"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "custom-id", user.ID)
	})

	t.Run("duplicate user ID violates constraint", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.SetUser(ctx, &auth.User{ID: "u1"}, nil)
		require.NoError(t, err)

		_, err = a.SetUser(ctx, &auth.User{ID: "u1"}, nil)
		assert.ErrorIs(t, err, auth.ErrConstraintViolation)
	})

	t.Run("get returns nil for absent user", func(t *testing.T) {
		a := NewAdapter()
		user, err := a.GetUser(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("returned user is a clone", func(t *testing.T) {
		a := NewAdapter()
		created := mustUser(t, a, auth.UserAttributes{"username": "alice"})

		fetched, err := a.GetUser(ctx, created.ID)
		require.NoError(t, err)
		fetched.Attributes["username"] = "mallory"

		again, err := a.GetUser(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", again.Attributes["username"])
	})

	t.Run("update replaces attributes", func(t *testing.T) {
		a := NewAdapter()
		created := mustUser(t, a, auth.UserAttributes{"username": "alice", "role": "admin"})

		updated, err := a.UpdateUser(ctx, created.ID, auth.UserAttributes{"username": "bob"})
		require.NoError(t, err)
		assert.Equal(t, "bob", updated.Attributes["username"])
		assert.NotContains(t, updated.Attributes, "role")
	})

	t.Run("update missing user fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.UpdateUser(ctx, "missing", nil)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAdapter_SetUserWithKey(t *testing.T) {
	ctx := context.Background()

	t.Run("persists user and key together", func(t *testing.T) {
		a := NewAdapter()
		user, err := a.SetUser(ctx, &auth.User{}, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
			HashedPassword: strptr("hash"),
		})
		require.NoError(t, err)

		key, err := a.GetKey(ctx, "email", "a@b.com")
		require.NoError(t, err)
		require.NotNil(t, key)
		assert.Equal(t, user.ID, key.UserID)
	})

	t.Run("duplicate key leaves no user behind", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.SetUser(ctx, &auth.User{}, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
		})
		require.NoError(t, err)

		_, err = a.SetUser(ctx, &auth.User{}, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
		})
		require.ErrorIs(t, err, auth.ErrConstraintViolation)

		a.mu.RLock()
		defer a.mu.RUnlock()
		assert.Len(t, a.users, 1)
		assert.Len(t, a.keys, 1)
	})

	t.Run("invalid key leaves no user behind", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.SetUser(ctx, &auth.User{}, &auth.Key{ProviderUserID: "a@b.com"})
		require.Error(t, err)

		a.mu.RLock()
		defer a.mu.RUnlock()
		assert.Empty(t, a.users)
		assert.Empty(t, a.keys)
	})
}

func TestAdapter_DeleteUser(t *testing.T) {
	ctx := context.Background()

	t.Run("removes sessions and keys with the user", func(t *testing.T) {
		a := NewAdapter()
		user, err := a.SetUser(ctx, &auth.User{}, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
		})
		require.NoError(t, err)
		mustSession(t, a, "s1", user.ID)
		mustSession(t, a, "s2", user.ID)

		other := mustUser(t, a, nil)
		mustSession(t, a, "other-session", other.ID)

		require.NoError(t, a.DeleteUser(ctx, user.ID))

		fetched, err := a.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, fetched)

		key, err := a.GetKey(ctx, "email", "a@b.com")
		require.NoError(t, err)
		assert.Nil(t, key)

		sessions, err := a.GetSessionsByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, sessions)

		// Other users are untouched.
		otherSessions, err := a.GetSessionsByUserID(ctx, other.ID)
		require.NoError(t, err)
		assert.Len(t, otherSessions, 1)
	})

	t.Run("missing user fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		assert.ErrorIs(t, a.DeleteUser(ctx, "missing"), auth.ErrNotFound)
	})
}

func TestAdapter_Keys(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns nil for absent key", func(t *testing.T) {
		a := NewAdapter()
		key, err := a.GetKey(ctx, "email", "missing")
		require.NoError(t, err)
		assert.Nil(t, key)
	})

	t.Run("set requires an existing user", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.SetKey(ctx, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
			UserID:         "missing",
		})
		assert.ErrorIs(t, err, auth.ErrConstraintViolation)
	})

	t.Run("set rejects duplicate primary key", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		key := &auth.Key{Provider: "email", ProviderUserID: "a@b.com", UserID: user.ID}

		_, err := a.SetKey(ctx, key)
		require.NoError(t, err)
		_, err = a.SetKey(ctx, key)
		assert.ErrorIs(t, err, auth.ErrConstraintViolation)
	})

	t.Run("lists keys by user", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		other := mustUser(t, a, nil)

		_, err := a.SetKey(ctx, &auth.Key{Provider: "email", ProviderUserID: "a@b.com", UserID: user.ID})
		require.NoError(t, err)
		_, err = a.SetKey(ctx, &auth.Key{Provider: "github", ProviderUserID: "123", UserID: user.ID})
		require.NoError(t, err)
		_, err = a.SetKey(ctx, &auth.Key{Provider: "email", ProviderUserID: "c@d.com", UserID: other.ID})
		require.NoError(t, err)

		keys, err := a.GetKeysByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("update rewrites only the hashed password", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		_, err := a.SetKey(ctx, &auth.Key{
			Provider:       "email",
			ProviderUserID: "a@b.com",
			UserID:         user.ID,
			HashedPassword: strptr("oldhash"),
		})
		require.NoError(t, err)

		updated, err := a.UpdateKey(ctx, "email", "a@b.com", strptr("newhash"))
		require.NoError(t, err)
		require.NotNil(t, updated.HashedPassword)
		assert.Equal(t, "newhash", *updated.HashedPassword)
		assert.Equal(t, user.ID, updated.UserID)

		cleared, err := a.UpdateKey(ctx, "email", "a@b.com", nil)
		require.NoError(t, err)
		assert.Nil(t, cleared.HashedPassword)
	})

	t.Run("update missing key fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.UpdateKey(ctx, "email", "missing", nil)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete missing key fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		assert.ErrorIs(t, a.DeleteKey(ctx, "email", "missing"), auth.ErrNotFound)
	})
}

func TestAdapter_Sessions(t *testing.T) {
	ctx := context.Background()

	t.Run("set requires an existing user", func(t *testing.T) {
		a := NewAdapter()
		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		_, err := a.SetSession(ctx, &auth.Session{
			ID:            "s1",
			UserID:        "missing",
			ActiveExpires: base,
			IdleExpires:   base.Add(time.Hour),
		})
		assert.ErrorIs(t, err, auth.ErrConstraintViolation)
	})

	t.Run("set rejects duplicate token", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		mustSession(t, a, "s1", user.ID)

		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		_, err := a.SetSession(ctx, &auth.Session{
			ID:            "s1",
			UserID:        user.ID,
			ActiveExpires: base,
			IdleExpires:   base.Add(time.Hour),
		})
		assert.ErrorIs(t, err, auth.ErrConstraintViolation)
	})

	t.Run("update rewrites the expirations", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		created := mustSession(t, a, "s1", user.ID)

		newActive := created.ActiveExpires.Add(time.Hour)
		newIdle := created.IdleExpires.Add(time.Hour)
		updated, err := a.UpdateSession(ctx, "s1", newActive, newIdle)
		require.NoError(t, err)
		assert.Equal(t, newActive, updated.ActiveExpires)
		assert.Equal(t, newIdle, updated.IdleExpires)
	})

	t.Run("update missing session fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		_, err := a.UpdateSession(ctx, "missing", time.Now(), time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete missing session fails with NotFound", func(t *testing.T) {
		a := NewAdapter()
		assert.ErrorIs(t, a.DeleteSession(ctx, "missing"), auth.ErrNotFound)
	})

	t.Run("bulk delete ignores missing IDs", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		mustSession(t, a, "s1", user.ID)
		mustSession(t, a, "s2", user.ID)

		require.NoError(t, a.DeleteSessions(ctx, []string{"s1", "ghost"}))

		sessions, err := a.GetSessionsByUserID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s2", sessions[0].ID)
	})

	t.Run("delete by user honors the keep-list", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, nil)
		mustSession(t, a, "s1", user.ID)
		mustSession(t, a, "s2", user.ID)
		mustSession(t, a, "s3", user.ID)

		require.NoError(t, a.DeleteSessionsByUserID(ctx, user.ID, []string{"s2"}))

		sessions, err := a.GetSessionsByUserID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s2", sessions[0].ID)
	})
}

func TestAdapter_GetSessionAndUser(t *testing.T) {
	ctx := context.Background()

	t.Run("returns both entities", func(t *testing.T) {
		a := NewAdapter()
		user := mustUser(t, a, auth.UserAttributes{"username": "alice"})
		mustSession(t, a, "s1", user.ID)

		session, fetched, err := a.GetSessionAndUser(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, session)
		require.NotNil(t, fetched)
		assert.Equal(t, user.ID, session.UserID)
		assert.Equal(t, "alice", fetched.Attributes["username"])
	})

	t.Run("absent session yields nils without error", func(t *testing.T) {
		a := NewAdapter()
		session, user, err := a.GetSessionAndUser(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, session)
		assert.Nil(t, user)
	})
}
