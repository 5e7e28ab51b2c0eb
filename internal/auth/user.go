// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

// UserAttributes holds arbitrary profile attributes attached to a user.
// The core treats them as opaque; backends decide how to persist them
// (the postgres adapter stores them as JSONB).
type UserAttributes map[string]any

// User represents an identity record. ID is an opaque identifier assigned
// by the storage backend when left empty on creation.
type User struct {
	ID         string
	Attributes UserAttributes
}

// Clone returns a deep copy of the user. Adapters return clones so callers
// can never mutate stored state through a returned pointer.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := &User{ID: u.ID}
	if u.Attributes != nil {
		out.Attributes = make(UserAttributes, len(u.Attributes))
		for k, v := range u.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
