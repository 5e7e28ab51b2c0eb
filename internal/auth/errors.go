// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import "errors"

// Domain error kinds. The Service wraps these sentinels with oops codes and
// context; callers classify with errors.Is and map kinds to their own
// presentation. Adapter-level failures other than these are passed through
// unreinterpreted.
var (
	// ErrNotFound is returned when a requested user, key, or session does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a session is past its idle expiration.
	// Expired is terminal: no operation recovers an expired session.
	ErrExpired = errors.New("session expired")

	// ErrPasswordRequired is returned when a key carries a hashed password
	// but no password was supplied.
	ErrPasswordRequired = errors.New("password required")

	// ErrInvalidCredential is returned when password verification fails.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCreationFailed is returned when an insert produced no persisted row.
	ErrCreationFailed = errors.New("creation failed")

	// ErrConstraintViolation is returned by adapters when storage rejects a
	// write due to a uniqueness or foreign-key constraint.
	ErrConstraintViolation = errors.New("constraint violation")
)
