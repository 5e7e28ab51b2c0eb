// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Default sliding-window periods.
const (
	DefaultActivePeriod = 24 * time.Hour
	DefaultIdlePeriod   = 14 * 24 * time.Hour
)

// SessionState classifies a session's temporal state against a point in time.
type SessionState int

const (
	// SessionActive means the session is valid and needs no action.
	SessionActive SessionState = iota
	// SessionIdle means the session is still usable but must be renewed.
	SessionIdle
	// SessionDead means the session is past its idle expiration and must
	// be rejected.
	SessionDead
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionIdle:
		return "idle"
	case SessionDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Session is an opaque token bound to one user. The two expiration
// timestamps are its only mutable fields; the renewal flow rewrites them
// in place. IdleExpires is always after ActiveExpires.
type Session struct {
	ID            string
	UserID        string
	ActiveExpires time.Time
	IdleExpires   time.Time
}

// NewSession creates a validated Session instance.
func NewSession(id, userID string, activeExpires, idleExpires time.Time) (*Session, error) {
	if id == "" {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be empty")
	}
	if userID == "" {
		return nil, oops.Code("SESSION_INVALID_USER_ID").Errorf("user ID cannot be empty")
	}
	if activeExpires.IsZero() || idleExpires.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry times cannot be zero")
	}
	if !idleExpires.After(activeExpires) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("active_expires", activeExpires).
			With("idle_expires", idleExpires).
			Errorf("idle expiry must be after active expiry")
	}
	return &Session{
		ID:            id,
		UserID:        userID,
		ActiveExpires: activeExpires,
		IdleExpires:   idleExpires,
	}, nil
}

// StateAt classifies the session at the given time.
func (s *Session) StateAt(now time.Time) SessionState {
	if now.Before(s.ActiveExpires) {
		return SessionActive
	}
	if now.Before(s.IdleExpires) {
		return SessionIdle
	}
	return SessionDead
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// ExpirationPolicy computes sliding-window expiration timestamps. It is
// pure temporal logic with no I/O. Every renewal pushes both boundaries
// forward from "now", never from the old boundaries, so the window is
// monotonically increasing.
type ExpirationPolicy struct {
	ActivePeriod time.Duration
	IdlePeriod   time.Duration
}

// DefaultExpirationPolicy returns the policy with the default 1 day active
// period and 14 day idle period.
func DefaultExpirationPolicy() ExpirationPolicy {
	return ExpirationPolicy{
		ActivePeriod: DefaultActivePeriod,
		IdlePeriod:   DefaultIdlePeriod,
	}
}

// Renew computes fresh expiration timestamps from now:
// activeExpires = now + ActivePeriod, idleExpires = activeExpires + IdlePeriod.
func (p ExpirationPolicy) Renew(now time.Time) (activeExpires, idleExpires time.Time) {
	activeExpires = now.Add(p.ActivePeriod)
	idleExpires = activeExpires.Add(p.IdlePeriod)
	return activeExpires, idleExpires
}
