// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import "github.com/samber/oops"

// Key binds one (provider, providerUserId) pair to exactly one user. The
// pair is the natural primary key and is globally unique. HashedPassword is
// nil for passwordless provider keys (e.g. OAuth identities verified
// elsewhere); it is the only mutable field.
type Key struct {
	Provider       string
	ProviderUserID string
	UserID         string
	HashedPassword *string
}

// NewKey creates a validated Key. hashedPassword may be nil.
func NewKey(provider, providerUserID, userID string, hashedPassword *string) (*Key, error) {
	if provider == "" {
		return nil, oops.Code("KEY_INVALID_PROVIDER").Errorf("provider cannot be empty")
	}
	if providerUserID == "" {
		return nil, oops.Code("KEY_INVALID_PROVIDER_USER_ID").Errorf("provider user ID cannot be empty")
	}
	if userID == "" {
		return nil, oops.Code("KEY_INVALID_USER_ID").Errorf("user ID cannot be empty")
	}
	return &Key{
		Provider:       provider,
		ProviderUserID: providerUserID,
		UserID:         userID,
		HashedPassword: hashedPassword,
	}, nil
}

// Clone returns a copy of the key with its own HashedPassword pointer.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	out := *k
	if k.HashedPassword != nil {
		hp := *k.HashedPassword
		out.HashedPassword = &hp
	}
	return &out
}
