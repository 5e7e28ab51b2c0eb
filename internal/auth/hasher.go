// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// PasswordHasher is the opaque one-way hash capability. Hash output is
// salted and non-deterministic; hashes are comparable only via Verify.
// Keys without a password never touch the hasher.
type PasswordHasher interface {
	// Hash produces a salted hash of the plaintext.
	Hash(password string) (string, error)

	// Verify checks the plaintext against a stored hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// when the stored hash is malformed.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id, encoding hashes
// in PHC string format ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// NewArgon2idHasher creates a hasher with OWASP-recommended parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("HASH_EMPTY_PASSWORD").Errorf("password cannot be empty")
	}

	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("HASH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.Memory,
		h.Time,
		h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// Verify checks the password against a PHC-encoded argon2id hash using the
// parameters embedded in the hash, with a constant-time comparison.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	params, salt, digest, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodeArgon2Hash parses a PHC-format argon2id hash into its parameters,
// salt, and digest.
func decodeArgon2Hash(encoded string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Wrap(err)
	}
	if version != argon2.Version {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Wrap(err)
	}
	// threads must fit in uint8 for argon2.IDKey.
	if threads == 0 || threads > 255 {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Errorf("parallelism %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Wrap(err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Wrap(err)
	}
	if len(digest) == 0 {
		return params, nil, nil, oops.Code("HASH_MALFORMED").Errorf("empty digest")
	}

	params.time = time
	params.memory = memory
	params.threads = uint8(threads)
	return params, salt, digest, nil
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
