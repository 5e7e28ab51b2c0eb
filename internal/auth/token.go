// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth

import (
	"crypto/rand"

	"github.com/samber/oops"
)

// DefaultTokenLength is the length of generated session tokens.
const DefaultTokenLength = 40

// tokenAlphabet is the character set for generated tokens. Tokens are used
// verbatim as session IDs, so the alphabet stays URL- and cookie-safe.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenGenerator produces opaque session tokens when the caller does not
// supply one explicitly.
type TokenGenerator interface {
	// Generate returns a new cryptographically secure random token.
	Generate() (string, error)
}

// RandomTokenGenerator implements TokenGenerator with crypto/rand over
// tokenAlphabet.
type RandomTokenGenerator struct {
	Length int
}

// NewRandomTokenGenerator creates a generator producing tokens of the given
// length; zero or negative lengths fall back to DefaultTokenLength.
func NewRandomTokenGenerator(length int) *RandomTokenGenerator {
	if length <= 0 {
		length = DefaultTokenLength
	}
	return &RandomTokenGenerator{Length: length}
}

// Generate returns a random token. Rejection sampling keeps the character
// distribution uniform across the 36-character alphabet.
func (g *RandomTokenGenerator) Generate() (string, error) {
	length := g.Length
	if length <= 0 {
		length = DefaultTokenLength
	}

	// Largest multiple of len(tokenAlphabet) below 256; bytes at or above
	// it would bias the modulo and are redrawn.
	const limit = 252

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").
				With("operation", "crypto/rand.Read").
				Wrap(err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Compile-time interface check.
var _ TokenGenerator = (*RandomTokenGenerator)(nil)
