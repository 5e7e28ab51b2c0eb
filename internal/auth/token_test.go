// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/auth"
)

func TestRandomTokenGenerator(t *testing.T) {
	t.Run("generates token of default length", func(t *testing.T) {
		gen := auth.NewRandomTokenGenerator(0)
		token, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, token, auth.DefaultTokenLength)
	})

	t.Run("generates token of requested length", func(t *testing.T) {
		gen := auth.NewRandomTokenGenerator(15)
		token, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, token, 15)
	})

	t.Run("negative length falls back to default", func(t *testing.T) {
		gen := auth.NewRandomTokenGenerator(-1)
		token, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, token, auth.DefaultTokenLength)
	})

	t.Run("uses only lowercase letters and digits", func(t *testing.T) {
		gen := auth.NewRandomTokenGenerator(200)
		token, err := gen.Generate()
		require.NoError(t, err)
		for _, r := range token {
			inLower := r >= 'a' && r <= 'z'
			inDigit := r >= '0' && r <= '9'
			assert.True(t, inLower || inDigit, "unexpected character %q", r)
		}
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		gen := auth.NewRandomTokenGenerator(auth.DefaultTokenLength)
		seen := make(map[string]bool)
		for range 100 {
			token, err := gen.Generate()
			require.NoError(t, err)
			assert.False(t, seen[token], "duplicate token %s", token)
			seen[token] = true
		}
	})
}
