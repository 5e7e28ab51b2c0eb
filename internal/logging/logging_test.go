// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/logging"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestSetup(t *testing.T) {
	t.Run("stamps service and version on every record", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("gatewarden-sweeper", "1.2.3", "json", &buf)

		logger.Info("hello")

		record := logLine(t, &buf)
		assert.Equal(t, "gatewarden-sweeper", record["service"])
		assert.Equal(t, "1.2.3", record["version"])
		assert.Equal(t, "hello", record["msg"])
	})

	t.Run("text format emits logfmt-style output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("gatewarden", "dev", "text", &buf)

		logger.Info("hello")

		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "service=gatewarden")
	})

	t.Run("attrs and groups survive the wrapper", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("gatewarden", "dev", "json", &buf)

		logger.With("user_id", "u1").WithGroup("sweep").Info("done", "deleted", 3)

		record := logLine(t, &buf)
		assert.Equal(t, "u1", record["user_id"])
		assert.Equal(t, "gatewarden", record["service"])
	})
}

func TestLogError(t *testing.T) {
	t.Run("extracts code and context from oops errors", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("gatewarden", "dev", "json", &buf)

		err := oops.Code("SESSION_EXPIRED").With("session_id", "s1").Errorf("session expired")
		logging.LogError(logger, "validation failed", err)

		record := logLine(t, &buf)
		assert.Equal(t, "validation failed", record["msg"])
		assert.Equal(t, "SESSION_EXPIRED", record["code"])
		context, ok := record["context"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "s1", context["session_id"])
	})

	t.Run("plain errors log the error string", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.Setup("gatewarden", "dev", "json", &buf)

		logging.LogError(logger, "something failed", errors.New("boom"))

		record := logLine(t, &buf)
		assert.Equal(t, "boom", record["error"])
		assert.NotContains(t, record, "code")
	})
}
