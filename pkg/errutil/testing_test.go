// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	t.Run("passes for matching code", func(t *testing.T) {
		err := oops.Code("THING_FAILED").Errorf("thing failed")
		errutil.AssertErrorCode(t, err, "THING_FAILED")
	})
}

func TestAssertErrorContext(t *testing.T) {
	t.Run("passes for matching context entry", func(t *testing.T) {
		err := oops.Code("THING_FAILED").With("user_id", "u1").Errorf("thing failed")
		errutil.AssertErrorContext(t, err, "user_id", "u1")
	})
}
