// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package auth provides the storage-agnostic authentication session core.
//
// # Domain Types
//
// The core operates on three entities with fixed, canonical shapes:
//   - User - an identity record with an opaque ID and arbitrary attributes
//   - Key - a credential binding a (provider, providerUserId) pair to a user,
//     optionally carrying a hashed password
//   - Session - an opaque token bound to a user with a sliding two-tier
//     expiration (active window plus idle grace window)
//
// Storage backends that use different column or field names perform their
// own translation internally; the core never sees configurable field names.
//
// # Adapter
//
// All persistence goes through the Adapter contract. Any backend
// (relational, document, in-memory) implements it directly. The postgres
// and memory subpackages provide the two shipped implementations.
//
// # Service
//
// Service is the orchestrator and the only entry point callers use. It
// enforces the multi-step consistency rules (atomic user+key creation,
// ordered cascading deletes), drives the sliding-expiration state machine,
// and classifies adapter results into the domain error kinds declared in
// errors.go.
package auth
