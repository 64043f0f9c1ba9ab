// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the safe-run and
// safe-archive packages.
//
// [WriteFile], [ReadFile], and [DirNames] cover the filesystem setup and
// inspection that the artifact, supervisor, and archive tests repeat:
// seeding a capture directory, reading an artifact back, and asserting
// which names a directory holds.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. Supervisor tests use them
// to wait for a child to report readiness before delivering a signal.
//
// [UniqueID] generates monotonically increasing identifiers, used to
// give each archived file distinguishable content.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
