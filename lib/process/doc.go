// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers shared by the safe-run
// and safe-archive binaries: the structured logger they both use, the
// [ExitError] that carries a deliberate exit code back to main, and
// [Fatal] for errors that occur before a logger exists.
package process
