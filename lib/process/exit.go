// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// Conventional exit codes shared by both binaries.
const (
	// ExitUsage is returned for malformed invocations and invalid
	// configuration, before any child is spawned or file is moved.
	ExitUsage = 2

	// ExitSpawnFailure is returned when the child could not be started.
	ExitSpawnFailure = 127
)

// ExitError carries a non-zero exit code that main should use without
// printing anything further: the code path that returned it has already
// reported the problem.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the code main should exit with.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode extracts the exit code main should use for err: 0 for nil,
// the carried code for anything implementing ExitCode() int, and 1
// otherwise. The boolean reports whether err still needs printing.
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode(), false
	}
	return 1, true
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main for errors that occur before the logger is configured.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
