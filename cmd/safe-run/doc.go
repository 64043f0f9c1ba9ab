// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// safe-run executes a command with transparent output pass-through and
// leaves a forensic log behind only when the command does not succeed.
//
//	safe-run [flags] [--] <command> [args...]
//
// Flags must come before the command; everything from the command on is
// passed to the child verbatim. The exit code is the child's own, 127
// when it could not be started, 128+signal when safe-run was
// interrupted, and 2 for usage or configuration errors.
//
// Failure logs are named {UTC timestamp}-pid{pid}-{FAIL|ABORTED|ERROR}.log
// and written under SAFE_LOG_DIR (default .agent/FAIL-LOGS). See
// lib/config for every setting and its environment variable.
package main
