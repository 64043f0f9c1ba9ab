// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves the settings of safe-run and safe-archive.
//
// Settings are layered, lowest precedence first:
//
//  1. [Default] values.
//  2. The file named by SAFE_CONFIG, if set. YAML is the native format;
//     files ending in .json or .jsonc have comments and trailing commas
//     stripped first and are then decoded the same way. Unknown keys
//     are rejected.
//  3. Environment variables (SAFE_LOG_DIR, SAFE_SNIPPET_LINES,
//     SAFE_RUN_VIEW, SAFE_RUN_KILL_GRACE, SAFE_RUN_DRAIN_TIMEOUT,
//     SAFE_FAIL_DIR, SAFE_ARCHIVE_DIR, SAFE_ARCHIVE_COMPRESS). An
//     empty variable counts as unset.
//  4. Command-line flags, applied by the binaries after [LoadRun] or
//     [LoadArchive].
//
// Directory values from the file may use ${VAR} and ${VAR:-default}.
//
// Each binary reads only its own variables and validates only its own
// section: [RunConfig.Validate] for safe-run, [ArchiveConfig.Validate]
// for safe-archive. Validation runs again after the flags are applied
// so that a bad value fails before a child is spawned or a file is
// moved. The exceptions are SAFE_SNIPPET_LINES and SAFE_RUN_VIEW, which
// are logged and ignored when unusable.
package config
