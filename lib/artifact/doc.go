// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact defines the forensic artifact: the single file the
// supervisor leaves behind when a run fails, is aborted, or cannot be
// spawned.
//
// # File name
//
//	{UTC yyyymmddThhmmssZ}-pid{pid}-{STATUS}.log
//
// STATUS is FAIL, ABORTED, or ERROR. Names are deterministic: the same
// second, pid, and status always produce the same name. Two artifacts
// can only collide when one process writes the same status twice within
// a second; the later one then receives a "-N" suffix before ".log".
// An existing artifact is never replaced.
//
// # Layout
//
//	=== STDOUT ===
//	<captured standard output, verbatim>
//	=== STDERR ===
//	<captured standard error, verbatim>
//	--- BEGIN EVENTS ---
//	[SEQ=1][META] safe-run start: cmd="..."
//	...
//	--- END EVENTS ---
//
// With the merged view selected, a second rendering of the same ledger
// follows, interleaving every event by sequence number:
//
//	--- BEGIN MERGED (OBSERVED ORDER) ---
//	[#1][META] ...
//	--- END MERGED ---
//
// Artifacts are written to a temporary name in the target directory and
// then renamed into place without replacement, so a reader never sees a
// half-written artifact under its final name.
package artifact
