// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// safe-archive moves safe-run failure logs into long-term storage
// without ever overwriting an archived file.
//
//	safe-archive [flags] --all
//	safe-archive [flags] <file>...
//
// With --all, every regular file in the capture directory is archived
// and a failure on one file does not stop the rest. With explicit
// files, the first failure stops the batch. The exit code is 0 when
// everything requested was archived (or there was nothing to do), 1
// when a file could not be archived or compressed, and 2 for usage or
// configuration errors such as an unknown compression method.
package main
