// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsutil provides no-clobber filesystem primitives.
//
// [RenameNoReplace] moves a file to a new name and fails, rather than
// overwriting, when the new name is already taken. On Linux it uses
// renameat2(2) with RENAME_NOREPLACE, which makes the existence check
// and the move a single atomic step. Where the filesystem does not
// support that flag it falls back to link(2) followed by unlink(2)
// (link also refuses to replace an existing name), and across devices
// to an exclusive-create copy followed by removal of the source.
//
// Every "destination exists" failure matches fs.ErrExist under
// errors.Is, so callers can retry with a different name.
package fsutil
