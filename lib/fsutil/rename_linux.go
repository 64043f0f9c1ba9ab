// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import "golang.org/x/sys/unix"

func renameNoReplace(oldPath, newPath string) error {
	return unix.Renameat2(unix.AT_FDCWD, oldPath, unix.AT_FDCWD, newPath, unix.RENAME_NOREPLACE)
}
