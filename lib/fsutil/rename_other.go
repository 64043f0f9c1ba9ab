// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package fsutil

import "syscall"

// Without renameat2 every rename goes through the link(2) path.
func renameNoReplace(oldPath, newPath string) error {
	return syscall.ENOSYS
}
