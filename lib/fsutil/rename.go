// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
)

// RenameNoReplace moves oldPath to newPath without ever replacing an
// existing newPath. The returned error matches fs.ErrExist when newPath
// is taken; in that case oldPath is left where it was.
func RenameNoReplace(oldPath, newPath string) error {
	err := renameNoReplace(oldPath, newPath)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENOSYS), errors.Is(err, syscall.ENOTSUP):
		// The filesystem does not implement RENAME_NOREPLACE.
		return linkThenUnlink(oldPath, newPath)
	case errors.Is(err, syscall.EXDEV):
		return copyThenRemove(oldPath, newPath)
	}
	return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: unwrapErrno(err)}
}

// CreateExclusive creates path for writing and fails with an error
// matching fs.ErrExist if anything already exists at path.
func CreateExclusive(path string, perm fs.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

// linkThenUnlink gives the new name to the file via link(2), which
// fails with EEXIST instead of replacing, then drops the old name.
func linkThenUnlink(oldPath, newPath string) error {
	if err := os.Link(oldPath, newPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		if errors.Is(err, syscall.EXDEV) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOTSUP) {
			// Cross-device, or a filesystem without hard links.
			return copyThenRemove(oldPath, newPath)
		}
		return err
	}
	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("removing %s after linking to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// copyThenRemove copies oldPath into a freshly created newPath and
// removes oldPath only after the copy is durable. A partial copy is
// removed on failure; oldPath is never touched unless the copy
// succeeded.
func copyThenRemove(oldPath, newPath string) error {
	source, err := os.Open(oldPath)
	if err != nil {
		return err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return err
	}

	destination, err := CreateExclusive(newPath, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		os.Remove(newPath)
		return fmt.Errorf("copying %s to %s: %w", oldPath, newPath, err)
	}
	if err := destination.Sync(); err != nil {
		destination.Close()
		os.Remove(newPath)
		return fmt.Errorf("syncing %s: %w", newPath, err)
	}
	if err := destination.Close(); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("closing %s: %w", newPath, err)
	}

	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("removing %s after copying to %s: %w", oldPath, newPath, err)
	}
	return nil
}

func unwrapErrno(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return err
}
