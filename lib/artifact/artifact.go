// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/saferun/lib/fsutil"
	"github.com/bureau-foundation/saferun/lib/ledger"
)

// View selects which ledger renderings an artifact carries.
type View string

const (
	// ViewSplit writes the stdout and stderr sections followed by the
	// event ledger. This is the default.
	ViewSplit View = "split"

	// ViewMerged additionally writes the interleaved observed-order
	// view of the same ledger.
	ViewMerged View = "merged"
)

// ParseView accepts "split", "merged", or "" (split).
func ParseView(value string) (View, error) {
	switch value {
	case "", string(ViewSplit):
		return ViewSplit, nil
	case string(ViewMerged):
		return ViewMerged, nil
	default:
		return "", fmt.Errorf("unknown view %q (want %q or %q)", value, ViewSplit, ViewMerged)
	}
}

// Record is everything persisted for one non-clean run.
type Record struct {
	Status  Status
	Created time.Time
	PID     int

	// Stdout and Stderr are the captured streams, byte for byte.
	Stdout []byte
	Stderr []byte

	// Events is the complete ledger of the run.
	Events []ledger.Event
}

const (
	stdoutHeader = "=== STDOUT ==="
	stderrHeader = "=== STDERR ==="
)

// maxSuffix bounds the collision search. Reaching it means something
// other than this process is filling the directory with our names.
const maxSuffix = 10000

// Render writes record in the artifact layout.
func Render(w io.Writer, record Record, view View) error {
	buffered := bufio.NewWriter(w)
	buffered.WriteString(stdoutHeader + "\n")
	buffered.Write(record.Stdout)
	buffered.WriteString("\n" + stderrHeader + "\n")
	buffered.Write(record.Stderr)
	buffered.WriteString("\n")
	if err := ledger.WriteEvents(buffered, record.Events); err != nil {
		return err
	}
	if view == ViewMerged {
		buffered.WriteString("\n")
		if err := ledger.WriteMerged(buffered, record.Events); err != nil {
			return err
		}
	}
	return buffered.Flush()
}

// Write persists record in directory, creating the directory if
// needed, and returns the artifact's path. The artifact is complete and
// synced before it appears under its final name; an existing file is
// never replaced.
func Write(directory string, record Record, view View) (string, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	temporary, err := os.CreateTemp(directory, ".safe-run-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating log file: %w", err)
	}
	temporaryPath := temporary.Name()

	if err := writeAndSync(temporary, record, view); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("writing log file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("closing log file: %w", err)
	}

	for suffix := 0; suffix < maxSuffix; suffix++ {
		finalPath := filepath.Join(directory, FileName(record.Created, record.PID, record.Status, suffix))
		err := fsutil.RenameNoReplace(temporaryPath, finalPath)
		if err == nil {
			syncDirectory(directory)
			return finalPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			os.Remove(temporaryPath)
			return "", fmt.Errorf("publishing log file: %w", err)
		}
	}
	os.Remove(temporaryPath)
	return "", fmt.Errorf("publishing log file: %d names taken for %s",
		maxSuffix, FileName(record.Created, record.PID, record.Status, 0))
}

func writeAndSync(file *os.File, record Record, view View) error {
	if err := file.Chmod(0o644); err != nil {
		return err
	}
	if err := Render(file, record, view); err != nil {
		return err
	}
	return file.Sync()
}

// syncDirectory makes the rename durable. Failure is ignored: the
// artifact is already complete under its final name.
func syncDirectory(directory string) {
	parent, err := os.Open(directory)
	if err != nil {
		return
	}
	parent.Sync()
	parent.Close()
}
