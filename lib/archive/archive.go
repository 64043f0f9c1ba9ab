// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/saferun/lib/fsutil"
)

// maxAlternates bounds the disambiguation search for one file.
const maxAlternates = 100000

// Config configures an Archiver.
type Config struct {
	// SourceDir is the capture directory scanned by ArchiveAll.
	SourceDir string

	// ArchiveDir receives the archived files. Created if absent.
	ArchiveDir string

	// Compressor runs on each archived file. Nil means no compression.
	Compressor Compressor

	// Logger receives one record per archived or failed file. Nil
	// means slog.Default().
	Logger *slog.Logger
}

// Entry describes one archived file.
type Entry struct {
	// Source is the path the file was moved from.
	Source string

	// Destination is the path the file was moved to, before any
	// compression.
	Destination string

	// Path is where the archived content now lives: Destination, or
	// the compressed file next to it.
	Path string

	// Digest is the hex blake3 digest of the uncompressed content.
	Digest string

	// Compressed reports whether Path is a compressed file.
	Compressed bool
}

// Archiver moves files into an archive directory without ever
// replacing an existing entry.
type Archiver struct {
	sourceDir  string
	archiveDir string
	compressor Compressor
	logger     *slog.Logger
}

// New returns an Archiver for config.
func New(config Config) *Archiver {
	archiver := &Archiver{
		sourceDir:  config.SourceDir,
		archiveDir: config.ArchiveDir,
		compressor: config.Compressor,
		logger:     config.Logger,
	}
	if archiver.compressor == nil {
		archiver.compressor = noneCompressor{}
	}
	if archiver.logger == nil {
		archiver.logger = slog.Default()
	}
	return archiver
}

// ArchiveFiles archives each path in order and stops at the first
// failure. The returned entries cover the files archived before it.
func (a *Archiver) ArchiveFiles(paths []string) ([]Entry, error) {
	var entries []Entry
	for _, path := range paths {
		entry, err := a.archive(path)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ArchiveAll archives every regular file in the source directory, in
// name order, as listed when the call starts. A failure on one file is
// logged and does not stop the others; all failures are returned
// joined. An empty source directory is not an error.
func (a *Archiver) ArchiveAll() ([]Entry, error) {
	if err := os.MkdirAll(a.sourceDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating source directory: %w", err)
	}
	listing, err := os.ReadDir(a.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", a.sourceDir, err)
	}

	var paths []string
	for _, dirEntry := range listing {
		if dirEntry.Type().IsRegular() {
			paths = append(paths, filepath.Join(a.sourceDir, dirEntry.Name()))
		}
	}
	if len(paths) == 0 {
		a.logger.Info("no files to archive", "source_dir", a.sourceDir)
		return nil, nil
	}

	var entries []Entry
	var errs []error
	for _, path := range paths {
		entry, err := a.archive(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errors.Join(errs...)
}

func (a *Archiver) archive(path string) (Entry, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Error("source missing", "source", path)
		return Entry{}, fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	if err != nil {
		a.logger.Error("inspecting source failed", "source", path, "error", err)
		return Entry{}, err
	}
	if !info.Mode().IsRegular() {
		a.logger.Error("source is not a regular file", "source", path, "mode", info.Mode().String())
		return Entry{}, fmt.Errorf("%s: not a regular file", path)
	}

	if err := os.MkdirAll(a.archiveDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating archive directory: %w", err)
	}

	destination, err := a.move(path)
	if err != nil {
		a.logger.Error("move failed", "source", path, "error", err)
		return Entry{}, err
	}
	entry := Entry{Source: path, Destination: destination, Path: destination}
	if base := filepath.Base(path); filepath.Base(destination) != base {
		a.logger.Info("name taken, archived under alternate name",
			"name", base, "alternate", filepath.Base(destination))
	}

	result, err := a.compressor.Compress(destination)
	if err != nil {
		a.logger.Error("compression failed, archived uncompressed",
			"source", path, "destination", destination, "error", err)
		return entry, fmt.Errorf("compressing %s: %w", destination, err)
	}
	entry.Path = result.Path
	entry.Digest = result.Digest
	entry.Compressed = result.Compressed

	a.logger.Info("archived",
		"source", entry.Source,
		"destination", entry.Destination,
		"path", entry.Path,
		"blake3", entry.Digest,
		"compressed", entry.Compressed,
	)
	return entry, nil
}

// move renames path into the archive directory under the first free
// alternate of its base name.
func (a *Archiver) move(path string) (string, error) {
	base := filepath.Base(path)
	for n := 0; n < maxAlternates; n++ {
		candidate := filepath.Join(a.archiveDir, AlternateName(base, n))
		if compressedSiblingExists(candidate) {
			continue
		}
		err := fsutil.RenameNoReplace(path, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("moving %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("moving %s: no free name after %d alternates", path, maxAlternates)
}

func compressedSiblingExists(candidate string) bool {
	for _, extension := range compressedExtensions() {
		if _, err := os.Lstat(candidate + extension); err == nil {
			return true
		}
	}
	return false
}

// AlternateName returns the n-th candidate name for base: base itself
// for n == 0, otherwise "-n" inserted before the extension. A name
// whose only dot is leading (".hidden") is treated as having no
// extension.
//
//	AlternateName("x.log", 2) == "x-2.log"
func AlternateName(base string, n int) string {
	if n == 0 {
		return base
	}
	extension := filepath.Ext(base)
	stem := strings.TrimSuffix(base, extension)
	if stem == "" {
		stem, extension = base, ""
	}
	return stem + "-" + strconv.Itoa(n) + extension
}
