// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/saferun/lib/archive"
	"github.com/bureau-foundation/saferun/lib/config"
	"github.com/bureau-foundation/saferun/lib/process"
	"github.com/bureau-foundation/saferun/lib/version"
)

func main() {
	err := run(os.Args[1:], os.Stdout)
	code, needsPrint := process.ExitCode(err)
	if needsPrint {
		process.Fatal(err)
	}
	os.Exit(code)
}

// invocation is a parsed command line.
type invocation struct {
	config      *config.ArchiveConfig
	all         bool
	files       []string
	showVersion bool
	showHelp    bool
}

func run(args []string, stdout io.Writer) error {
	parsed, flagSet, err := parseArgs(args, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "safe-archive: %v\n", err)
		if flagSet != nil {
			printUsage(os.Stderr, flagSet)
		}
		return &process.ExitError{Code: process.ExitUsage}
	}
	if parsed.showHelp {
		printUsage(stdout, flagSet)
		return nil
	}
	if parsed.showVersion {
		version.Print(stdout, "safe-archive")
		return nil
	}

	method, _ := archive.ParseMethod(parsed.config.Compress)
	compressor, err := archive.NewCompressor(method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "safe-archive: %v\n", err)
		return &process.ExitError{Code: process.ExitUsage}
	}

	archiver := archive.New(archive.Config{
		SourceDir:  parsed.config.SourceDir,
		ArchiveDir: parsed.config.ArchiveDir,
		Compressor: compressor,
		Logger:     process.NewLogger(os.Stderr),
	})

	var entries []archive.Entry
	if parsed.all {
		entries, err = archiver.ArchiveAll()
	} else {
		entries, err = archiver.ArchiveFiles(parsed.files)
	}
	for _, entry := range entries {
		fmt.Fprintf(stdout, "%s -> %s\n", entry.Source, entry.Path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "safe-archive: %v\n", err)
		return &process.ExitError{Code: 1}
	}
	return nil
}

// parseArgs resolves configuration and the set of files to archive.
// The returned FlagSet is non-nil whenever usage is worth printing.
func parseArgs(args []string, lookup config.LookupFunc) (*invocation, *pflag.FlagSet, error) {
	var (
		sourceDir  string
		archiveDir string
		compress   string
		parsed     invocation
	)

	flagSet := pflag.NewFlagSet("safe-archive", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&parsed.all, "all", false, "archive every file in the source directory")
	flagSet.StringVar(&sourceDir, "source-dir", "", "capture directory scanned by --all (env SAFE_FAIL_DIR)")
	flagSet.StringVar(&archiveDir, "archive-dir", "", "archive destination (env SAFE_ARCHIVE_DIR)")
	flagSet.StringVar(&compress, "compress", "", "none, gzip, zstd, lz4, xz, or bzip2 (env SAFE_ARCHIVE_COMPRESS)")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information")
	flagSet.BoolVarP(&parsed.showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			parsed.showHelp = true
			return &parsed, flagSet, nil
		}
		return nil, flagSet, err
	}
	if parsed.showHelp || parsed.showVersion {
		return &parsed, flagSet, nil
	}

	cfg, err := config.LoadArchive(lookup)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	if flagSet.Changed("source-dir") {
		cfg.SourceDir = sourceDir
	}
	if flagSet.Changed("archive-dir") {
		cfg.ArchiveDir = archiveDir
	}
	if flagSet.Changed("compress") {
		cfg.Compress = compress
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	parsed.config = cfg

	parsed.files = flagSet.Args()
	switch {
	case parsed.all && len(parsed.files) > 0:
		return nil, flagSet, errors.New("--all cannot be combined with file arguments")
	case !parsed.all && len(parsed.files) == 0:
		return nil, flagSet, errors.New("specify --all or at least one file")
	}
	return &parsed, flagSet, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `safe-archive: move failure logs into the archive without overwriting.

Usage:
  safe-archive [flags] --all
  safe-archive [flags] <file>...

An archived name that is already taken gets a numeric suffix before
its extension (x.log, x-1.log, ...). With --compress, each archived
file is compressed and verified before the uncompressed copy is
removed; if compression fails the file stays in the archive
uncompressed and the exit code is non-zero.

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
