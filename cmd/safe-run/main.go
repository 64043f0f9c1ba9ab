// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/saferun/lib/artifact"
	"github.com/bureau-foundation/saferun/lib/config"
	"github.com/bureau-foundation/saferun/lib/process"
	"github.com/bureau-foundation/saferun/lib/supervisor"
	"github.com/bureau-foundation/saferun/lib/version"
)

func main() {
	err := run(os.Args[1:])
	code, needsPrint := process.ExitCode(err)
	if needsPrint {
		process.Fatal(err)
	}
	os.Exit(code)
}

// invocation is a parsed command line.
type invocation struct {
	config      *config.RunConfig
	argv        []string
	showVersion bool
	showHelp    bool
}

// abortSignals are forwarded to the child and end the run as ABORTED.
var abortSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

func run(args []string) error {
	logger := process.NewLogger(os.Stderr)
	parsed, flagSet, err := parseArgs(args, os.LookupEnv, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "safe-run: %v\n", err)
		if flagSet != nil {
			printUsage(os.Stderr, flagSet)
		}
		return &process.ExitError{Code: process.ExitUsage}
	}
	if parsed.showHelp {
		printUsage(os.Stdout, flagSet)
		return nil
	}
	if parsed.showVersion {
		version.Print(os.Stdout, "safe-run")
		return nil
	}

	view, _ := artifact.ParseView(parsed.config.View)

	signals := make(chan os.Signal, len(abortSignals))
	signal.Notify(signals, abortSignals...)
	defer signal.Stop(signals)

	// A console closed by its reader (safe-run cmd | head) must not kill
	// the supervisor before the artifact is written. With SIGPIPE under
	// Notify, writes to fd 1 and 2 fail with EPIPE instead. Ignore would
	// be inherited by the child across exec.
	brokenPipe := make(chan os.Signal, 1)
	signal.Notify(brokenPipe, syscall.SIGPIPE)
	defer signal.Stop(brokenPipe)

	runner := supervisor.New(supervisor.Config{
		LogDir:       parsed.config.LogDir,
		SnippetLines: parsed.config.SnippetLines,
		View:         view,
		KillGrace:    parsed.config.KillGrace,
		DrainTimeout: parsed.config.DrainTimeout,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Signals:      signals,
		Logger:       logger,
	})

	result, err := runner.Run(context.Background(), parsed.argv)
	if err != nil {
		// The supervisor already reported the failure on stderr; the
		// child's status still decides the exit code.
		logger.Error("failure log not written", "error", err, "exit_code", result.ExitCode)
	}
	if result.ExitCode != 0 {
		return &process.ExitError{Code: result.ExitCode}
	}
	return nil
}

// parseArgs resolves configuration and splits flags from the child
// command. Flag parsing stops at the first non-flag argument or at
// "--", so the child's own flags are never interpreted. The returned
// FlagSet is non-nil whenever usage is worth printing. Unusable display
// settings from the environment are reported on logger and ignored;
// the same values given as flags are errors.
func parseArgs(args []string, lookup config.LookupFunc, logger *slog.Logger) (*invocation, *pflag.FlagSet, error) {
	var (
		logDir       string
		snippetLines int
		view         string
		killGrace    time.Duration
		drainTimeout time.Duration
		parsed       invocation
	)

	flagSet := pflag.NewFlagSet("safe-run", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&logDir, "log-dir", "", "directory for failure logs (env SAFE_LOG_DIR)")
	flagSet.IntVar(&snippetLines, "snippet-lines", 0, "print this many recent output lines on failure (env SAFE_SNIPPET_LINES)")
	flagSet.StringVar(&view, "view", "", "artifact view: split or merged (env SAFE_RUN_VIEW)")
	flagSet.DurationVar(&killGrace, "kill-grace", 0, "SIGKILL an aborted child after this long, 0 to disable (env SAFE_RUN_KILL_GRACE)")
	flagSet.DurationVar(&drainTimeout, "drain-timeout", 0, "stop reading this long after exit when output stays open (env SAFE_RUN_DRAIN_TIMEOUT)")
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

	cfg, err := config.LoadRun(lookup, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	if flagSet.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flagSet.Changed("snippet-lines") {
		cfg.SnippetLines = snippetLines
	}
	if flagSet.Changed("view") {
		cfg.View = view
	}
	if flagSet.Changed("kill-grace") {
		cfg.KillGrace = killGrace
	}
	if flagSet.Changed("drain-timeout") {
		cfg.DrainTimeout = drainTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	parsed.config = cfg

	parsed.argv = flagSet.Args()
	if len(parsed.argv) == 0 {
		return nil, flagSet, errors.New("no command specified")
	}
	return &parsed, flagSet, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `safe-run: run a command and keep a forensic log if it fails.

Usage:
  safe-run [flags] [--] <command> [args...]

Output is passed through unchanged. On a non-zero exit, an interrupt,
or a failure to start, a single log holding both streams and an
ordered event ledger is written to the log directory. Nothing is
written when the command succeeds.

Examples:
  safe-run -- go test ./...
  SAFE_SNIPPET_LINES=20 safe-run make build

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
