// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/bureau-foundation/saferun/lib/artifact"
	"github.com/bureau-foundation/saferun/lib/clock"
	"github.com/bureau-foundation/saferun/lib/ledger"
	"github.com/bureau-foundation/saferun/lib/process"
)

// Config configures a Supervisor. The zero value of every field except
// LogDir is usable.
type Config struct {
	// LogDir receives forensic artifacts. Created on first use.
	LogDir string

	// SnippetLines is the capacity of the tail printed to Stderr on
	// FAIL and ABORTED outcomes. 0 disables the tail.
	SnippetLines int

	// View selects the artifact rendering. Empty means split.
	View artifact.View

	// KillGrace is how long an aborted child may run after the
	// forwarded signal before SIGKILL. 0 disables the escalation.
	KillGrace time.Duration

	// DrainTimeout bounds reading after the child exits while no input
	// arrives. 0 reads until end of file.
	DrainTimeout time.Duration

	// Stdin is given to the child. Nil means /dev/null.
	Stdin *os.File

	// Stdout and Stderr receive the child's output as it arrives, plus
	// the operator-facing status lines on Stderr. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Signals delivers abort requests. The binary connects it to
	// signal.Notify; nil means only context cancellation aborts.
	Signals <-chan os.Signal

	// Dir and Env configure the child as in exec.Cmd. Nil Env inherits
	// the supervisor's environment.
	Dir string
	Env []string

	// Clock supplies artifact timestamps and the kill grace timer. Nil
	// means the real clock.
	Clock clock.Clock

	// PID is the process identifier recorded in artifact names. 0 means
	// os.Getpid().
	PID int

	// Logger receives the supervisor's own diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Supervisor runs child commands according to its Config.
type Supervisor struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
}

// New returns a Supervisor for config.
func New(config Config) *Supervisor {
	if config.View == "" {
		config.View = artifact.ViewSplit
	}
	if config.Stdout == nil {
		config.Stdout = io.Discard
	}
	if config.Stderr == nil {
		config.Stderr = io.Discard
	}
	if config.PID == 0 {
		config.PID = os.Getpid()
	}
	supervisor := &Supervisor{config: config, logger: config.Logger, clock: config.Clock}
	if supervisor.logger == nil {
		supervisor.logger = slog.Default()
	}
	if supervisor.clock == nil {
		supervisor.clock = clock.Real()
	}
	return supervisor
}

// Run executes argv and blocks until the child has exited and its
// output has been drained. The returned error reports only failures of
// the supervisor itself (an empty argv, or an artifact that could not be
// written); the child's own failure is described by Result.
func (s *Supervisor) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("no command to run")
	}

	events := ledger.New()
	events.Append(ledger.SourceMeta, `safe-run start: cmd="`+QuoteCommand(argv)+`"`)
	s.logger.Debug("starting command", "argv", argv)

	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return s.spawnFailed(events, argv, fmt.Errorf("creating stdout pipe: %w", err))
	}
	defer stdoutRead.Close()
	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		stdoutWrite.Close()
		return s.spawnFailed(events, argv, fmt.Errorf("creating stderr pipe: %w", err))
	}
	defer stderrRead.Close()

	command := exec.Command(argv[0], argv[1:]...)
	command.Stdout = stdoutWrite
	command.Stderr = stderrWrite
	if s.config.Stdin != nil {
		command.Stdin = s.config.Stdin
	}
	command.Dir = s.config.Dir
	command.Env = s.config.Env

	startErr := command.Start()
	// The child holds its own copies; ours must go so end of file is
	// seen once the child (and its descendants) close theirs.
	stdoutWrite.Close()
	stderrWrite.Close()
	if startErr != nil {
		return s.spawnFailed(events, argv, startErr)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- command.Wait() }()

	abort := &abortState{}
	stopForwarding := make(chan struct{})
	forwardingDone := make(chan struct{})
	forward := &forwarder{
		process:   command.Process,
		ledger:    events,
		abort:     abort,
		clock:     s.clock,
		killGrace: s.config.KillGrace,
		logger:    s.logger,
	}
	go func() {
		defer close(forwardingDone)
		forward.run(ctx, s.config.Signals, stopForwarding)
	}()

	stdout := newStream(stdoutRead, ledger.SourceStdout, s.config.Stdout)
	stderr := newStream(stderrRead, ledger.SourceStderr, s.config.Stderr)
	tail := newTailRing(s.config.SnippetLines)
	loop := &multiplexer{
		streams:       []*stream{stdout, stderr},
		ledger:        events,
		tail:          tail,
		logger:        s.logger,
		consoleFailed: make(map[ledger.Source]bool),
	}

	exited := false
	var waitErr error
	childExited := func() bool {
		if exited {
			return true
		}
		select {
		case waitErr = <-waitDone:
			exited = true
		default:
		}
		return exited
	}
	loop.run(childExited, s.config.DrainTimeout)
	if !exited {
		waitErr = <-waitDone
	}
	close(stopForwarding)
	<-forwardingDone

	childCode := exitStatus(command.ProcessState, waitErr)
	events.Append(ledger.SourceMeta, fmt.Sprintf("safe-run exit: code=%d", childCode))

	result := Result{ChildCode: childCode, ExitCode: childCode}
	if sig, aborted := abort.get(); aborted {
		result.Outcome = OutcomeAborted
		result.Signal = sig
		result.ExitCode = AbortExitCode(sig)
	} else if childCode == 0 {
		result.Outcome = OutcomeSuccess
		s.logger.Debug("command succeeded")
		return result, nil
	} else {
		result.Outcome = OutcomeFail
	}

	record := artifact.Record{
		Stdout: stdout.capture.Bytes(),
		Stderr: stderr.capture.Bytes(),
		Events: events.Events(),
	}
	return s.persist(result, record, tail.snapshot())
}

// spawnFailed records a child that never started.
func (s *Supervisor) spawnFailed(events *ledger.Ledger, argv []string, cause error) (Result, error) {
	events.Append(ledger.SourceMeta, "safe-run spawn error: "+cause.Error())
	s.logger.Error("starting command failed", "command", argv[0], "error", cause)
	result := Result{
		Outcome:   OutcomeError,
		ExitCode:  process.ExitSpawnFailure,
		ChildCode: -1,
	}
	return s.persist(result, artifact.Record{Events: events.Events()}, nil)
}

// persist writes the artifact for a non-clean result and reports it on
// Stderr. A write failure is returned without changing ExitCode.
func (s *Supervisor) persist(result Result, record artifact.Record, tail []string) (Result, error) {
	status, _ := result.Outcome.status()
	record.Status = status
	record.Created = s.clock.Now()
	record.PID = s.config.PID

	path, err := artifact.Write(s.config.LogDir, record, s.config.View)
	if err != nil {
		s.logger.Error("writing failure log failed",
			"log_dir", s.config.LogDir, "status", string(status), "exit_code", result.ExitCode, "error", err)
		fmt.Fprintf(s.config.Stderr, "safe-run: could not write failure log: %v\n", err)
		s.report(result, "", tail)
		return result, fmt.Errorf("persisting %s artifact: %w", status, err)
	}
	result.ArtifactPath = path
	s.logger.Debug("wrote failure log", "path", path, "status", string(status), "exit_code", result.ExitCode)
	s.report(result, path, tail)
	return result, nil
}

// report prints the tail and the one-line outcome summary.
func (s *Supervisor) report(result Result, path string, tail []string) {
	if result.Outcome == OutcomeFail || result.Outcome == OutcomeAborted {
		printTail(s.config.Stderr, tail)
	}

	location := ""
	if path != "" {
		location = "; log: " + path
	}
	switch result.Outcome {
	case OutcomeFail:
		fmt.Fprintf(s.config.Stderr, "safe-run: command failed (exit %d)%s\n", result.ChildCode, location)
	case OutcomeAborted:
		fmt.Fprintf(s.config.Stderr, "safe-run: command aborted (%s)%s\n", signalName(result.Signal), location)
	case OutcomeError:
		fmt.Fprintf(s.config.Stderr, "safe-run: command could not be started%s\n", location)
	}
}

// exitStatus maps a reaped child to a shell-style status: the exit code,
// or 128+signal when the child was killed.
func exitStatus(state *os.ProcessState, waitErr error) int {
	if state == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return state.ExitCode()
}
