// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/saferun/lib/artifact"
	"github.com/bureau-foundation/saferun/lib/clock"
	"github.com/bureau-foundation/saferun/lib/testutil"
)

var epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// consoleBuffer is a goroutine-safe console that can announce when a
// marker has been written.
type consoleBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	marker string
	seen   chan struct{}
}

func newConsoleBuffer(marker string) *consoleBuffer {
	return &consoleBuffer{marker: marker, seen: make(chan struct{})}
}

func (c *consoleBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.Write(p)
	if c.marker != "" && strings.Contains(c.buffer.String(), c.marker) {
		c.marker = ""
		close(c.seen)
	}
	return len(p), nil
}

func (c *consoleBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.String()
}

type harness struct {
	logDir  string
	stdout  *consoleBuffer
	stderr  *consoleBuffer
	clock   *clock.FakeClock
	signals chan os.Signal
}

func newHarness(t *testing.T, configure func(*Config)) (*Supervisor, *harness) {
	t.Helper()
	h := &harness{
		logDir:  filepath.Join(t.TempDir(), "FAIL-LOGS"),
		stdout:  newConsoleBuffer("ready"),
		stderr:  newConsoleBuffer(""),
		clock:   clock.Fake(epoch),
		signals: make(chan os.Signal, 4),
	}
	config := Config{
		LogDir:       h.logDir,
		Stdout:       h.stdout,
		Stderr:       h.stderr,
		Signals:      h.signals,
		Clock:        h.clock,
		PID:          4242,
		DrainTimeout: 5 * time.Second,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if configure != nil {
		configure(&config)
	}
	return New(config), h
}

// onlyArtifact returns the content of the single file in the log
// directory.
func (h *harness) onlyArtifact(t *testing.T) (string, string) {
	t.Helper()
	names := testutil.DirNames(t, h.logDir)
	if len(names) != 1 {
		t.Fatalf("log directory holds %v, want exactly one artifact", names)
	}
	return names[0], testutil.ReadFile(t, filepath.Join(h.logDir, names[0]))
}

type runResult struct {
	result Result
	err    error
}

func startRun(s *Supervisor, ctx context.Context, argv ...string) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		result, err := s.Run(ctx, argv)
		done <- runResult{result, err}
	}()
	return done
}

var seqPattern = regexp.MustCompile(`(?m)^\[SEQ=(\d+)\]`)

// requireGapless checks that the ledger section numbers events 1..n.
func requireGapless(t *testing.T, content string) {
	t.Helper()
	matches := seqPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		t.Fatal("artifact has no ledger events")
	}
	for i, match := range matches {
		seq, err := strconv.Atoi(match[1])
		if err != nil || seq != i+1 {
			t.Fatalf("event %d has SEQ=%s, want %d", i, match[1], i+1)
		}
	}
}

func TestSuccessLeavesNoTrace(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	result, err := supervisor.Run(context.Background(), []string{"echo", "ok"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeSuccess || result.ExitCode != 0 {
		t.Errorf("result = %+v, want success with exit 0", result)
	}
	if names := testutil.DirNames(t, h.logDir); len(names) != 0 {
		t.Errorf("success left %v in the log directory", names)
	}
	if got := h.stdout.String(); got != "ok\n" {
		t.Errorf("stdout pass-through = %q", got)
	}
	if got := h.stderr.String(); got != "" {
		t.Errorf("stderr = %q, want nothing on success", got)
	}
}

func TestFailureWritesOneArtifact(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	result, err := supervisor.Run(context.Background(),
		[]string{"sh", "-c", "echo out; echo err >&2; exit 7"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFail || result.ExitCode != 7 || result.ChildCode != 7 {
		t.Errorf("result = %+v, want fail with exit 7", result)
	}

	name, content := h.onlyArtifact(t)
	if name != "20260314T150926Z-pid4242-FAIL.log" {
		t.Errorf("artifact name = %s", name)
	}
	if result.ArtifactPath != filepath.Join(h.logDir, name) {
		t.Errorf("ArtifactPath = %s", result.ArtifactPath)
	}
	for _, want := range []string{
		"=== STDOUT ===\nout\n\n=== STDERR ===\nerr\n\n",
		`[SEQ=1][META] safe-run start: cmd="sh -c 'echo out; echo err >&2; exit 7'"`,
		"][STDOUT] out\n",
		"][STDERR] err\n",
		"][META] safe-run exit: code=7\n--- END EVENTS ---\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("artifact missing %q:\n%s", want, content)
		}
	}
	requireGapless(t, content)

	if got := h.stdout.String(); got != "out\n" {
		t.Errorf("stdout pass-through = %q", got)
	}
	if got := h.stderr.String(); !strings.HasPrefix(got, "err\n") ||
		!strings.Contains(got, "safe-run: command failed (exit 7); log: "+result.ArtifactPath) {
		t.Errorf("stderr = %q", got)
	}
}

func TestExitCodeFidelity(t *testing.T) {
	for _, code := range []int{0, 1, 2, 42, 126, 127, 128, 130, 255} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			supervisor, h := newHarness(t, nil)
			result, err := supervisor.Run(context.Background(),
				[]string{"sh", "-c", "exit " + strconv.Itoa(code)})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if result.ExitCode != code {
				t.Errorf("ExitCode = %d, want %d", result.ExitCode, code)
			}
			if code == 0 {
				return
			}
			_, content := h.onlyArtifact(t)
			if !strings.Contains(content, "safe-run exit: code="+strconv.Itoa(code)+"\n") {
				t.Errorf("exit event does not carry code %d:\n%s", code, content)
			}
		})
	}
}

func TestPartialAndCarriageReturnLines(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	_, err := supervisor.Run(context.Background(),
		[]string{"sh", "-c", `printf 'dos\r\nno newline'; exit 1`})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, content := h.onlyArtifact(t)
	if !strings.Contains(content, "=== STDOUT ===\ndos\r\nno newline\n=== STDERR ===") {
		t.Errorf("stdout section not verbatim:\n%q", content)
	}
	if !strings.Contains(content, "][STDOUT] dos\n") {
		t.Errorf("carriage return not stripped from event:\n%q", content)
	}
	if !strings.Contains(content, "][STDOUT] no newline\n") {
		t.Errorf("partial final line not flushed:\n%q", content)
	}
	requireGapless(t, content)
}

func TestSpawnFailure(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	result, err := supervisor.Run(context.Background(), []string{filepath.Join(t.TempDir(), "no-such-command")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeError || result.ExitCode != 127 {
		t.Errorf("result = %+v, want error with exit 127", result)
	}
	name, content := h.onlyArtifact(t)
	if name != "20260314T150926Z-pid4242-ERROR.log" {
		t.Errorf("artifact name = %s", name)
	}
	if !strings.Contains(content, "[SEQ=2][META] safe-run spawn error: ") {
		t.Errorf("artifact missing spawn error:\n%s", content)
	}
	requireGapless(t, content)
}

func TestChildKilledBySignalIsFailure(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	result, err := supervisor.Run(context.Background(), []string{"sh", "-c", "kill -TERM $$"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFail || result.ExitCode != 128+int(syscall.SIGTERM) {
		t.Errorf("result = %+v, want fail with exit %d", result, 128+int(syscall.SIGTERM))
	}
	name, _ := h.onlyArtifact(t)
	if !strings.HasSuffix(name, "-FAIL.log") {
		t.Errorf("artifact name = %s", name)
	}
}

func TestInterruptAbortsRun(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	done := startRun(supervisor, context.Background(), "sh", "-c", "echo ready; exec sleep 30")
	testutil.RequireClosed(t, h.stdout.seen, 10*time.Second, "child ready")
	h.signals <- syscall.SIGINT

	outcome := testutil.RequireReceive(t, done, 10*time.Second, "waiting for aborted run")
	if outcome.err != nil {
		t.Fatalf("Run: %v", outcome.err)
	}
	if outcome.result.Outcome != OutcomeAborted || outcome.result.ExitCode != 130 {
		t.Errorf("result = %+v, want aborted with exit 130", outcome.result)
	}
	if outcome.result.Signal != syscall.SIGINT {
		t.Errorf("Signal = %v, want SIGINT", outcome.result.Signal)
	}

	name, content := h.onlyArtifact(t)
	if name != "20260314T150926Z-pid4242-ABORTED.log" {
		t.Errorf("artifact name = %s", name)
	}
	for _, want := range []string{
		"=== STDOUT ===\nready\n",
		"][META] safe-run abort: signal=SIGINT\n",
		"][META] safe-run exit: code=130\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("artifact missing %q:\n%s", want, content)
		}
	}
	requireGapless(t, content)
	if !strings.Contains(h.stderr.String(), "safe-run: command aborted (SIGINT)") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestSignalQueuedBeforeStartAborts(t *testing.T) {
	supervisor, h := newHarness(t, nil)
	h.signals <- syscall.SIGTERM

	result, err := supervisor.Run(context.Background(), []string{"sleep", "30"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeAborted || result.ExitCode != 128+int(syscall.SIGTERM) {
		t.Errorf("result = %+v, want aborted with exit %d", result, 128+int(syscall.SIGTERM))
	}
}

func TestKillGraceEscalates(t *testing.T) {
	supervisor, h := newHarness(t, func(config *Config) {
		config.KillGrace = 3 * time.Second
	})

	done := startRun(supervisor, context.Background(), "sh", "-c", `trap "" INT; echo ready; exec sleep 30`)
	testutil.RequireClosed(t, h.stdout.seen, 10*time.Second, "child ready")
	h.signals <- syscall.SIGINT

	armed := make(chan struct{})
	go func() {
		h.clock.WaitForTimers(1)
		close(armed)
	}()
	testutil.RequireClosed(t, armed, 10*time.Second, "kill grace timer armed")
	h.clock.Advance(3 * time.Second)

	outcome := testutil.RequireReceive(t, done, 10*time.Second, "waiting for killed run")
	if outcome.result.Outcome != OutcomeAborted || outcome.result.ExitCode != 130 {
		t.Errorf("result = %+v, want aborted with exit 130", outcome.result)
	}
	if outcome.result.ChildCode != 128+int(syscall.SIGKILL) {
		t.Errorf("ChildCode = %d, want %d", outcome.result.ChildCode, 128+int(syscall.SIGKILL))
	}
}

func TestSecondSignalKills(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	done := startRun(supervisor, context.Background(), "sh", "-c", `trap "" INT; echo ready; exec sleep 30`)
	testutil.RequireClosed(t, h.stdout.seen, 10*time.Second, "child ready")
	h.signals <- syscall.SIGINT
	h.signals <- syscall.SIGINT

	outcome := testutil.RequireReceive(t, done, 10*time.Second, "waiting for killed run")
	if outcome.result.Outcome != OutcomeAborted || outcome.result.ExitCode != 130 {
		t.Errorf("result = %+v, want aborted with exit 130", outcome.result)
	}
}

func TestContextCancellationAborts(t *testing.T) {
	supervisor, h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := startRun(supervisor, ctx, "sh", "-c", "echo ready; exec sleep 30")
	testutil.RequireClosed(t, h.stdout.seen, 10*time.Second, "child ready")
	cancel()

	outcome := testutil.RequireReceive(t, done, 10*time.Second, "waiting for cancelled run")
	if outcome.result.Outcome != OutcomeAborted || outcome.result.ExitCode != 130 {
		t.Errorf("result = %+v, want aborted with exit 130", outcome.result)
	}
	if outcome.result.Signal != nil {
		t.Errorf("Signal = %v, want nil for cancellation", outcome.result.Signal)
	}
	_, content := h.onlyArtifact(t)
	if !strings.Contains(content, "safe-run abort: context cancelled") {
		t.Errorf("artifact missing cancellation event:\n%s", content)
	}
}

func TestDrainTimeoutStopsWaitingForDescendants(t *testing.T) {
	supervisor, h := newHarness(t, func(config *Config) {
		config.DrainTimeout = 300 * time.Millisecond
	})

	done := startRun(supervisor, context.Background(), "sh", "-c", "sleep 5 & echo bye; exit 3")
	outcome := testutil.RequireReceive(t, done, 4*time.Second, "run held open by a descendant")
	if outcome.result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", outcome.result.ExitCode)
	}
	_, content := h.onlyArtifact(t)
	if !strings.Contains(content, "][STDOUT] bye\n") {
		t.Errorf("output before exit lost:\n%s", content)
	}
}

func TestTailPrintedOnFailure(t *testing.T) {
	supervisor, h := newHarness(t, func(config *Config) {
		config.SnippetLines = 2
	})

	_, err := supervisor.Run(context.Background(),
		[]string{"sh", "-c", "echo first; echo second; echo third >&2; exit 1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	stderr := h.stderr.String()
	if !strings.Contains(stderr, "last 2 lines of output") {
		t.Fatalf("no tail header in stderr:\n%s", stderr)
	}
	tail := stderr[strings.Index(stderr, "last 2 lines"):]
	if strings.Contains(tail, "first") {
		t.Errorf("tail holds more than 2 lines:\n%s", tail)
	}
	if !strings.Contains(tail, "second\n") || !strings.Contains(tail, "third\n") {
		t.Errorf("tail missing recent lines:\n%s", tail)
	}
}

func TestTailDisabledByDefault(t *testing.T) {
	supervisor, h := newHarness(t, nil)

	if _, err := supervisor.Run(context.Background(), []string{"sh", "-c", "echo x; exit 1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(h.stderr.String(), "lines of output") {
		t.Errorf("tail printed with SnippetLines 0:\n%s", h.stderr.String())
	}
}

func TestMergedView(t *testing.T) {
	supervisor, h := newHarness(t, func(config *Config) {
		config.View = artifact.ViewMerged
	})

	if _, err := supervisor.Run(context.Background(), []string{"sh", "-c", "echo a; exit 4"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, content := h.onlyArtifact(t)
	if !strings.Contains(content, "--- BEGIN MERGED (OBSERVED ORDER) ---\n[#1][META] safe-run start:") {
		t.Errorf("merged view missing:\n%s", content)
	}
	if !strings.Contains(content, "[#2][STDOUT] a\n") {
		t.Errorf("merged view lacks stdout line:\n%s", content)
	}
}

func TestStdinIsPassedThrough(t *testing.T) {
	input, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	input.WriteString("from stdin\n")
	input.Seek(0, io.SeekStart)
	defer input.Close()

	supervisor, h := newHarness(t, func(config *Config) {
		config.Stdin = input
	})
	if _, err := supervisor.Run(context.Background(), []string{"cat"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.stdout.String(); got != "from stdin\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestPersistenceFailureKeepsChildCode(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	testutil.WriteFile(t, blocker, "")
	supervisor, h := newHarness(t, func(config *Config) {
		config.LogDir = filepath.Join(blocker, "logs")
	})

	result, err := supervisor.Run(context.Background(), []string{"sh", "-c", "exit 9"})
	if err == nil {
		t.Fatal("Run succeeded writing under a regular file")
	}
	if result.ExitCode != 9 || result.Outcome != OutcomeFail {
		t.Errorf("result = %+v, want fail with exit 9", result)
	}
	if result.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %q after failed write", result.ArtifactPath)
	}
	if !strings.Contains(h.stderr.String(), "could not write failure log") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

// closedConsole fails every write the way a pipe whose reader has gone
// away does once SIGPIPE no longer kills the process.
type closedConsole struct{}

func (closedConsole) Write([]byte) (int, error) { return 0, syscall.EPIPE }

func TestClosedConsoleStillCaptures(t *testing.T) {
	supervisor, h := newHarness(t, func(config *Config) {
		config.Stdout = closedConsole{}
	})

	result, err := supervisor.Run(context.Background(),
		[]string{"sh", "-c", "i=0; while [ $i -lt 2000 ]; do echo line $i; i=$((i+1)); done; echo err >&2; exit 3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeFail || result.ExitCode != 3 || result.ChildCode != 3 {
		t.Errorf("result = %+v, want fail with exit 3", result)
	}

	_, content := h.onlyArtifact(t)
	for _, want := range []string{"=== STDOUT ===\nline 0\n", "line 1999\n", "][STDERR] err\n", "safe-run exit: code=3\n"} {
		if !strings.Contains(content, want) {
			t.Errorf("artifact missing %q", want)
		}
	}
	requireGapless(t, content)

	if got := h.stderr.String(); !strings.HasPrefix(got, "err\n") ||
		!strings.Contains(got, "safe-run: command failed (exit 3)") {
		t.Errorf("stderr = %q", got)
	}
}

func TestEmptyCommand(t *testing.T) {
	supervisor, _ := newHarness(t, nil)
	if _, err := supervisor.Run(context.Background(), nil); err == nil {
		t.Fatal("Run accepted an empty argv")
	}
}
