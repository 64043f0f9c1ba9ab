// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs one child command with transparent output
// pass-through and leaves a forensic artifact behind when the run is not
// a clean success.
//
// The child's stdout and stderr are separate pipes. A single loop polls
// both read ends (poll(2), 100ms timeout) and for every chunk it reads:
// writes the raw bytes to the matching console stream, appends them to
// the stream's capture buffer, and records each completed line in the
// event ledger. Sequence numbers therefore reflect the order in which
// the supervisor observed lines, which is total and gapless but is not
// the order the child produced them across the two streams.
//
// Four outcomes are possible:
//
//   - Success: the child exited 0 and no abort was requested. Nothing
//     is written; the exit code is 0.
//   - Fail: the child exited non-zero, or died from a signal the
//     supervisor did not forward. A FAIL artifact is written and the
//     child's code (128+signal for a signal death) is returned.
//   - Aborted: a signal arrived on Config.Signals or the context was
//     cancelled. The signal is forwarded to the child, output keeps
//     draining until the child is gone, an ABORTED artifact is written,
//     and the code is 128+signal (130 when no signal number applies).
//     A second signal, or the kill grace elapsing, sends SIGKILL.
//   - Error: the child could not be started. An ERROR artifact is
//     written and the code is 127.
//
// Abort requests are observed by a forwarder goroutine, not by the read
// loop: it records the signal, forwards it to the child, and arms the
// kill grace timer. The read loop keeps draining output until both
// pipes close, and the recorded signal decides the outcome after the
// child is reaped.
//
// Persistence failures are returned as errors together with a Result
// whose ExitCode is still the child's.
package supervisor
