// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/saferun/lib/artifact"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFail
	OutcomeAborted
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFail:
		return "fail"
	case OutcomeAborted:
		return "aborted"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// status returns the artifact tag for o. Success has none.
func (o Outcome) status() (artifact.Status, bool) {
	switch o {
	case OutcomeFail:
		return artifact.StatusFail, true
	case OutcomeAborted:
		return artifact.StatusAborted, true
	case OutcomeError:
		return artifact.StatusError, true
	default:
		return "", false
	}
}

// Result describes a finished run.
type Result struct {
	Outcome Outcome

	// ExitCode is what the supervisor should exit with.
	ExitCode int

	// ChildCode is the child's own status: its exit code, or 128+signal
	// when it was killed. -1 when the child never started.
	ChildCode int

	// Signal is the abort signal for OutcomeAborted. Nil when the abort
	// came from context cancellation.
	Signal os.Signal

	// ArtifactPath is the forensic artifact written for the run, empty
	// for OutcomeSuccess or when persistence failed.
	ArtifactPath string
}

// fallbackAbortCode is the conventional interrupt status used when the
// abort has no signal number.
const fallbackAbortCode = 130

// AbortExitCode returns 128 plus the signal number of sig, or 130 when
// sig carries no number.
func AbortExitCode(sig os.Signal) int {
	if number, ok := sig.(syscall.Signal); ok && number > 0 {
		return 128 + int(number)
	}
	return fallbackAbortCode
}

// signalName returns the conventional name of sig ("SIGINT").
func signalName(sig os.Signal) string {
	if number, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(number); name != "" {
			return name
		}
		return fmt.Sprintf("SIG%d", int(number))
	}
	if sig == nil {
		return "UNKNOWN"
	}
	return sig.String()
}
