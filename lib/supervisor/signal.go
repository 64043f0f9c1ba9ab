// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bureau-foundation/saferun/lib/clock"
	"github.com/bureau-foundation/saferun/lib/ledger"
)

// abortState is the shared abort flag. It is written by the forwarder
// and read by Run once the child has been reaped.
type abortState struct {
	requested atomic.Bool

	mu     sync.Mutex
	signal os.Signal
}

func (a *abortState) set(sig os.Signal) bool {
	if !a.requested.CompareAndSwap(false, true) {
		return false
	}
	a.mu.Lock()
	a.signal = sig
	a.mu.Unlock()
	return true
}

func (a *abortState) get() (os.Signal, bool) {
	if !a.requested.Load() {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signal, true
}

// forwarder relays abort requests to the child until stop is closed.
type forwarder struct {
	process   *os.Process
	ledger    *ledger.Ledger
	abort     *abortState
	clock     clock.Clock
	killGrace time.Duration
	logger    *slog.Logger

	killTimer *clock.Timer
}

func (f *forwarder) run(ctx context.Context, signals <-chan os.Signal, stop <-chan struct{}) {
	defer func() {
		if f.killTimer != nil {
			f.killTimer.Stop()
		}
	}()

	done := ctx.Done()
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			f.request(sig, sig)
		case <-done:
			done = nil
			f.request(nil, syscall.SIGTERM)
		}
	}
}

// request handles one abort request. received is what the supervisor
// got (nil for context cancellation); forward is what the child gets.
func (f *forwarder) request(received os.Signal, forward os.Signal) {
	if !f.abort.set(received) {
		f.logger.Warn("abort requested again, killing child", "signal", signalName(received))
		f.kill()
		return
	}

	if received != nil {
		f.ledger.Append(ledger.SourceMeta, "safe-run abort: signal="+signalName(received))
		f.logger.Info("abort requested, forwarding signal", "signal", signalName(received), "pid", f.process.Pid)
	} else {
		f.ledger.Append(ledger.SourceMeta, "safe-run abort: context cancelled")
		f.logger.Info("run cancelled, terminating child", "pid", f.process.Pid)
	}

	// The child may already have exited; the reaper reports that.
	_ = f.process.Signal(forward)

	if f.killGrace > 0 {
		f.killTimer = f.clock.AfterFunc(f.killGrace, func() {
			f.logger.Warn("child still running after kill grace, killing", "kill_grace", f.killGrace)
			f.kill()
		})
	}
}

func (f *forwarder) kill() {
	_ = f.process.Signal(syscall.SIGKILL)
}
