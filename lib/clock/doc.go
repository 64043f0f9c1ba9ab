// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by the supervisor and the
// archiver.
//
// Two things depend on time: the UTC timestamp embedded in every
// forensic artifact name, and the kill-grace timer that escalates an
// abort to SIGKILL when the child ignores the forwarded signal. Both go
// through [Clock] so tests can pin artifact names to a known second and
// fire the escalation timer without sleeping.
//
// Production code uses [Real]. Tests use [Fake]:
//
//	c := clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
//	supervisor := supervisor.New(supervisor.Config{Clock: c, ...})
//	c.WaitForTimers(1)
//	c.Advance(10 * time.Second) // fires the kill-grace timer
package clock
