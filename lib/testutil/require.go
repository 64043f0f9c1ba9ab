// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// fatalHelper is the part of testing.TB the channel helpers need.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch. A closed channel or
// a wait longer than timeout fails the test, naming what was awaited.
//
//	outcome := testutil.RequireReceive(t, done, 10*time.Second, "run after %s", sig)
func RequireReceive[T any](t fatalHelper, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed with nothing sent", describe(what))
		}
		return value
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: nothing received within %v", describe(what), timeout)
	}
	panic("unreachable")
}

// RequireClosed waits until ch is closed or delivers a value, failing
// the test after timeout. Console markers and readiness channels that
// signal by closing are awaited this way.
func RequireClosed(t fatalHelper, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: not closed within %v", describe(what), timeout)
	}
}

// describe renders the optional description: nothing, a single value,
// or a format string and its arguments.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "wait"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
