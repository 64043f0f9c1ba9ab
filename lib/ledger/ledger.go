// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
	"sync"
)

// Source identifies where an event came from.
type Source uint8

const (
	// SourceStdout marks a line read from the child's standard output.
	SourceStdout Source = iota + 1

	// SourceStderr marks a line read from the child's standard error.
	SourceStderr

	// SourceMeta marks a lifecycle event emitted by the supervisor
	// itself (start, abort, spawn error, exit).
	SourceMeta
)

// String returns the tag used in rendered ledgers.
func (source Source) String() string {
	switch source {
	case SourceStdout:
		return "STDOUT"
	case SourceStderr:
		return "STDERR"
	case SourceMeta:
		return "META"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(source))
	}
}

// Event is one observed line or lifecycle marker.
type Event struct {
	// Seq is the event's position in the ledger, starting at 1.
	Seq uint64

	// Source is the stream (or META) the event was observed on.
	Source Source

	// Text is one logical line without its terminator, or a lifecycle
	// message.
	Text string
}

// String renders the event as "[SEQ=n][SOURCE] text".
func (event Event) String() string {
	return fmt.Sprintf("[SEQ=%d][%s] %s", event.Seq, event.Source, event.Text)
}

// Ledger is an append-only, totally ordered event sequence. It is safe
// for concurrent use; appends are serialized so that two events never
// share a sequence number.
type Ledger struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records a new event and returns it with its assigned sequence
// number.
func (l *Ledger) Append(source Source, text string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := Event{
		Seq:    uint64(len(l.events)) + 1,
		Source: source,
		Text:   text,
	}
	l.events = append(l.events, event)
	return event
}

// Events returns a copy of every event recorded so far, in sequence
// order.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]Event, len(l.events))
	copy(events, l.events)
	return events
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
