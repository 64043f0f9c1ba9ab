// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bufio"
	"fmt"
	"io"
)

// Section markers written around each rendering.
const (
	EventsBegin = "--- BEGIN EVENTS ---"
	EventsEnd   = "--- END EVENTS ---"
	MergedBegin = "--- BEGIN MERGED (OBSERVED ORDER) ---"
	MergedEnd   = "--- END MERGED ---"
)

// WriteEvents writes the ledger dump: one "[SEQ=n][SOURCE] text" line
// per event between the EventsBegin and EventsEnd markers.
func WriteEvents(w io.Writer, events []Event) error {
	return writeSection(w, EventsBegin, EventsEnd, events, func(event Event) string {
		return event.String()
	})
}

// WriteMerged writes the interleaved "what happened in what order"
// view: one "[#n][SOURCE] text" line per event between the MergedBegin
// and MergedEnd markers. It carries the same events as WriteEvents.
func WriteMerged(w io.Writer, events []Event) error {
	return writeSection(w, MergedBegin, MergedEnd, events, func(event Event) string {
		return fmt.Sprintf("[#%d][%s] %s", event.Seq, event.Source, event.Text)
	})
}

func writeSection(w io.Writer, begin, end string, events []Event, format func(Event) string) error {
	buffered := bufio.NewWriter(w)
	fmt.Fprintln(buffered, begin)
	for _, event := range events {
		fmt.Fprintln(buffered, format(event))
	}
	fmt.Fprintln(buffered, end)
	return buffered.Flush()
}
