// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"strings"
)

// LineBuffer accumulates bytes from one stream and yields complete
// lines. A line is complete when its '\n' terminator has been seen;
// anything after the last terminator is held until the next Write or
// until Flush.
//
// Yielded lines have the terminator and any trailing '\r' removed, and
// invalid UTF-8 sequences replaced with U+FFFD. The raw bytes are the
// caller's responsibility: LineBuffer only produces ledger payloads.
type LineBuffer struct {
	pending []byte
}

// Write appends chunk and returns every line it completed, in order.
func (b *LineBuffer) Write(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	var lines []string
	for {
		index := bytes.IndexByte(b.pending, '\n')
		if index < 0 {
			break
		}
		lines = append(lines, payload(b.pending[:index]))
		b.pending = b.pending[index+1:]
	}

	// Compact so a long-lived buffer does not pin every chunk it ever
	// saw through the shared backing array.
	if len(b.pending) == 0 {
		b.pending = nil
	} else if cap(b.pending) > 4*len(b.pending) && cap(b.pending) > 4096 {
		b.pending = append([]byte(nil), b.pending...)
	}
	return lines
}

// Flush returns the retained partial line, if any, and empties the
// buffer. Call it once the stream reaches end of file.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.pending) == 0 {
		return "", false
	}
	line := payload(b.pending)
	b.pending = nil
	return line, true
}

// Pending reports how many bytes are held as an incomplete line.
func (b *LineBuffer) Pending() int {
	return len(b.pending)
}

func payload(raw []byte) string {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}
