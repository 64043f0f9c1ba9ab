// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"reflect"
	"testing"
)

func TestLineBuffer(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		wantLines []string
		wantTail  string
		wantFlush bool
	}{
		{
			name:      "single complete line",
			chunks:    []string{"hello\n"},
			wantLines: []string{"hello"},
		},
		{
			name:      "line split across reads",
			chunks:    []string{"hel", "lo\nwor", "ld\n"},
			wantLines: []string{"hello", "world"},
		},
		{
			name:      "several lines in one read",
			chunks:    []string{"a\nb\nc\n"},
			wantLines: []string{"a", "b", "c"},
		},
		{
			name:      "trailing partial line kept until flush",
			chunks:    []string{"done\npartial"},
			wantLines: []string{"done"},
			wantTail:  "partial",
			wantFlush: true,
		},
		{
			name:      "carriage return stripped",
			chunks:    []string{"dos\r\n"},
			wantLines: []string{"dos"},
		},
		{
			name:      "empty lines preserved",
			chunks:    []string{"\n\nx\n"},
			wantLines: []string{"", "", "x"},
		},
		{
			name:      "invalid utf8 replaced",
			chunks:    []string{"bad\xffbyte\n"},
			wantLines: []string{"bad\uFFFDbyte"},
		},
		{
			name:   "nothing",
			chunks: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer LineBuffer
			var lines []string
			for _, chunk := range test.chunks {
				lines = append(lines, buffer.Write([]byte(chunk))...)
			}
			if !reflect.DeepEqual(lines, test.wantLines) {
				t.Errorf("lines = %q, want %q", lines, test.wantLines)
			}
			tail, ok := buffer.Flush()
			if ok != test.wantFlush || tail != test.wantTail {
				t.Errorf("Flush() = (%q, %v), want (%q, %v)", tail, ok, test.wantTail, test.wantFlush)
			}
			if buffer.Pending() != 0 {
				t.Errorf("Pending() = %d after Flush", buffer.Pending())
			}
		})
	}
}
