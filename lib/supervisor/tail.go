// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// maxTailWidth caps each printed tail line, in terminal cells. The
// artifact always keeps the full line.
const maxTailWidth = 240

// tailRing keeps the most recent lines across both streams. A zero
// capacity ring records nothing.
type tailRing struct {
	lines []string
	next  int
	full  bool
}

func newTailRing(capacity int) *tailRing {
	if capacity <= 0 {
		return &tailRing{}
	}
	return &tailRing{lines: make([]string, capacity)}
}

func (r *tailRing) add(line string) {
	if len(r.lines) == 0 {
		return
	}
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns the retained lines, oldest first.
func (r *tailRing) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// printTail writes the retained lines to w under a header. Colour is
// applied only when w is a terminal.
func printTail(w io.Writer, lines []string) {
	if len(lines) == 0 {
		return
	}
	renderer := lipgloss.NewRenderer(w)
	header := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	var builder strings.Builder
	builder.WriteString(header.Render(fmt.Sprintf("--- last %d lines of output ---", len(lines))))
	builder.WriteByte('\n')
	for _, line := range lines {
		builder.WriteString(ansi.Truncate(line, maxTailWidth, "..."))
		builder.WriteByte('\n')
	}
	io.WriteString(w, builder.String())
}
