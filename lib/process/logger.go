// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// DebugEnv enables debug-level logging when set to any non-empty value.
const DebugEnv = "SAFE_DEBUG"

// NewLogger returns the structured logger both binaries write their own
// status to. When w is a terminal it uses slog.TextHandler for people;
// when it is a pipe or file (CI, scripts) it uses slog.JSONHandler so
// the records can be parsed alongside the child's output.
func NewLogger(w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv(DebugEnv) != "" {
		options.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
