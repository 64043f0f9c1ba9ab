// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Method names a compression method.
type Method string

const (
	MethodNone  Method = "none"
	MethodGzip  Method = "gzip"
	MethodZstd  Method = "zstd"
	MethodLZ4   Method = "lz4"
	MethodXZ    Method = "xz"
	MethodBzip2 Method = "bzip2"
)

var (
	// ErrUnknownMethod is returned by ParseMethod for an unrecognized
	// method name.
	ErrUnknownMethod = errors.New("unknown compression method")

	// ErrToolUnavailable is returned by an external compressor whose
	// tool is not on PATH.
	ErrToolUnavailable = errors.New("compression tool unavailable")

	// ErrSourceMissing is returned when a file to archive does not
	// exist.
	ErrSourceMissing = errors.New("source file missing")
)

// methods lists every method with the extension its output carries.
var methods = []struct {
	method    Method
	extension string
}{
	{MethodNone, ""},
	{MethodGzip, ".gz"},
	{MethodZstd, ".zst"},
	{MethodLZ4, ".lz4"},
	{MethodXZ, ".xz"},
	{MethodBzip2, ".bz2"},
}

// ParseMethod parses a method name, case-insensitively. The empty
// string is MethodNone.
func ParseMethod(name string) (Method, error) {
	normalized := Method(strings.ToLower(strings.TrimSpace(name)))
	if normalized == "" {
		return MethodNone, nil
	}
	for _, entry := range methods {
		if entry.method == normalized {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownMethod, name, knownMethods())
}

// Extension returns the suffix appended to a file compressed with m.
func (m Method) Extension() string {
	for _, entry := range methods {
		if entry.method == m {
			return entry.extension
		}
	}
	return ""
}

func knownMethods() string {
	names := make([]string, len(methods))
	for i, entry := range methods {
		names[i] = string(entry.method)
	}
	return strings.Join(names, ", ")
}

// compressedExtensions returns every non-empty method extension.
func compressedExtensions() []string {
	var extensions []string
	for _, entry := range methods {
		if entry.extension != "" {
			extensions = append(extensions, entry.extension)
		}
	}
	return extensions
}
