// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Status is the outcome tag carried in an artifact's name.
type Status string

const (
	// StatusFail marks a child that exited non-zero.
	StatusFail Status = "FAIL"

	// StatusAborted marks a run interrupted by a signal delivered to the
	// supervisor.
	StatusAborted Status = "ABORTED"

	// StatusError marks a child that could not be spawned.
	StatusError Status = "ERROR"
)

// TimestampLayout is the time.Format layout of the name's timestamp.
const TimestampLayout = "20060102T150405Z"

// Extension is the suffix of every artifact file.
const Extension = ".log"

// FileName returns the artifact base name for a run. suffix 0 yields
// the canonical name; a positive suffix yields the collision
// alternative "...-STATUS-{suffix}.log".
func FileName(created time.Time, pid int, status Status, suffix int) string {
	base := fmt.Sprintf("%s-pid%d-%s", created.UTC().Format(TimestampLayout), pid, status)
	if suffix > 0 {
		base += "-" + strconv.Itoa(suffix)
	}
	return base + Extension
}

// Name is a parsed artifact file name.
type Name struct {
	Created time.Time
	PID     int
	Status  Status
	Suffix  int
}

var namePattern = regexp.MustCompile(`^(\d{8}T\d{6}Z)-pid(\d+)-(FAIL|ABORTED|ERROR)(?:-(\d+))?\.log$`)

// ParseFileName parses a base name produced by FileName.
func ParseFileName(name string) (Name, error) {
	match := namePattern.FindStringSubmatch(name)
	if match == nil {
		return Name{}, fmt.Errorf("not an artifact name: %q", name)
	}
	created, err := time.Parse(TimestampLayout, match[1])
	if err != nil {
		return Name{}, fmt.Errorf("artifact name %q: %w", name, err)
	}
	pid, err := strconv.Atoi(match[2])
	if err != nil {
		return Name{}, fmt.Errorf("artifact name %q: pid: %w", name, err)
	}
	parsed := Name{Created: created, PID: pid, Status: Status(match[3])}
	if match[4] != "" {
		parsed.Suffix, err = strconv.Atoi(match[4])
		if err != nil {
			return Name{}, fmt.Errorf("artifact name %q: suffix: %w", name, err)
		}
	}
	return parsed, nil
}
