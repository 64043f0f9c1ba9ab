// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/saferun/lib/ledger"
)

// pollInterval bounds how long the loop blocks without input, which in
// turn bounds how quickly it notices the child's exit.
const pollInterval = 100 * time.Millisecond

// readBufferSize is the largest chunk taken from a pipe per read.
const readBufferSize = 64 * 1024

// stream is the read end of one child output pipe together with
// everything a chunk read from it feeds.
type stream struct {
	file    *os.File
	fd      int
	source  ledger.Source
	console io.Writer
	capture bytes.Buffer
	lines   ledger.LineBuffer
	atEnd   bool
}

func newStream(file *os.File, source ledger.Source, console io.Writer) *stream {
	return &stream{
		file:    file,
		fd:      int(file.Fd()),
		source:  source,
		console: console,
	}
}

// readAvailable performs one read. It returns the bytes read, or marks
// the stream at end when the writers are all gone or the pipe failed.
func (s *stream) readAvailable(buffer []byte) []byte {
	for {
		count, err := unix.Read(s.fd, buffer)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil || count <= 0 {
			s.atEnd = true
			return nil
		}
		return buffer[:count]
	}
}

// multiplexer drives the read loop over the two output streams.
type multiplexer struct {
	streams       []*stream
	ledger        *ledger.Ledger
	tail          *tailRing
	logger        *slog.Logger
	consoleFailed map[ledger.Source]bool
}

// handle delivers one chunk: console first so pass-through is not
// delayed by bookkeeping, then the capture buffer, then the ledger.
func (m *multiplexer) handle(s *stream, chunk []byte) {
	if _, err := s.console.Write(chunk); err != nil && !m.consoleFailed[s.source] {
		m.consoleFailed[s.source] = true
		m.logger.Warn("console write failed, still capturing", "stream", s.source.String(), "error", err)
	}
	s.capture.Write(chunk)
	for _, line := range s.lines.Write(chunk) {
		m.ledger.Append(s.source, line)
		m.tail.add(line)
	}
}

// finish flushes the partial line of s, if any, and closes it.
func (m *multiplexer) finish(s *stream) {
	s.atEnd = true
	if line, ok := s.lines.Flush(); ok {
		m.ledger.Append(s.source, line)
		m.tail.add(line)
	}
}

// open returns the streams not yet at end.
func (m *multiplexer) open() []*stream {
	var open []*stream
	for _, s := range m.streams {
		if !s.atEnd {
			open = append(open, s)
		}
	}
	return open
}

// run reads until both streams reach end of file. Once childExited
// reports true, the loop gives up after drainTimeout without any input;
// this only happens when a descendant of the child still holds a pipe
// open. A zero drainTimeout waits for end of file indefinitely.
func (m *multiplexer) run(childExited func() bool, drainTimeout time.Duration) {
	buffer := make([]byte, readBufferSize)
	var idle time.Duration

	for {
		open := m.open()
		if len(open) == 0 {
			return
		}

		pollDescriptors := make([]unix.PollFd, len(open))
		for i, s := range open {
			pollDescriptors[i] = unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN}
		}
		count, err := unix.Poll(pollDescriptors, int(pollInterval/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			m.logger.Error("polling child output failed", "error", err)
			for _, s := range open {
				m.finish(s)
			}
			return
		}

		if count == 0 {
			if childExited() && drainTimeout > 0 {
				idle += pollInterval
				if idle >= drainTimeout {
					m.logger.Warn("child exited but its output is still held open, stopping capture",
						"drain_timeout", drainTimeout)
					for _, s := range open {
						m.finish(s)
					}
					return
				}
			}
			continue
		}

		idle = 0
		for i, s := range open {
			if pollDescriptors[i].Revents == 0 {
				continue
			}
			chunk := s.readAvailable(buffer)
			if len(chunk) > 0 {
				m.handle(s, chunk)
			}
			if s.atEnd {
				m.finish(s)
			}
		}
	}
}
