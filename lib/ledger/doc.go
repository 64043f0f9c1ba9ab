// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger records the observed order of a supervised command's
// output.
//
// A [Ledger] is an append-only sequence of [Event] values. Every event
// receives the next sequence number, starting at 1, so the sequence
// numbers of a ledger always form a contiguous ascending run with no
// duplicates. The order is the order in which the supervisor observed
// each line, which is not necessarily the order in which the child
// wrote it: stdout and stderr are independent pipes, and the kernel
// makes no promise about which becomes readable first.
//
// [LineBuffer] turns arbitrary read chunks into complete lines,
// retaining a trailing partial line until more bytes (or end of
// stream) arrive.
//
// [WriteEvents] and [WriteMerged] render the same events in the two
// textual forms used by forensic artifacts. They are views over the
// ledger, not separate records.
package ledger
