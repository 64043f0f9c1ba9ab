// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive moves forensic artifacts from the capture directory
// into long-term storage.
//
// An [Archiver] relocates each source file into its archive directory
// with [fsutil.RenameNoReplace], so an archived file is never replaced:
// when the base name is taken, [AlternateName] inserts "-N" before the
// extension (x.log, x-1.log, x-2.log, ...) and the move retries under the
// next candidate. A candidate also counts as taken when a compressed
// sibling of it exists, so a later compression can never collide.
//
// After the move a [Compressor] runs on the archived copy. The
// in-process methods (gzip, zstd, lz4) and the external ones (xz,
// bzip2) all follow the same protocol: write the compressed file
// exclusively next to the original, decompress it again and compare its
// blake3 digest to the original's, and only then remove the original.
// Any failure removes the partial output and leaves the uncompressed
// file in the archive.
//
// Two batch modes exist. [Archiver.ArchiveFiles] processes an explicit
// list and stops at the first failure. [Archiver.ArchiveAll] snapshots
// the regular files of the source directory, processes every one of
// them, and joins the failures.
package archive
