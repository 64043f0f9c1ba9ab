// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/saferun/lib/fsutil"
)

// Result describes the file a Compressor left in the archive.
type Result struct {
	// Path is the final file: the compressed file, or the input path
	// for MethodNone.
	Path string

	// Digest is the hex blake3 digest of the uncompressed content.
	Digest string

	// Compressed reports whether Path differs from the input.
	Compressed bool
}

// Compressor compresses an archived file in place.
//
// On success the input file has been replaced by Result.Path. On error
// the input file is unchanged and no output file remains.
type Compressor interface {
	Compress(path string) (Result, error)
}

// NewCompressor returns the Compressor for method. It never fails for a
// method returned by ParseMethod; tool availability for the external
// methods is checked by Compress.
func NewCompressor(method Method) (Compressor, error) {
	switch method {
	case MethodNone, "":
		return noneCompressor{}, nil
	case MethodGzip:
		return streamCompressor{
			extension: MethodGzip.Extension(),
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(w, gzip.DefaultCompression)
			},
			newReader: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
		}, nil
	case MethodZstd:
		return streamCompressor{
			extension: MethodZstd.Extension(),
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
			},
			newReader: func(r io.Reader) (io.ReadCloser, error) {
				decoder, err := zstd.NewReader(r)
				if err != nil {
					return nil, err
				}
				return decoder.IOReadCloser(), nil
			},
		}, nil
	case MethodLZ4:
		return streamCompressor{
			extension: MethodLZ4.Extension(),
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return lz4.NewWriter(w), nil
			},
			newReader: func(r io.Reader) (io.ReadCloser, error) {
				return io.NopCloser(lz4.NewReader(r)), nil
			},
		}, nil
	case MethodXZ:
		return externalCompressor{tool: "xz", extension: MethodXZ.Extension()}, nil
	case MethodBzip2:
		return externalCompressor{tool: "bzip2", extension: MethodBzip2.Extension()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(path string) (Result, error) {
	digest, err := digestFile(path)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Digest: digest}, nil
}

// streamCompressor compresses with an in-process codec.
type streamCompressor struct {
	extension string
	newWriter func(io.Writer) (io.WriteCloser, error)
	newReader func(io.Reader) (io.ReadCloser, error)
}

func (c streamCompressor) Compress(path string) (Result, error) {
	source, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return Result{}, err
	}

	outputPath := path + c.extension
	output, err := fsutil.CreateExclusive(outputPath, info.Mode().Perm())
	if err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", outputPath, err)
	}

	hasher := blake3.New()
	if err := c.encode(output, io.TeeReader(source, hasher)); err != nil {
		output.Close()
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := output.Close(); err != nil {
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("closing %s: %w", outputPath, err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	if err := c.verify(outputPath, digest); err != nil {
		os.Remove(outputPath)
		return Result{}, err
	}
	return finish(path, outputPath, digest)
}

func (c streamCompressor) encode(output *os.File, input io.Reader) error {
	writer, err := c.newWriter(output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(writer, input); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return output.Sync()
}

func (c streamCompressor) verify(outputPath, digest string) error {
	compressed, err := os.Open(outputPath)
	if err != nil {
		return err
	}
	defer compressed.Close()

	reader, err := c.newReader(compressed)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", outputPath, err)
	}
	defer reader.Close()

	return checkDigest(outputPath, reader, digest)
}

// externalCompressor runs a command-line codec that follows the gzip
// conventions: "tool -c file" compresses to stdout and "tool -dc file"
// decompresses to stdout.
type externalCompressor struct {
	tool      string
	extension string
}

func (c externalCompressor) Compress(path string) (Result, error) {
	toolPath, err := exec.LookPath(c.tool)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, c.tool, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	digest, err := digestFile(path)
	if err != nil {
		return Result{}, err
	}

	outputPath := path + c.extension
	output, err := fsutil.CreateExclusive(outputPath, info.Mode().Perm())
	if err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", outputPath, err)
	}

	var stderr bytes.Buffer
	command := exec.Command(toolPath, "-c", path)
	command.Stdout = output
	command.Stderr = &stderr
	runErr := command.Run()
	if runErr == nil {
		runErr = output.Sync()
	}
	closeErr := output.Close()
	if runErr != nil {
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("%s -c %s: %w%s", c.tool, path, runErr, toolOutput(&stderr))
	}
	if closeErr != nil {
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("closing %s: %w", outputPath, closeErr)
	}

	if err := c.verify(toolPath, outputPath, digest); err != nil {
		os.Remove(outputPath)
		return Result{}, err
	}
	return finish(path, outputPath, digest)
}

func (c externalCompressor) verify(toolPath, outputPath, digest string) error {
	var stderr bytes.Buffer
	command := exec.Command(toolPath, "-dc", outputPath)
	command.Stderr = &stderr
	stdout, err := command.StdoutPipe()
	if err != nil {
		return err
	}
	if err := command.Start(); err != nil {
		return fmt.Errorf("%s -dc %s: %w", c.tool, outputPath, err)
	}
	checkErr := checkDigest(outputPath, stdout, digest)
	if checkErr != nil {
		// Drain so the tool is not blocked on a full pipe.
		io.Copy(io.Discard, stdout)
	}
	if err := command.Wait(); err != nil {
		return fmt.Errorf("%s -dc %s: %w%s", c.tool, outputPath, err, toolOutput(&stderr))
	}
	return checkErr
}

// finish removes the original once its compressed replacement has been
// verified.
func finish(path, outputPath, digest string) (Result, error) {
	if err := os.Remove(path); err != nil {
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("removing uncompressed %s: %w", path, err)
	}
	return Result{Path: outputPath, Digest: digest, Compressed: true}, nil
}

func digestFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func checkDigest(outputPath string, decompressed io.Reader, want string) error {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, decompressed); err != nil {
		return fmt.Errorf("verifying %s: %w", outputPath, err)
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
		return fmt.Errorf("verifying %s: digest %s does not match original %s", outputPath, got, want)
	}
	return nil
}

func toolOutput(stderr *bytes.Buffer) string {
	message := strings.TrimSpace(stderr.String())
	if message == "" {
		return ""
	}
	return ": " + message
}
