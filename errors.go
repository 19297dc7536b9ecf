// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFormatMismatch is returned when a magic-byte or suffix check fails.
	// The caller should try the next candidate decoder.
	ErrFormatMismatch = errors.New("biodecode: format mismatch")

	// ErrBadHeader is returned when the magic matched but a required header
	// invariant did not hold (wrong id field, disallowed version, inconsistent lengths).
	ErrBadHeader = errors.New("biodecode: bad header")

	// ErrTruncatedStream is returned when fewer bytes are available than a declared length requires.
	ErrTruncatedStream = errors.New("biodecode: truncated stream")

	// ErrInvalidWidth is returned for fixed-width reads of a width other than 1, 2, 4 or 8 bytes.
	ErrInvalidWidth = errors.New("biodecode: invalid read width")

	// ErrUnsupportedSampleWidth is returned for sample widths the decoders refuse, e.g. 64-bit samples.
	ErrUnsupportedSampleWidth = errors.New("biodecode: unsupported sample width")

	// ErrUnsupportedOperation is returned by operations a format does not implement, e.g. Save.
	ErrUnsupportedOperation = errors.New("biodecode: unsupported operation")

	// ErrMissingCompanionFile is returned when a required sibling file cannot be located.
	ErrMissingCompanionFile = errors.New("biodecode: missing companion file")

	// ErrInvalidBlockIndex is returned when a block index is outside [0, BlockCount).
	ErrInvalidBlockIndex = errors.New("biodecode: invalid block index")

	// ErrTimeout is returned when parsing the header and tags takes longer than Options.Timeout.
	ErrTimeout = errors.New("biodecode: timed out")

	// Returned by the cursor once an abandoned decode has been cancelled.
	errCancelled = errors.New("decode cancelled")

	// Internal error to signal that we should stop any further processing.
	errStop = errors.New("stop")
)

// DecodeError is the error type returned from this package.
// It identifies the decoder and the file and wraps one of the sentinel errors above.
type DecodeError struct {
	Format Format
	Path   string
	Op     string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s %q: %v", e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Format, e.Op, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsFormatMismatch reports whether err signals a failed format probe.
func IsFormatMismatch(err error) bool {
	return errors.Is(err, ErrFormatMismatch)
}

// IsBadHeader reports whether err signals a broken header invariant.
func IsBadHeader(err error) bool {
	return errors.Is(err, ErrBadHeader)
}

// IsTruncated reports whether err signals a truncated stream.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncatedStream)
}

// IsUnsupported reports whether err signals an unsupported sample width or operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedSampleWidth) || errors.Is(err, ErrUnsupportedOperation)
}

// IsInvalidFormat reports whether err was caused by malformed input,
// as opposed to I/O failures or unsupported features.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrFormatMismatch) || errors.Is(err, ErrBadHeader) ||
		errors.Is(err, ErrTruncatedStream) || errors.Is(err, ErrInvalidWidth)
}

func newBadHeaderErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadHeader, fmt.Sprintf(format, args...))
}

func newTruncatedErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTruncatedStream, fmt.Sprintf(format, args...))
}

func newUnsupportedSampleWidthErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedSampleWidth, fmt.Sprintf(format, args...))
}

func isTruncatedErrorCandidate(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF || err == errShortRead
}

// errFromRecover converts a recovered panic value into an error.
// readErr is the error recorded by the cursor before it stopped, if any.
func errFromRecover(r any, readErr error) error {
	if r == nil {
		return nil
	}
	if r == errStop {
		if readErr == nil {
			return ErrTruncatedStream
		}
		if isTruncatedErrorCandidate(readErr) {
			return fmt.Errorf("%w: %v", ErrTruncatedStream, readErr)
		}
		return readErr
	}
	if err, ok := r.(error); ok {
		if isTruncatedErrorCandidate(err) {
			return fmt.Errorf("%w: %v", ErrTruncatedStream, err)
		}
		return err
	}
	return fmt.Errorf("unknown panic: %v", r)
}
