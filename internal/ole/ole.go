// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package ole enumerates the streams of an OLE2 compound document.
package ole

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/richardlehane/mscfb"
)

// Signature is the first 8 bytes of every compound document.
var Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ErrStreamTooLarge is returned by Stream.Bytes when the stream exceeds the given limit.
var ErrStreamTooLarge = errors.New("ole: stream too large")

// IsCompoundDocument reports whether b starts with the compound document signature.
func IsCompoundDocument(b []byte) bool {
	return bytes.HasPrefix(b, Signature)
}

// Stream is a stream (document entry) in a compound document.
type Stream struct {
	// Name of the stream, e.g. "ImageTIFF".
	Name string
	// Names of the enclosing storages, outermost first. Empty for streams in the root storage.
	Path []string
	// Size in bytes.
	Size int64

	f *mscfb.File
}

// Parent returns the name of the storage the stream lives in, or "" for the root storage.
func (s *Stream) Parent() string {
	if len(s.Path) == 0 {
		return ""
	}
	return s.Path[len(s.Path)-1]
}

// Bytes reads the stream. It fails with ErrStreamTooLarge if Size exceeds limit > 0.
func (s *Stream) Bytes(limit int64) ([]byte, error) {
	if limit > 0 && s.Size > limit {
		return nil, fmt.Errorf("%w: %q is %d bytes, max %d", ErrStreamTooLarge, s.Name, s.Size, limit)
	}
	b := make([]byte, s.Size)
	if _, err := io.ReadFull(s.f, b); err != nil {
		return nil, fmt.Errorf("ole: read %q: %w", s.Name, err)
	}
	return b, nil
}

// Walk calls fn for every non-empty stream in r in directory order.
// Walk stops at the first error returned from fn and returns it.
func Walk(r io.ReaderAt, fn func(s *Stream) error) error {
	doc, err := mscfb.New(r)
	if err != nil {
		return fmt.Errorf("ole: %w", err)
	}
	for {
		f, err := doc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ole: %w", err)
		}
		if f.Size <= 0 || (len(f.Path) == 0 && f.Name == "Root Entry") {
			continue
		}
		if err := fn(&Stream{Name: f.Name, Path: f.Path, Size: f.Size, f: f}); err != nil {
			return err
		}
	}
}
