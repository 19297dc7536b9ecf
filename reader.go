// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// Reader gives access to the blocks and metadata of one file.
// The header and tags are parsed lazily, once, on first use.
// A Reader is not safe for concurrent use.
type Reader struct {
	path   string
	format Format
	opts   Options

	ra   *mmap.ReaderAt
	base *baseDecoder
	dec  formatDecoder

	initDone bool
	initErr  error
	closed   bool
}

// Open opens the file at path.
// If opts.Format is FormatAuto, the format is detected from the file name and its first HeaderSize bytes.
func Open(path string, opts Options) (*Reader, error) {
	opts.init()

	ra, err := mmap.Open(path)
	if err != nil {
		return nil, &DecodeError{Format: opts.Format, Path: path, Op: "open", Err: err}
	}

	format := opts.Format
	if format == FormatAuto {
		head := make([]byte, min(HeaderSize, ra.Len()))
		if _, err := ra.ReadAt(head, 0); err != nil && err != io.EOF {
			ra.Close()
			return nil, &DecodeError{Format: format, Path: path, Op: "open", Err: err}
		}
		format = Detect(path, head)
		if format == FormatAuto {
			ra.Close()
			return nil, &DecodeError{Format: format, Path: path, Op: "open", Err: fmt.Errorf("%w: unknown format", ErrFormatMismatch)}
		}
	}

	base := newBaseDecoder(format, path, ra, int64(ra.Len()), opts)
	dec, err := newFormatDecoder(base)
	if err != nil {
		ra.Close()
		return nil, &DecodeError{Format: format, Path: path, Op: "open", Err: err}
	}

	return &Reader{
		path:   path,
		format: format,
		opts:   opts,
		ra:     ra,
		base:   base,
		dec:    dec,
	}, nil
}

// ReadFile decodes the metadata and all blocks of the file at path.
func ReadFile(path string, opts Options) (*Metadata, []*Plane, error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()
	planes, err := r.OpenAll(context.Background())
	if err != nil {
		return nil, nil, err
	}
	meta, err := r.Metadata()
	if err != nil {
		return nil, nil, err
	}
	return meta, planes, nil
}

// Format returns the format of the file.
func (r *Reader) Format() Format {
	return r.format
}

// Path returns the path of the file.
func (r *Reader) Path() string {
	return r.path
}

// BlockCount returns the number of planes in the file.
func (r *Reader) BlockCount() (int, error) {
	if err := r.init(); err != nil {
		return 0, err
	}
	n := r.dec.blockCount()
	if n < 0 {
		return 0, r.wrapErr("block count", newBadHeaderErrorf("negative block count %d", n))
	}
	return n, nil
}

// OpenBlock decodes plane i, where 0 <= i < BlockCount.
func (r *Reader) OpenBlock(i int) (*Plane, error) {
	n, err := r.BlockCount()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, r.wrapErr("open block", fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBlockIndex, i, n))
	}
	var p *Plane
	err = r.base.protect(func() error {
		var err error
		p, err = r.dec.decodeBlock(i)
		return err
	})
	if err != nil {
		return nil, r.wrapErr(fmt.Sprintf("open block %d", i), err)
	}
	return p, nil
}

// OpenAll decodes all planes in block order.
// The context is checked between blocks.
func (r *Reader) OpenAll(ctx context.Context) ([]*Plane, error) {
	n, err := r.BlockCount()
	if err != nil {
		return nil, err
	}
	planes := make([]*Plane, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := r.OpenBlock(i)
		if err != nil {
			return nil, err
		}
		planes = append(planes, p)
	}
	return planes, nil
}

// Metadata returns the metadata of the file.
// The returned Metadata must not be modified.
func (r *Reader) Metadata() (*Metadata, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	return r.base.meta, nil
}

// Close releases the file and any companion files.
// It is safe to call Close more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	// The file must stay mapped until a timed out parse has let go of it.
	r.base.waitPending()
	err := r.dec.close()
	if err2 := r.ra.Close(); err == nil {
		err = err2
	}
	return err
}

func (r *Reader) init() error {
	if r.closed {
		return r.wrapErr("read", os.ErrClosed)
	}
	if r.initDone {
		return r.initErr
	}
	r.initDone = true
	if err := runDecode(r.base, r.opts.Timeout, r.dec.init); err != nil {
		r.initErr = r.wrapErr("parse header", err)
	}
	return r.initErr
}

func (r *Reader) wrapErr(op string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Format: r.format, Path: r.path, Op: op, Err: err}
}
