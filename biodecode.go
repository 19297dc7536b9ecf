// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package biodecode reads proprietary microscopy image formats.
//
// Each supported format is decoded into an ordered metadata store, an OME-like
// attribute tree and a list of pixel planes ("blocks") with typed per-channel samples.
// Use Open to get a Reader for a file.
package biodecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// FormatAuto signals that the format should be detected from the file name and header bytes.
	FormatAuto Format = iota
	// BioRad is the Bio-Rad PIC format.
	BioRad
	// Deltavision is the Applied Precision Deltavision format.
	Deltavision
	// Gatan is the Gatan Digital Micrograph 3 format.
	Gatan
	// ICS is the Image Cytometry Standard format (.ics header with .ids data).
	ICS
	// IPLab is the Scanalytics IPLab format.
	IPLab
	// IPW is the Image-Pro workspace format.
	IPW
	// LSM is the Zeiss LSM format.
	LSM
	// Leica is the Leica LEI format (.lei header with per-image TIFF files).
	Leica
	// Openlab is the Improvision Openlab LIFF format.
	Openlab
	// PerkinElmer is the PerkinElmer UltraView format (header files with TIFF planes).
	PerkinElmer
	// ZVI is the Zeiss Vision Image format.
	ZVI
)

// Format is a microscopy file format.
//
//go:generate stringer -type=Format
type Format int

// Default limits, see Options.
const (
	defaultLimitNumTags    = 100000
	defaultLimitTagSize    = 64 << 20
	defaultLimitPlaneBytes = 1 << 30
)

// HandleTagFunc is the function that is called for each metadata entry.
type HandleTagFunc func(info TagInfo) error

// TagInfo contains information about a metadata entry.
type TagInfo struct {
	// The format the entry was read from.
	Format Format
	// The metadata key, e.g. "nx" or "Title 1".
	Tag string
	// The decoded value.
	Value any
}

// Options contains the options for Open and ReadFile.
type Options struct {
	// The file format. If not set, the format is detected.
	Format Format

	// If set, HandleTag is only called for entries where this returns true.
	// The entry is stored in the Metadata either way.
	ShouldHandleTag func(tag TagInfo) bool

	// The function to call for each metadata entry as it is decoded.
	// A non-nil error stops the decode and is returned.
	HandleTag HandleTagFunc

	// Warnf will be called for each warning, e.g. a malformed note or
	// inconsistent header fields the decoder worked around.
	Warnf func(string, ...any)

	// Timeout is the maximum time to spend on parsing the header and tags.
	// If set to 0, the parse will not time out.
	Timeout time.Duration

	// LimitNumTags is the maximum number of metadata entries to store.
	// Default value is 100000.
	LimitNumTags int

	// LimitTagSize is the maximum size in bytes a single tag, stream or
	// companion header file may declare.
	// Default value is 64 MiB.
	LimitTagSize int64

	// LimitPlaneBytes is the maximum size in bytes of one undecoded plane.
	// Default value is 1 GiB.
	LimitPlaneBytes int64

	// Where companion files are looked up. Defaults to the OS file system.
	companions companionFS
}

func (o *Options) init() {
	if o.ShouldHandleTag == nil {
		o.ShouldHandleTag = func(TagInfo) bool { return true }
	}
	if o.HandleTag == nil {
		o.HandleTag = func(TagInfo) error { return nil }
	}
	if o.Warnf == nil {
		o.Warnf = func(string, ...any) {}
	}
	if o.LimitNumTags <= 0 {
		o.LimitNumTags = defaultLimitNumTags
	}
	if o.LimitTagSize <= 0 {
		o.LimitTagSize = defaultLimitTagSize
	}
	if o.LimitPlaneBytes <= 0 {
		o.LimitPlaneBytes = defaultLimitPlaneBytes
	}
	if o.companions == nil {
		o.companions = osCompanionFS{}
	}
}

// formatDecoder is implemented by every format.
// init parses the header and all tags; it is called exactly once before any other method.
type formatDecoder interface {
	init() error
	blockCount() int
	decodeBlock(i int) (*Plane, error)
	close() error
}

// baseDecoder holds the state shared by all format decoders.
type baseDecoder struct {
	*streamReader
	format Format
	path   string
	opts   Options
	meta   *Metadata

	// The main file, for decoders that hand out sections of it.
	ra io.ReaderAt

	// Companion files opened by the decoder, closed in close.
	closers []io.Closer

	// Result of a decode abandoned by runDecode.
	pending chan error
}

func newBaseDecoder(f Format, path string, r io.ReaderAt, size int64, opts Options) *baseDecoder {
	sr := newStreamReaderAt(r, size, binary.BigEndian)
	sr.limitTagSize = opts.LimitTagSize
	return &baseDecoder{
		streamReader: sr,
		format:       f,
		path:         path,
		opts:         opts,
		meta:         NewMetadata(),
		ra:           r,
	}
}

// put stores a metadata entry and reports it to HandleTag.
// It must be called from within protect.
func (d *baseDecoder) put(key string, value any) {
	if d.cancelled.Load() {
		d.stop(errCancelled)
	}
	if _, found := d.meta.Get(key); !found && d.meta.Len() >= d.opts.LimitNumTags {
		d.stop(newBadHeaderErrorf("too many tags, max is %d", d.opts.LimitNumTags))
	}
	d.meta.Put(key, value)
	ti := TagInfo{Format: d.format, Tag: key, Value: value}
	if !d.opts.ShouldHandleTag(ti) {
		return
	}
	if err := d.opts.HandleTag(ti); err != nil {
		d.stop(err)
	}
}

func (d *baseDecoder) attr(entity, field string, value any) {
	d.meta.SetAttribute(entity, field, fmt.Sprint(value))
}

func (d *baseDecoder) warnf(format string, args ...any) {
	d.opts.Warnf(format, args...)
}

func (d *baseDecoder) addCloser(c io.Closer) {
	d.closers = append(d.closers, c)
}

// readRecord runs f, which reads a record from the sub-cursor r.
// A failed read stops the decode with the cause.
func (d *baseDecoder) readRecord(r *streamReader, f func()) {
	if err := r.protect(func() error { f(); return nil }); err != nil {
		if d.readErr != nil {
			d.stop(d.readErr)
		}
		d.stop(err)
	}
}

// tolerateRecord is like readRecord, but a failed read of r is reported as a warning.
// Entries stored before the failure are kept.
func (d *baseDecoder) tolerateRecord(what string, r *streamReader, f func()) {
	if err := r.protect(func() error { f(); return nil }); err != nil {
		if d.readErr != nil {
			// Stopped by d, e.g. a HandleTag error.
			d.stop(d.readErr)
		}
		d.warnf("%s: %s: %v", strings.ToLower(d.format.String()), what, err)
	}
}

// readPlaneAt reads the plane at offset in the main file.
func (d *baseDecoder) readPlaneAt(offset int64, s planeSpec) (*Plane, error) {
	return d.readPlane(offset, s, d.opts.LimitPlaneBytes)
}

func (d *baseDecoder) close() error {
	var firstErr error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.closers = nil
	return firstErr
}

func newFormatDecoder(base *baseDecoder) (formatDecoder, error) {
	switch base.format {
	case BioRad:
		base.byteOrder = binary.LittleEndian
		return &imageDecoderBioRad{baseDecoder: base}, nil
	case Deltavision:
		return &imageDecoderDeltavision{baseDecoder: base}, nil
	case Gatan:
		return &imageDecoderGatan{baseDecoder: base}, nil
	case ICS:
		return &imageDecoderICS{baseDecoder: base}, nil
	case IPLab:
		return &imageDecoderIPLab{baseDecoder: base}, nil
	case IPW:
		base.byteOrder = binary.LittleEndian
		return &imageDecoderIPW{baseDecoder: base}, nil
	case LSM:
		base.byteOrder = binary.LittleEndian
		return &imageDecoderLSM{baseDecoder: base}, nil
	case Leica:
		return &imageDecoderLeica{baseDecoder: base}, nil
	case Openlab:
		return &imageDecoderOpenlab{baseDecoder: base}, nil
	case PerkinElmer:
		return &imageDecoderPerkinElmer{baseDecoder: base}, nil
	case ZVI:
		base.byteOrder = binary.LittleEndian
		return &imageDecoderZVI{baseDecoder: base}, nil
	default:
		return nil, fmt.Errorf("%w: no decoder for format %s", ErrUnsupportedOperation, base.format)
	}
}

// runDecode runs f, converting cursor stops and other panics into errors.
// If timeout > 0, f runs in its own goroutine. When the timeout expires the
// cursor is cancelled and the goroutine is left for waitPending to collect.
func runDecode(d *baseDecoder, timeout time.Duration, f func() error) error {
	if timeout <= 0 {
		return d.protect(f)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- d.protect(f)
	}()

	select {
	case <-time.After(timeout):
		d.cancelled.Store(true)
		d.pending = errc
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case err := <-errc:
		return err
	}
}

// waitPending blocks until a decode abandoned by runDecode has returned.
func (d *baseDecoder) waitPending() {
	if d.pending != nil {
		<-d.pending
		d.pending = nil
	}
}
