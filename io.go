// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/encoding/charmap"
)

type bytesAndReader struct {
	b []byte
	r *bytes.Reader
}

var bytesAndReaderPool = &sync.Pool{
	New: func() any {
		return &bytesAndReader{
			b: make([]byte, 1024),
			r: bytes.NewReader(nil),
		}
	},
}

func getBytesAndReader(length int) *bytesAndReader {
	b := bytesAndReaderPool.Get().(*bytesAndReader)
	if length > cap(b.b) {
		b.b = make([]byte, length)
	}
	b.b = b.b[:length]
	return b
}

func putBytesAndReader(br *bytesAndReader) {
	br.b = br.b[:0]
	bytesAndReaderPool.Put(br)
}

var errShortRead = errors.New("short read")

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

var noopCloser closerFunc = func() error {
	return nil
}

// Size of the window used when scanning for sentinel byte patterns.
const scanBufferSize = 8192

func newStreamReader(r io.ReadSeeker, size int64, byteOrder binary.ByteOrder) *streamReader {
	return &streamReader{
		r:         r,
		size:      size,
		byteOrder: byteOrder,
	}
}

func newStreamReaderBytes(b []byte, byteOrder binary.ByteOrder) *streamReader {
	return newStreamReader(bytes.NewReader(b), int64(len(b)), byteOrder)
}

func newStreamReaderAt(r io.ReaderAt, size int64, byteOrder binary.ByteOrder) *streamReader {
	return newStreamReader(io.NewSectionReader(r, 0, size), size, byteOrder)
}

// streamReader is a seekable cursor over a byte source of known length
// with endianness-aware fixed-width reads.
// The byte order in byteOrder is the ambient default; the readUint/readInt/readFloat
// family take the byte order as an argument.
// A failed read records the cause in readErr and panics with errStop;
// the decoder entry points recover and return the recorded error.
// Note that this is not thread safe.
type streamReader struct {
	r         io.ReadSeeker
	size      int64
	byteOrder binary.ByteOrder

	// Max number of bytes a single tag payload may declare, 0 means no limit.
	limitTagSize int64

	buf []byte

	readErr error

	// Set from another goroutine to make every further read fail.
	cancelled atomic.Bool
}

func (e *streamReader) otherByteOrder() binary.ByteOrder {
	if e.byteOrder == binary.BigEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (e *streamReader) allocateBuf(length int) {
	if length > cap(e.buf) {
		e.buf = make([]byte, length)
	}
}

func (e *streamReader) length() int64 {
	return e.size
}

func (e *streamReader) pos() int64 {
	n, err := e.r.Seek(0, io.SeekCurrent)
	if err != nil {
		e.stop(err)
	}
	return n
}

func (e *streamReader) remaining() int64 {
	return e.size - e.pos()
}

// seek moves to the absolute position pos, which may be behind the current position.
func (e *streamReader) seek(pos int64) {
	if e.cancelled.Load() {
		e.stop(errCancelled)
	}
	if pos < 0 || pos > e.size {
		e.stop(newTruncatedErrorf("seek to %d outside [0, %d]", pos, e.size))
	}
	if _, err := e.r.Seek(pos, io.SeekStart); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) skip(n int64) {
	e.seek(e.pos() + n)
}

func (e *streamReader) preservePos(f func() error) error {
	pos := e.pos()
	err := f()
	e.seek(pos)
	return err
}

func (e *streamReader) readUint(width int, byteOrder binary.ByteOrder) uint64 {
	switch width {
	case 1:
		e.readNIntoBuf(1)
		return uint64(e.buf[0])
	case 2:
		e.readNIntoBuf(2)
		return uint64(byteOrder.Uint16(e.buf[:2]))
	case 4:
		e.readNIntoBuf(4)
		return uint64(byteOrder.Uint32(e.buf[:4]))
	case 8:
		e.readNIntoBuf(8)
		return byteOrder.Uint64(e.buf[:8])
	default:
		e.stop(fmt.Errorf("%w: %d", ErrInvalidWidth, width))
	}
	return 0
}

// readInt reads a signed value of the given width and sign-extends it.
func (e *streamReader) readInt(width int, byteOrder binary.ByteOrder) int64 {
	v := e.readUint(width, byteOrder)
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func (e *streamReader) readFloat32(byteOrder binary.ByteOrder) float32 {
	return math.Float32frombits(uint32(e.readUint(4, byteOrder)))
}

func (e *streamReader) readFloat64(byteOrder binary.ByteOrder) float64 {
	return math.Float64frombits(e.readUint(8, byteOrder))
}

func (e *streamReader) read1() uint8 {
	return uint8(e.readUint(1, e.byteOrder))
}

func (e *streamReader) read2() uint16 {
	return uint16(e.readUint(2, e.byteOrder))
}

func (e *streamReader) read2s() int16 {
	return int16(e.readInt(2, e.byteOrder))
}

func (e *streamReader) read4() uint32 {
	return uint32(e.readUint(4, e.byteOrder))
}

func (e *streamReader) read4s() int32 {
	return int32(e.readInt(4, e.byteOrder))
}

func (e *streamReader) readF32() float32 {
	return e.readFloat32(e.byteOrder)
}

func (e *streamReader) readF64() float64 {
	return e.readFloat64(e.byteOrder)
}

// readBytes reads n bytes into a new slice.
func (e *streamReader) readBytes(n int) []byte {
	b, err := e.readBytesE(n)
	if err != nil {
		e.stop(err)
	}
	return b
}

func (e *streamReader) readBytesE(n int) ([]byte, error) {
	if err := e.checkAvailable(int64(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(e.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readBytesVolatile reads a slice of bytes from the stream
// which is not guaranteed to be valid after the next read.
func (e *streamReader) readBytesVolatile(n int) []byte {
	e.readNIntoBuf(n)
	return e.buf[:n]
}

// readFixedString reads a fixed-length Latin-1 string field,
// cut at the first NUL and trimmed.
func (e *streamReader) readFixedString(n int) string {
	return latin1String(e.readBytesVolatile(n))
}

// bufferedReader reads a tag payload of length bytes into a pooled buffer
// and returns a cursor over it sharing this cursor's byte order.
// It's important to call Close on the returned Closer when done.
func (e *streamReader) bufferedReader(length int64) (*streamReader, io.Closer, error) {
	if e.limitTagSize > 0 && length > e.limitTagSize {
		return nil, nil, newBadHeaderErrorf("tag length %d exceeds max %d", length, e.limitTagSize)
	}
	if err := e.checkAvailable(length); err != nil {
		return nil, nil, err
	}
	if length == 0 {
		return newStreamReaderBytes(nil, e.byteOrder), noopCloser, nil
	}

	br := getBytesAndReader(int(length))
	if _, err := io.ReadFull(e.r, br.b); err != nil {
		putBytesAndReader(br)
		return nil, nil, err
	}
	br.r.Reset(br.b)

	var closer closerFunc = func() error {
		putBytesAndReader(br)
		return nil
	}

	return newStreamReader(br.r, length, e.byteOrder), closer, nil
}

// scan looks for marker starting at from and returns its absolute offset, or -1.
// The search window is bounded; at most limit bytes are examined when limit > 0.
// The cursor position is undefined afterwards.
func (e *streamReader) scan(marker []byte, from, limit int64) int64 {
	if len(marker) == 0 || from < 0 {
		return -1
	}
	end := e.size
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	window := make([]byte, scanBufferSize+len(marker)-1)
	for start := from; start < end; start += scanBufferSize {
		n := int64(len(window))
		if start+n > end {
			n = end - start
		}
		if n < int64(len(marker)) {
			break
		}
		e.seek(start)
		e.readNIntoBuf(int(n))
		if i := bytes.Index(e.buf[:n], marker); i >= 0 {
			return start + int64(i)
		}
	}
	return -1
}

func (e *streamReader) checkAvailable(n int64) error {
	if e.cancelled.Load() {
		return errCancelled
	}
	if n < 0 {
		return newBadHeaderErrorf("negative length %d", n)
	}
	if rem := e.remaining(); n > rem {
		return newTruncatedErrorf("need %d bytes at offset %d, have %d", n, e.pos(), rem)
	}
	return nil
}

func (e *streamReader) readNIntoBuf(n int) {
	if err := e.readNIntoBufE(n); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) readNIntoBufE(n int) error {
	if err := e.checkAvailable(int64(n)); err != nil {
		return err
	}
	e.allocateBuf(n)
	n2, err := io.ReadFull(e.r, e.buf[:n])
	if err != nil {
		return err
	}
	if n != n2 {
		return errShortRead
	}
	return nil
}

func (e *streamReader) stop(err error) {
	if err != nil {
		e.readErr = err
	}
	panic(errStop)
}

// protect runs f and converts a cursor stop or any other panic into an error.
func (e *streamReader) protect(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errFromRecover(r, e.readErr)
		}
	}()
	return f()
}

// latin1String decodes b up to the first NUL as ISO 8859-1 and trims surrounding space.
func latin1String(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(string(s))
}
