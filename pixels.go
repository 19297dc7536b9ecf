// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff"
	"golang.org/x/image/tiff/lzw"
)

// layout describes how the samples of a multi-channel plane are arranged in the byte run.
type layout int

const (
	// Each channel occupies width*height consecutive samples.
	layoutPlanar layout = iota
	// The samples of one pixel are stored consecutively.
	layoutInterleaved
	// Exactly three channels: the first third of the run is channel 0,
	// the second third channel 1 and the last third channel 2.
	layoutThirds
)

// TIFF compression schemes understood by readStrips.
const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionPackBits = 32773
	compressionDeflate2 = 32946
)

// planeSpec describes the byte run of one plane.
type planeSpec struct {
	width          int
	height         int
	channels       int
	bytesPerSample int
	byteOrder      binary.ByteOrder
	layout         layout
	signed         bool
	float          bool
}

func (s planeSpec) pixelType() (PixelType, error) {
	switch s.bytesPerSample {
	case 1:
		return Uint8, nil
	case 2:
		if s.signed {
			return Int16, nil
		}
		return Uint16, nil
	case 4:
		if s.float {
			return Float32, nil
		}
		if s.signed {
			return Int32, nil
		}
		return Uint32, nil
	default:
		return PixelTypeUnknown, newUnsupportedSampleWidthErrorf("%d bytes per sample", s.bytesPerSample)
	}
}

// size validates the geometry and returns the number of bytes the plane occupies.
// limit caps the size when > 0.
func (s planeSpec) size(limit int64) (int64, error) {
	if _, err := s.pixelType(); err != nil {
		return 0, err
	}
	if s.width <= 0 || s.height <= 0 || s.channels <= 0 {
		return 0, newBadHeaderErrorf("invalid plane geometry %dx%d with %d channels", s.width, s.height, s.channels)
	}
	if s.layout == layoutThirds && s.channels != 3 {
		return 0, newBadHeaderErrorf("per-third layout needs 3 channels, got %d", s.channels)
	}
	n := int64(s.width)
	for _, f := range []int{s.height, s.channels, s.bytesPerSample} {
		if n > math.MaxInt64/int64(f) {
			return 0, newBadHeaderErrorf("plane size overflows")
		}
		n *= int64(f)
	}
	if limit > 0 && n > limit {
		return 0, newBadHeaderErrorf("plane size %d exceeds max %d", n, limit)
	}
	return n, nil
}

// blockTotal multiplies the header counts into a block count. Every block
// needs at least one byte, so a total above dataBytes is a bad header.
func blockTotal(dataBytes int64, counts ...int) (int, error) {
	n := int64(1)
	for _, c := range counts {
		if c < 0 {
			return 0, newBadHeaderErrorf("negative block count %d", c)
		}
		if c != 0 && n > dataBytes/int64(c) {
			return 0, newBadHeaderErrorf("block counts %v need more than %d bytes of data", counts, dataBytes)
		}
		n *= int64(c)
	}
	return int(n), nil
}

// decodePlane converts the raw byte run b into a Plane.
func decodePlane(b []byte, s planeSpec) (*Plane, error) {
	pixelType, err := s.pixelType()
	if err != nil {
		return nil, err
	}
	size, err := s.size(0)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) < size {
		return nil, newTruncatedErrorf("plane needs %d bytes, have %d", size, len(b))
	}
	order := s.byteOrder
	if order == nil {
		order = binary.BigEndian
	}

	numPixels := s.width * s.height
	p := newPlane(s.width, s.height, s.channels, pixelType)
	bps := s.bytesPerSample

	for c := 0; c < s.channels; c++ {
		samples := p.Channels[c]
		for i := range numPixels {
			var off int
			if s.layout == layoutInterleaved {
				off = (i*s.channels + c) * bps
			} else {
				off = (c*numPixels + i) * bps
			}
			samples[i] = sampleAt(b[off:off+bps], pixelType, order)
		}
	}

	return p, nil
}

func sampleAt(b []byte, pixelType PixelType, order binary.ByteOrder) float64 {
	switch pixelType {
	case Uint8:
		return float64(b[0])
	case Int16:
		return float64(int16(order.Uint16(b)))
	case Uint16:
		return float64(order.Uint16(b))
	case Int32:
		return float64(int32(order.Uint32(b)))
	case Uint32:
		return float64(order.Uint32(b))
	case Float32:
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return 0
}

// readPlane reads and decodes the plane starting at offset.
func (e *streamReader) readPlane(offset int64, s planeSpec, limit int64) (*Plane, error) {
	size, err := s.size(limit)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > e.length() || size > e.length()-offset {
		return nil, newTruncatedErrorf("plane at offset %d needs %d bytes, file has %d", offset, size, e.length())
	}
	var b []byte
	if err := e.protect(func() error {
		e.seek(offset)
		b = e.readBytes(int(size))
		return nil
	}); err != nil {
		return nil, err
	}
	return decodePlane(b, s)
}

// undoHorizontalDifferencing reconstructs absolute sample values from
// per-scanline deltas (TIFF predictor 2). Deltas of 8-bit samples are
// accumulated modulo 256 per channel.
func undoHorizontalDifferencing(b []byte, s planeSpec) error {
	size, err := s.size(0)
	if err != nil {
		return err
	}
	if int64(len(b)) < size {
		return newTruncatedErrorf("plane needs %d bytes, have %d", size, len(b))
	}
	order := s.byteOrder
	if order == nil {
		order = binary.BigEndian
	}
	bps := s.bytesPerSample

	// Byte offset of sample (c, x, y).
	at := func(c, x, y int) int {
		if s.layout == layoutInterleaved {
			return ((y*s.width+x)*s.channels + c) * bps
		}
		return ((c*s.height+y)*s.width + x) * bps
	}

	for c := 0; c < s.channels; c++ {
		for y := 0; y < s.height; y++ {
			for x := 1; x < s.width; x++ {
				prev, cur := at(c, x-1, y), at(c, x, y)
				switch bps {
				case 1:
					b[cur] += b[prev]
				case 2:
					order.PutUint16(b[cur:], order.Uint16(b[cur:])+order.Uint16(b[prev:]))
				case 4:
					order.PutUint32(b[cur:], order.Uint32(b[cur:])+order.Uint32(b[prev:]))
				}
			}
		}
	}
	return nil
}

// readStrips concatenates the strips given by offsets and counts, in strip order,
// into one buffer, decompressing each strip when needed.
// limit caps the total decompressed size when > 0.
func readStrips(r io.ReaderAt, size int64, offsets, counts []int64, compression int, limit int64) ([]byte, error) {
	if len(offsets) != len(counts) {
		return nil, newBadHeaderErrorf("%d strip offsets but %d byte counts", len(offsets), len(counts))
	}
	var buf bytes.Buffer
	for i, off := range offsets {
		n := counts[i]
		if off < 0 || n < 0 || off > size || n > size-off {
			return nil, newTruncatedErrorf("strip %d at %d+%d outside file of %d bytes", i, off, n, size)
		}
		section := io.NewSectionReader(r, off, n)
		if err := decompressStrip(&buf, section, compression, limit); err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		if limit > 0 && int64(buf.Len()) > limit {
			return nil, newBadHeaderErrorf("strip data exceeds max %d", limit)
		}
	}
	return buf.Bytes(), nil
}

func decompressStrip(dst *bytes.Buffer, r io.Reader, compression int, limit int64) error {
	var src io.Reader
	switch compression {
	case 0, compressionNone:
		src = r
	case compressionLZW:
		rc := lzw.NewReader(r, lzw.MSB, 8)
		defer rc.Close()
		src = rc
	case compressionDeflate, compressionDeflate2:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadHeader, err)
		}
		defer zr.Close()
		src = zr
	case compressionPackBits:
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return unpackBits(dst, b)
	default:
		return fmt.Errorf("%w: TIFF compression %d", ErrUnsupportedOperation, compression)
	}
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	if _, err := io.Copy(dst, src); err != nil {
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: %v", ErrTruncatedStream, err)
		}
		return err
	}
	return nil
}

// unpackBits decodes PackBits run-length data.
func unpackBits(dst *bytes.Buffer, b []byte) error {
	for i := 0; i < len(b); {
		n := int(int8(b[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(b) {
				return newTruncatedErrorf("packbits literal run")
			}
			dst.Write(b[i : i+n+1])
			i += n + 1
		case n != -128:
			if i >= len(b) {
				return newTruncatedErrorf("packbits repeat run")
			}
			for range 1 - n {
				dst.WriteByte(b[i])
			}
			i++
		}
	}
	return nil
}

// decodeTIFFImage decodes the first image of the standalone TIFF file in r.
func decodeTIFFImage(r io.ReaderAt, size, limit int64) (*Plane, error) {
	cfg, err := tiff.DecodeConfig(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, tiffError(err)
	}
	// Decoded images hold at most 8 bytes per pixel.
	if limit > 0 && int64(cfg.Width)*int64(cfg.Height)*8 > limit {
		return nil, newBadHeaderErrorf("TIFF image of %dx%d exceeds max plane size %d", cfg.Width, cfg.Height, limit)
	}
	img, err := tiff.Decode(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, tiffError(err)
	}
	return planeFromImage(img), nil
}

func tiffError(err error) error {
	var unsupported tiff.UnsupportedError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return newTruncatedErrorf("TIFF: %v", err)
	case errors.As(err, &unsupported):
		return fmt.Errorf("%w: TIFF: %v", ErrUnsupportedOperation, err)
	default:
		return newBadHeaderErrorf("TIFF: %v", err)
	}
}

// planeFromImage converts an image decoded by golang.org/x/image/tiff into a Plane.
// Colour images give three channels; alpha is dropped.
func planeFromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch m := img.(type) {
	case *image.Gray:
		p := newPlane(w, h, 1, Uint8)
		for y := range h {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				p.Channels[0][y*w+x] = float64(v)
			}
		}
		return p
	case *image.Gray16:
		p := newPlane(w, h, 1, Uint16)
		for y := range h {
			row := m.Pix[y*m.Stride : y*m.Stride+2*w]
			for x := range w {
				p.Channels[0][y*w+x] = float64(binary.BigEndian.Uint16(row[2*x:]))
			}
		}
		return p
	case *image.Paletted:
		p := newPlane(w, h, 1, Uint8)
		for y := range h {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				p.Channels[0][y*w+x] = float64(v)
			}
		}
		return p
	case *image.RGBA:
		return planeFromPix8(m.Pix, m.Stride, w, h)
	case *image.NRGBA:
		return planeFromPix8(m.Pix, m.Stride, w, h)
	}

	p := newPlane(w, h, 3, Uint16)
	for y := range h {
		for x := range w {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			p.Channels[0][i] = float64(r)
			p.Channels[1][i] = float64(g)
			p.Channels[2][i] = float64(b)
		}
	}
	return p
}

func planeFromPix8(pix []byte, stride, w, h int) *Plane {
	p := newPlane(w, h, 3, Uint8)
	for y := range h {
		for x := range w {
			o := y*stride + 4*x
			i := y*w + x
			p.Channels[0][i] = float64(pix[o])
			p.Channels[1][i] = float64(pix[o+1])
			p.Channels[2][i] = float64(pix[o+2])
		}
	}
	return p
}
