// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
)

func TestDecodePlane(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		name string
		b    []byte
		spec planeSpec
		want *Plane
	}{
		{
			"Uint8",
			[]byte{1, 2, 3, 4},
			planeSpec{width: 2, height: 2, channels: 1, bytesPerSample: 1},
			&Plane{Width: 2, Height: 2, PixelType: Uint8, Channels: [][]float64{{1, 2, 3, 4}}},
		},
		{
			"Int16 big endian",
			[]byte{0xFF, 0xFE, 0x00, 0x02},
			planeSpec{width: 2, height: 1, channels: 1, bytesPerSample: 2, byteOrder: binary.BigEndian, signed: true},
			&Plane{Width: 2, Height: 1, PixelType: Int16, Channels: [][]float64{{-2, 2}}},
		},
		{
			"Uint16 little endian",
			[]byte{0xFF, 0xFE, 0x02, 0x00},
			planeSpec{width: 2, height: 1, channels: 1, bytesPerSample: 2, byteOrder: binary.LittleEndian},
			&Plane{Width: 2, Height: 1, PixelType: Uint16, Channels: [][]float64{{0xFEFF, 2}}},
		},
		{
			"Int32",
			[]byte{0xFF, 0xFF, 0xFF, 0xFF},
			planeSpec{width: 1, height: 1, channels: 1, bytesPerSample: 4, byteOrder: binary.BigEndian, signed: true},
			&Plane{Width: 1, Height: 1, PixelType: Int32, Channels: [][]float64{{-1}}},
		},
		{
			"Uint32",
			[]byte{0xFF, 0xFF, 0xFF, 0xFF},
			planeSpec{width: 1, height: 1, channels: 1, bytesPerSample: 4, byteOrder: binary.BigEndian},
			&Plane{Width: 1, Height: 1, PixelType: Uint32, Channels: [][]float64{{math.MaxUint32}}},
		},
		{
			"Float32",
			binary.LittleEndian.AppendUint32(nil, math.Float32bits(0.25)),
			planeSpec{width: 1, height: 1, channels: 1, bytesPerSample: 4, byteOrder: binary.LittleEndian, float: true},
			&Plane{Width: 1, Height: 1, PixelType: Float32, Channels: [][]float64{{0.25}}},
		},
		{
			"Planar",
			[]byte{1, 2, 3, 4, 5, 6},
			planeSpec{width: 2, height: 1, channels: 3, bytesPerSample: 1, layout: layoutPlanar},
			&Plane{Width: 2, Height: 1, PixelType: Uint8, Channels: [][]float64{{1, 2}, {3, 4}, {5, 6}}},
		},
		{
			"Interleaved",
			[]byte{1, 2, 3, 4, 5, 6},
			planeSpec{width: 2, height: 1, channels: 3, bytesPerSample: 1, layout: layoutInterleaved},
			&Plane{Width: 2, Height: 1, PixelType: Uint8, Channels: [][]float64{{1, 4}, {2, 5}, {3, 6}}},
		},
		{
			"Thirds",
			[]byte{1, 2, 3, 4, 5, 6},
			planeSpec{width: 2, height: 1, channels: 3, bytesPerSample: 1, layout: layoutThirds},
			&Plane{Width: 2, Height: 1, PixelType: Uint8, Channels: [][]float64{{1, 2}, {3, 4}, {5, 6}}},
		},
		{
			"Extra bytes are ignored",
			[]byte{1, 2, 3},
			planeSpec{width: 2, height: 1, channels: 1, bytesPerSample: 1},
			&Plane{Width: 2, Height: 1, PixelType: Uint8, Channels: [][]float64{{1, 2}}},
		},
	} {
		c.Run(test.name, func(c *qt.C) {
			got, err := decodePlane(test.b, test.spec)
			c.Assert(err, qt.IsNil)
			c.Assert(cmp.Diff(test.want, got), qt.Equals, "")
		})
	}
}

func TestDecodePlaneErrors(t *testing.T) {
	c := qt.New(t)

	_, err := decodePlane([]byte{1, 2, 3}, planeSpec{width: 2, height: 2, channels: 1, bytesPerSample: 1})
	c.Assert(IsTruncated(err), qt.IsTrue)

	_, err = decodePlane(make([]byte, 16), planeSpec{width: 1, height: 1, channels: 1, bytesPerSample: 8})
	c.Assert(errors.Is(err, ErrUnsupportedSampleWidth), qt.IsTrue)

	_, err = decodePlane(make([]byte, 16), planeSpec{width: 1, height: 1, channels: 1, bytesPerSample: 3})
	c.Assert(IsUnsupported(err), qt.IsTrue)

	_, err = decodePlane(nil, planeSpec{width: 0, height: 1, channels: 1, bytesPerSample: 1})
	c.Assert(IsBadHeader(err), qt.IsTrue)

	_, err = decodePlane(make([]byte, 4), planeSpec{width: 2, height: 1, channels: 2, bytesPerSample: 1, layout: layoutThirds})
	c.Assert(IsBadHeader(err), qt.IsTrue)
}

func TestPlaneSpecSize(t *testing.T) {
	c := qt.New(t)

	s := planeSpec{width: 3, height: 2, channels: 2, bytesPerSample: 2}
	n, err := s.size(0)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(24))

	_, err = s.size(23)
	c.Assert(IsBadHeader(err), qt.IsTrue)

	huge := planeSpec{width: math.MaxInt32, height: math.MaxInt32, channels: math.MaxInt32, bytesPerSample: 4}
	_, err = huge.size(0)
	c.Assert(err, qt.ErrorMatches, ".*overflows")
}

func TestBlockTotal(t *testing.T) {
	c := qt.New(t)

	n, err := blockTotal(100, 2, 3, 4)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 24)

	n, err = blockTotal(0, 5, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	_, err = blockTotal(23, 2, 3, 4)
	c.Assert(IsBadHeader(err), qt.IsTrue)

	_, err = blockTotal(math.MaxInt64, 2, 2, 1<<62, 2)
	c.Assert(IsBadHeader(err), qt.IsTrue)

	_, err = blockTotal(100, -1)
	c.Assert(IsBadHeader(err), qt.IsTrue)
}

func TestReadPlane(t *testing.T) {
	c := qt.New(t)
	r := newStreamReaderBytes([]byte{9, 9, 1, 2, 3, 4}, binary.LittleEndian)
	spec := planeSpec{width: 2, height: 2, channels: 1, bytesPerSample: 1}

	p, err := r.readPlane(2, spec, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Channels[0], qt.DeepEquals, []float64{1, 2, 3, 4})

	_, err = r.readPlane(3, spec, 0)
	c.Assert(IsTruncated(err), qt.IsTrue)

	_, err = r.readPlane(2, spec, 3)
	c.Assert(IsBadHeader(err), qt.IsTrue)
}

func TestUndoHorizontalDifferencing(t *testing.T) {
	c := qt.New(t)

	c.Run("8 bit", func(c *qt.C) {
		b := []byte{10, 1, 1, 1, 5, 255, 2, 0}
		spec := planeSpec{width: 4, height: 2, channels: 1, bytesPerSample: 1, layout: layoutInterleaved}
		c.Assert(undoHorizontalDifferencing(b, spec), qt.IsNil)
		c.Assert(b, qt.DeepEquals, []byte{10, 11, 12, 13, 5, 4, 6, 6})
	})

	c.Run("8 bit interleaved RGB", func(c *qt.C) {
		b := []byte{1, 2, 3, 1, 1, 1}
		spec := planeSpec{width: 2, height: 1, channels: 3, bytesPerSample: 1, layout: layoutInterleaved}
		c.Assert(undoHorizontalDifferencing(b, spec), qt.IsNil)
		c.Assert(b, qt.DeepEquals, []byte{1, 2, 3, 2, 3, 4})
	})

	c.Run("16 bit", func(c *qt.C) {
		w := newByteWriter(binary.BigEndian)
		w.u16(1000).u16(1).u16(0xFFFF)
		spec := planeSpec{width: 3, height: 1, channels: 1, bytesPerSample: 2, byteOrder: binary.BigEndian}
		b := w.Bytes()
		c.Assert(undoHorizontalDifferencing(b, spec), qt.IsNil)
		p, err := decodePlane(b, spec)
		c.Assert(err, qt.IsNil)
		c.Assert(p.Channels[0], qt.DeepEquals, []float64{1000, 1001, 1000})
	})

	c.Run("Short", func(c *qt.C) {
		spec := planeSpec{width: 4, height: 2, channels: 1, bytesPerSample: 1}
		c.Assert(IsTruncated(undoHorizontalDifferencing(make([]byte, 7), spec)), qt.IsTrue)
	})
}

func TestUnpackBits(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	// Literal run of 3, repeat run of 4, no-op, literal run of 1.
	c.Assert(unpackBits(&buf, []byte{2, 1, 2, 3, 0xFD, 7, 0x80, 0, 9}), qt.IsNil)
	c.Assert(buf.Bytes(), qt.DeepEquals, []byte{1, 2, 3, 7, 7, 7, 7, 9})

	buf.Reset()
	c.Assert(IsTruncated(unpackBits(&buf, []byte{5, 1})), qt.IsTrue)
	c.Assert(IsTruncated(unpackBits(&buf, []byte{0xFD})), qt.IsTrue)
}

func TestReadStrips(t *testing.T) {
	c := qt.New(t)

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	_, err := zw.Write([]byte{5, 6, 7, 8})
	c.Assert(err, qt.IsNil)
	c.Assert(zw.Close(), qt.IsNil)

	for _, test := range []struct {
		name        string
		strips      [][]byte
		compression int
	}{
		{"None", [][]byte{{1, 2}, {3, 4}}, compressionNone},
		{"PackBits", [][]byte{{1, 1, 2}, {0xFF, 3}}, compressionPackBits},
		{"Deflate", [][]byte{zbuf.Bytes()}, compressionDeflate},
	} {
		c.Run(test.name, func(c *qt.C) {
			var (
				file            []byte
				offsets, counts []int64
			)
			file = append(file, 0xAA, 0xBB)
			for _, s := range test.strips {
				offsets = append(offsets, int64(len(file)))
				counts = append(counts, int64(len(s)))
				file = append(file, s...)
			}
			b, err := readStrips(bytes.NewReader(file), int64(len(file)), offsets, counts, test.compression, 0)
			c.Assert(err, qt.IsNil)
			c.Assert(len(b), qt.Equals, 4)
		})
	}

	c.Run("Values", func(c *qt.C) {
		b, err := readStrips(bytes.NewReader(zbuf.Bytes()), int64(zbuf.Len()), []int64{0}, []int64{int64(zbuf.Len())}, compressionDeflate, 0)
		c.Assert(err, qt.IsNil)
		c.Assert(b, qt.DeepEquals, []byte{5, 6, 7, 8})
	})

	c.Run("Outside file", func(c *qt.C) {
		_, err := readStrips(bytes.NewReader(make([]byte, 4)), 4, []int64{2}, []int64{3}, compressionNone, 0)
		c.Assert(IsTruncated(err), qt.IsTrue)
	})

	c.Run("Mismatched counts", func(c *qt.C) {
		_, err := readStrips(bytes.NewReader(make([]byte, 4)), 4, []int64{0, 2}, []int64{2}, compressionNone, 0)
		c.Assert(IsBadHeader(err), qt.IsTrue)
	})

	c.Run("Limit", func(c *qt.C) {
		_, err := readStrips(bytes.NewReader(make([]byte, 8)), 8, []int64{0}, []int64{8}, compressionNone, 4)
		c.Assert(IsBadHeader(err), qt.IsTrue)
	})

	c.Run("Unsupported compression", func(c *qt.C) {
		_, err := readStrips(bytes.NewReader(make([]byte, 4)), 4, []int64{0}, []int64{4}, 7, 0)
		c.Assert(errors.Is(err, ErrUnsupportedOperation), qt.IsTrue)
	})
}

func TestDecodeTIFFImage(t *testing.T) {
	c := qt.New(t)

	b := grayTIFF(c, 3, 2, 100)
	p, err := decodeTIFFImage(bytes.NewReader(b), int64(len(b)), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.DeepEquals, &Plane{Width: 3, Height: 2, PixelType: Uint8, Channels: [][]float64{seq(100, 6)}})

	_, err = decodeTIFFImage(bytes.NewReader(b), int64(len(b)), 10)
	c.Assert(IsBadHeader(err), qt.IsTrue)

	_, err = decodeTIFFImage(bytes.NewReader([]byte("not a tiff")), 10, 0)
	c.Assert(IsInvalidFormat(err), qt.IsTrue, qt.Commentf("%v", err))
}

func TestPlane(t *testing.T) {
	c := qt.New(t)

	p := &Plane{Width: 2, Height: 2, PixelType: Uint8, Channels: [][]float64{{1, 2, 3, 6}}}
	c.Assert(p.NumChannels(), qt.Equals, 1)
	c.Assert(p.At(0, 1, 0), qt.Equals, 3.0)
	lo, hi, mean := p.Stats(0)
	c.Assert([]float64{lo, hi, mean}, qt.DeepEquals, []float64{1, 6, 3})

	rgb := p.replicateChannels(3)
	c.Assert(rgb.NumChannels(), qt.Equals, 3)
	c.Assert(rgb.Channels[2], qt.DeepEquals, p.Channels[0])

	c.Assert(Uint16.BytesPerSample(), qt.Equals, 2)
	c.Assert(Float32.BytesPerSample(), qt.Equals, 4)
	c.Assert(PixelTypeUnknown.BytesPerSample(), qt.Equals, 0)
}
