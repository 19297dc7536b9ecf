// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/bep/biodecode/internal/ole"
	"golang.org/x/text/encoding/unicode"
)

// UTF-16 "Scaling" followed by 00 00 09, found before the image header of each plane.
var zviMarker = append(encodeUTF16LE("Scaling"), 0, 0, 9)

func encodeUTF16LE(s string) []byte {
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	return b
}

const (
	zviHeaderOffset = 56
	zviPixelOffset  = 80
)

// zviPlane is an image found in the file or in one of its streams.
type zviPlane struct {
	// Name of the stream, empty for the raw file.
	stream string
	// The pixels of a stream; for the raw file they are read at offset.
	data   []byte
	offset int64

	width, height int
	bytesPerPixel int
	channels      int
}

type imageDecoderZVI struct {
	*baseDecoder
	planes []zviPlane
}

func (d *imageDecoderZVI) init() error {
	if !ole.IsCompoundDocument(d.readBytesVolatile(len(ole.Signature))) {
		return fmt.Errorf("%w: no compound document signature", ErrFormatMismatch)
	}

	err := ole.Walk(d.ra, func(s *ole.Stream) error {
		b, err := s.Bytes(d.opts.LimitTagSize)
		if err != nil {
			if errors.Is(err, ole.ErrStreamTooLarge) {
				d.warnf("zvi: %v", err)
				return nil
			}
			return err
		}
		if i := bytes.Index(b, zviMarker); i >= 0 {
			if err := d.addPlane(s.Name, b, int64(i)); err != nil {
				d.warnf("zvi: stream %q: %v", s.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		if IsInvalidFormat(err) {
			return err
		}
		// Fall back to scanning the raw file.
		d.warnf("zvi: cannot read streams: %v", err)
		d.planes = nil
	}

	if len(d.planes) == 0 {
		if err := d.scanRaw(); err != nil {
			return err
		}
	}

	d.put("Number of images", len(d.planes))
	first := d.planes[0]
	d.attr("Pixels", "SizeX", first.width)
	d.attr("Pixels", "SizeY", first.height)
	d.attr("Pixels", "SizeC", first.channels)
	d.attr("Pixels", "SizeZ", len(d.planes))
	d.attr("Pixels", "BigEndian", false)

	return nil
}

// scanRaw searches the whole file for a single image header.
func (d *imageDecoderZVI) scanRaw() error {
	marker := d.scan(zviMarker, 0, 0)
	if marker < 0 {
		return newBadHeaderErrorf("no image header found")
	}
	return d.addPlane("", nil, marker)
}

// addPlane reads the image header at marker in data, or in the main file if data is nil.
func (d *imageDecoderZVI) addPlane(stream string, data []byte, marker int64) error {
	r := d.streamReader
	if data != nil {
		r = newStreamReaderBytes(data, binary.LittleEndian)
	}

	var p zviPlane
	var kind, bitDepth, count int
	if err := r.protect(func() error {
		r.seek(marker + zviHeaderOffset)
		p.width = int(r.read4s())
		p.height = int(r.read4s())
		count = int(r.read4s())
		p.bytesPerPixel = int(r.read4s())
		kind = int(r.read4s())
		bitDepth = int(r.read4s())
		return nil
	}); err != nil {
		return err
	}
	if p.bytesPerPixel <= 0 {
		return newBadHeaderErrorf("%d bytes per pixel", p.bytesPerPixel)
	}

	if bitDepth != p.bytesPerPixel*8 {
		d.warnf("zvi: bit depth %d does not match %d bytes per pixel", bitDepth, p.bytesPerPixel)
	}
	if count != 1 {
		d.warnf("zvi: image count %d, expected 1", count)
	}
	if kind != 1 && kind != 4 {
		d.warnf("zvi: unknown image kind %d", kind)
	}

	p.channels = 1
	if kind == 1 {
		p.channels = 3
	}
	if p.bytesPerPixel%p.channels != 0 {
		d.warnf("zvi: %d bytes per pixel do not divide into %d channels, assuming grayscale", p.bytesPerPixel, p.channels)
		p.channels = 1
	}

	spec := d.spec(p)
	size, err := spec.size(d.opts.LimitPlaneBytes)
	if err != nil {
		return err
	}
	start := marker + zviPixelOffset
	if start+size > r.length() {
		return newTruncatedErrorf("image of %d bytes at offset %d, have %d", size, start, r.length())
	}
	if data != nil {
		p.data = data[start : start+size]
	}
	p.stream, p.offset = stream, start

	n := strconv.Itoa(len(d.planes))
	if stream != "" {
		d.put("Stream "+n, stream)
	}
	d.put("Width "+n, p.width)
	d.put("Height "+n, p.height)
	d.put("Bytes per pixel "+n, p.bytesPerPixel)
	d.put("Bit depth "+n, bitDepth)

	d.planes = append(d.planes, p)
	return nil
}

func (d *imageDecoderZVI) spec(p zviPlane) planeSpec {
	return planeSpec{
		width:          p.width,
		height:         p.height,
		channels:       p.channels,
		bytesPerSample: p.bytesPerPixel / p.channels,
		byteOrder:      binary.LittleEndian,
		layout:         layoutInterleaved,
	}
}

func (d *imageDecoderZVI) blockCount() int {
	return len(d.planes)
}

func (d *imageDecoderZVI) decodeBlock(i int) (*Plane, error) {
	p := d.planes[i]
	var (
		plane *Plane
		err   error
	)
	if p.data != nil {
		plane, err = decodePlane(p.data, d.spec(p))
	} else {
		plane, err = d.readPlaneAt(p.offset, d.spec(p))
	}
	if err != nil {
		return nil, err
	}
	if len(plane.Channels) == 3 {
		// Colour samples are stored as BGR.
		plane.Channels[0], plane.Channels[2] = plane.Channels[2], plane.Channels[0]
	}
	return plane, nil
}
