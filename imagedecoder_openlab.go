// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	openlabFirstTagOffset = 16
	// Image types below this are colour images.
	openlabFirstGrayType = 9
	// Size of the iPic comment header, including the marker.
	openlabIPicHeaderSize = 32
)

var openlabIPicMarker = []byte("IVEAdbpq")

type imageDecoderOpenlab struct {
	*baseDecoder

	// Tag offsets of the PICT entries.
	offsets    []int64
	imageTypes []int
	isColor    bool
}

func (d *imageDecoderOpenlab) init() error {
	if !bytes.Equal(d.readBytesVolatile(len(openlabMagic)), openlabMagic) {
		return fmt.Errorf("%w: no LIFF magic", ErrFormatMismatch)
	}
	d.byteOrder = binary.BigEndian

	seen := make(map[int64]bool)
	d.seek(openlabFirstTagOffset)
	next := int64(d.read4())
	for next != 0 {
		if seen[next] {
			return newBadHeaderErrorf("tag chain loops back to offset %d", next)
		}
		seen[next] = true
		d.seek(next + 4)
		following := int64(d.read4())
		if string(d.readBytesVolatile(4)) == "PICT" {
			d.offsets = append(d.offsets, next)
		}
		if following == next {
			break
		}
		next = following
	}

	for i, off := range d.offsets {
		d.seek(off + 40)
		t := int(d.read2())
		d.imageTypes = append(d.imageTypes, t)
		d.put("Image type "+strconv.Itoa(i), t)
		if t < openlabFirstGrayType {
			d.isColor = true
		}
	}
	d.put("Number of images", len(d.offsets))

	d.attr("Pixels", "SizeT", len(d.offsets))
	d.attr("Pixels", "BigEndian", true)
	d.attr("Pixels", "DimensionOrder", "XYZTC")
	if d.isColor {
		d.attr("Pixels", "SizeC", 3)
	} else {
		d.attr("Pixels", "SizeC", 1)
	}
	if len(d.offsets) > 0 {
		pict, err := d.readPICT(0)
		if err != nil {
			return err
		}
		w, h := pictDimensions(pict)
		d.put("Width", w)
		d.put("Height", h)
		d.attr("Pixels", "SizeX", w)
		d.attr("Pixels", "SizeY", h)
	}

	return nil
}

// readPICT reads the PICT payload of block i.
func (d *imageDecoderOpenlab) readPICT(i int) (pict []byte, err error) {
	err = d.protect(func() error {
		d.seek(d.offsets[i] + 12)
		size := int64(d.read4())
		if d.read1() == 1 {
			// Version 2 header.
			d.skip(128)
		}
		d.skip(169)
		if size > d.opts.LimitPlaneBytes {
			return newBadHeaderErrorf("block of %d bytes exceeds max %d", size, d.opts.LimitPlaneBytes)
		}
		pict = d.readBytes(int(size))
		return nil
	})
	return
}

// pictDimensions returns the size of the frame rectangle of a PICT picture.
func pictDimensions(pict []byte) (width, height int) {
	if len(pict) < 10 {
		return 0, 0
	}
	top := int(int16(binary.BigEndian.Uint16(pict[2:])))
	left := int(int16(binary.BigEndian.Uint16(pict[4:])))
	bottom := int(int16(binary.BigEndian.Uint16(pict[6:])))
	right := int(int16(binary.BigEndian.Uint16(pict[8:])))
	return right - left, bottom - top
}

func (d *imageDecoderOpenlab) blockCount() int {
	return len(d.offsets)
}

func (d *imageDecoderOpenlab) decodeBlock(i int) (*Plane, error) {
	pict, err := d.readPICT(i)
	if err != nil {
		return nil, err
	}
	width, height := pictDimensions(pict)

	pixels, err := d.deepGray(pict)
	if err != nil {
		return nil, err
	}
	if pixels == nil {
		if d.imageTypes[i] < openlabFirstGrayType {
			return nil, fmt.Errorf("%w: block %d is a QuickTime PICT without deep gray data", ErrUnsupportedOperation, i)
		}
		return nil, newBadHeaderErrorf("block %d: no iPic comment block", i)
	}

	p, err := decodePlane(pixels, planeSpec{
		width:          width,
		height:         height,
		channels:       1,
		bytesPerSample: 2,
		byteOrder:      binary.BigEndian,
	})
	if err != nil {
		return nil, err
	}
	if d.isColor {
		p = p.replicateChannels(3)
	}
	return p, nil
}

// deepGray concatenates the payloads of the iPic comment blocks in pict.
// It returns nil if there are none.
func (d *imageDecoderOpenlab) deepGray(pict []byte) ([]byte, error) {
	var (
		pixels      []byte
		pos         int
		totalBlocks = -1
	)
	for expected := 0; expected != totalBlocks; expected++ {
		i := bytes.Index(pict[pos:], openlabIPicMarker)
		if i < 0 || pos+i+openlabIPicHeaderSize > len(pict) {
			if expected == 0 {
				return nil, nil
			}
			return nil, newTruncatedErrorf("iPic block %d of %d not found", expected, totalBlocks)
		}
		h := pict[pos+i+len(openlabIPicMarker):]
		blockNumber := int(binary.BigEndian.Uint32(h))
		total := int(binary.BigEndian.Uint32(h[4:]))
		blockSize := int(binary.BigEndian.Uint32(h[16:]))
		if blockNumber != expected {
			return nil, newBadHeaderErrorf("iPic block %d, expected %d", blockNumber, expected)
		}
		if totalBlocks == -1 {
			if total <= 0 {
				return nil, newBadHeaderErrorf("iPic block %d declares %d blocks", blockNumber, total)
			}
			totalBlocks = total
		} else if total != totalBlocks {
			return nil, newBadHeaderErrorf("iPic block %d declares %d blocks, expected %d", blockNumber, total, totalBlocks)
		}
		start := pos + i + openlabIPicHeaderSize
		if blockSize < 0 || blockSize > len(pict)-start {
			return nil, newTruncatedErrorf("iPic block %d of %d bytes", blockNumber, blockSize)
		}
		pixels = append(pixels, pict[start:start+blockSize]...)
		pos = start + blockSize
	}
	return pixels, nil
}
