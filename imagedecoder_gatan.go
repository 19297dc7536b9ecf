// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var gatanOMEPixelTypes = map[int]string{
	1:  "int16",
	2:  "float",
	3:  "float",
	5:  "float",
	6:  "Uint8",
	7:  "int32",
	8:  "Uint32",
	9:  "int8",
	10: "Uint16",
	11: "Uint32",
	12: "float",
	13: "float",
	14: "Uint8",
	23: "int32",
}

type imageDecoderGatan struct {
	*baseDecoder

	// Width and height from the last Dimensions group.
	dims       [2]int
	pixelDepth int
	dataType   int

	numDataTags int
	pixelOffset int64
	pixelCount  int64
	pixelBytes  int
}

func (d *imageDecoderGatan) init() error {
	d.byteOrder = binary.BigEndian
	magic := d.readBytesVolatile(4)
	if !bytes.Equal(magic, gatanMagic) {
		return fmt.Errorf("%w: not a DM3 file", ErrFormatMismatch)
	}
	d.put("Declared length", d.read4())
	if d.read4() == 1 {
		d.byteOrder = binary.LittleEndian
	}

	// Root tag group.
	d.skip(2)
	n := int(d.readUint(4, d.otherByteOrder()))
	d.parseTags(n, gatanTagContext{})

	if d.pixelCount == 0 {
		return newBadHeaderErrorf("no image data")
	}

	pixelType, found := gatanOMEPixelTypes[d.dataType]
	if !found {
		pixelType = "int8"
	}
	d.attr("Pixels", "PixelType", pixelType)
	d.attr("Pixels", "BigEndian", d.byteOrder == binary.BigEndian)
	d.attr("Pixels", "SizeX", d.dims[0])
	d.attr("Pixels", "SizeY", d.dims[1])
	d.attr("Pixels", "SizeC", 1)
	d.attr("Pixels", "SizeZ", 1)
	d.attr("Pixels", "SizeT", 1)
	d.attr("Pixels", "DimensionOrder", "XYZTC")

	return nil
}

func (d *imageDecoderGatan) blockCount() int {
	return 1
}

func (d *imageDecoderGatan) decodeBlock(i int) (*Plane, error) {
	bps := d.pixelDepth
	if bps == 0 {
		bps = d.pixelBytes
	}
	if bps != d.pixelBytes {
		d.warnf("gatan: PixelDepth %d does not match the data size of %d bytes per sample", bps, d.pixelBytes)
	}
	if int64(d.dims[0])*int64(d.dims[1]) > d.pixelCount {
		return nil, newTruncatedErrorf("%dx%d image but only %d samples", d.dims[0], d.dims[1], d.pixelCount)
	}

	var signed, float bool
	switch d.dataType {
	case 1, 7, 9, 23:
		signed = true
	case 2, 12:
		float = true
	}

	return d.readPlaneAt(d.pixelOffset, planeSpec{
		width:          d.dims[0],
		height:         d.dims[1],
		channels:       1,
		bytesPerSample: bps,
		byteOrder:      d.byteOrder,
		signed:         signed,
		float:          float,
	})
}
