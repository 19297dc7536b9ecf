// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const (
	iplabMinVersion = 0x100e
	iplabDataOffset = 44
	// The data size field counts the 28 bytes of dimension fields before the pixels.
	iplabDimensionsSize = 28
)

type iplabPixelType struct {
	description    string
	omeName        string
	bytesPerSample int
	signed         bool
	float          bool
}

var iplabPixelTypes = map[int]iplabPixelType{
	0:  {"8 bit unsigned", "Uint8", 1, false, false},
	1:  {"16 bit signed short", "int16", 2, true, false},
	2:  {"16 bit unsigned short", "Uint16", 2, false, false},
	3:  {"32 bit signed long", "Uint32", 4, true, false},
	4:  {"32 bit single-precision float", "float", 4, false, true},
	5:  {"Color24", "Uint32", 1, false, false},
	6:  {"Color48", "Uint32", 2, false, false},
	10: {"64 bit double-precision float", "float", 8, false, true},
}

var iplabClutTypes = []string{
	"monochrome", "reverse monochrome", "BGR", "classify", "rainbow", "red",
	"green", "blue", "cyan", "magenta", "yellow", "saturated pixels",
}

var iplabNormSources = []string{
	"user", "plane", "sequence", "saturated plane", "saturated sequence", "ROI",
}

type imageDecoderIPLab struct {
	*baseDecoder
	dataSize      int64
	width, height int
	channels      int
	zDepth        int
	tDepth        int
	blocks        int
	pixelType     iplabPixelType
}

func (d *imageDecoderIPLab) init() error {
	switch string(d.readBytesVolatile(4)) {
	case "iiii":
		d.byteOrder = binary.LittleEndian
	case "mmmm":
		d.byteOrder = binary.BigEndian
	default:
		return fmt.Errorf("%w: no IPLab magic", ErrFormatMismatch)
	}
	if n := d.read4(); n != 4 {
		return newBadHeaderErrorf("first block size %d, expected 4", n)
	}
	if v := d.read4(); v < iplabMinVersion {
		return newBadHeaderErrorf("version %#x is older than %#x", v, iplabMinVersion)
	}

	d.seek(16)
	d.dataSize = int64(d.read4()) - iplabDimensionsSize
	d.width = int(d.read4())
	d.height = int(d.read4())
	d.channels = int(d.read4())
	d.zDepth = int(d.read4())
	d.tDepth = int(d.read4())
	pixelType := int(d.read4())

	if d.dataSize < 0 {
		return newBadHeaderErrorf("data size %d", d.dataSize+iplabDimensionsSize)
	}
	if d.width <= 0 || d.height <= 0 || d.channels <= 0 {
		return newBadHeaderErrorf("invalid dimensions %dx%d with %d channels", d.width, d.height, d.channels)
	}

	d.put("Width", d.width)
	d.put("Height", d.height)
	d.put("Channels", d.channels)
	d.put("ZDepth", d.zDepth)
	d.put("TDepth", d.tDepth)

	pt, found := iplabPixelTypes[pixelType]
	if !found {
		d.put("PixelType", "reserved")
		return newBadHeaderErrorf("reserved pixel type %d", pixelType)
	}
	d.pixelType = pt
	d.put("PixelType", pt.description)

	d.attr("Pixels", "SizeX", d.width)
	d.attr("Pixels", "SizeY", d.height)
	d.attr("Pixels", "SizeZ", d.zDepth)
	d.attr("Pixels", "SizeC", d.channels)
	d.attr("Pixels", "SizeT", d.tDepth)
	d.attr("Pixels", "BigEndian", d.byteOrder == binary.BigEndian)
	d.attr("Pixels", "DimensionOrder", "XYZTC")
	d.attr("Pixels", "PixelType", pt.omeName)
	d.attr("Image", "Name", d.path)

	if d.dataSize > d.length()-iplabDataOffset {
		return newTruncatedErrorf("pixel data of %d bytes", d.dataSize)
	}
	var err error
	if d.blocks, err = blockTotal(d.dataSize, d.zDepth, d.tDepth); err != nil {
		return err
	}
	d.seek(iplabDataOffset + d.dataSize)
	d.parseTags()

	return nil
}

// parseTags reads the tag chain after the pixel data up to the "fini" tag.
func (d *imageDecoderIPLab) parseTags() {
	for {
		if d.remaining() < 4 {
			d.stop(newTruncatedErrorf("tag chain ends without fini"))
		}
		name := string(d.readBytesVolatile(4))
		if name == "fini" {
			return
		}
		size := int64(d.read4())
		r, closer, err := d.bufferedReader(size)
		if err != nil {
			d.stop(err)
		}
		if name == "norm" {
			d.parseTag(name, r)
		} else {
			d.tolerateRecord(strings.TrimSpace(name)+" tag", r, func() { d.parseTag(name, r) })
		}
		closer.Close()
	}
}

func (d *imageDecoderIPLab) parseTag(name string, r *streamReader) {
	switch name {
	case "clut":
		if r.length() == 8 {
			r.skip(4)
			if t := int(r.read4()); t < len(iplabClutTypes) {
				d.put("LUT type", iplabClutTypes[t])
			}
		}
	case "norm":
		if r.length() != 44*int64(d.channels) {
			d.stop(newBadHeaderErrorf("normalization settings of %d bytes for %d channels", r.length(), d.channels))
		}
		for i := range d.channels {
			n := strconv.Itoa(i)
			source := "user"
			if s := int(r.read4()); s < len(iplabNormSources) {
				source = iplabNormSources[s]
			}
			d.put("NormalizationSource"+n, source)
			d.put("NormalizationMin"+n, r.readF64())
			d.put("NormalizationMax"+n, r.readF64())
			d.put("NormalizationGamma"+n, r.readF64())
			d.put("NormalizationBlack"+n, r.readF64())
			d.put("NormalizationWhite"+n, r.readF64())
		}
	case "head":
		for range 100 {
			if r.remaining() < 6 {
				break
			}
			num := r.read2()
			d.put("Header"+strconv.Itoa(int(num)), latin1String(r.readBytesVolatile(4)))
		}
	case "roi ":
		r.skip(4) // type
		left, top := r.read4(), r.read4()
		right, bottom := r.read4(), r.read4()
		d.attr("ROI", "X0", left)
		d.attr("ROI", "X1", right)
		d.attr("ROI", "Y0", bottom)
		d.attr("ROI", "Y1", top)
	case "unit":
		for i := range 4 {
			n := strconv.Itoa(i)
			style, perPixel, unitName := r.read4(), r.read4(), r.read4()
			d.put("ResolutionStyle"+n, style)
			d.put("UnitsPerPixel"+n, perPixel)
			d.put("UnitName"+n, unitName)
			if i == 0 {
				d.attr("Image", "PixelSizeX", perPixel)
				d.attr("Image", "PixelSizeY", perPixel)
			}
		}
	case "note":
		descriptor := latin1String(r.readBytesVolatile(64))
		notes := latin1String(r.readBytesVolatile(512))
		d.put("Descriptor", descriptor)
		d.put("Notes", notes)
		d.attr("Image", "Description", notes)
	}
}

func (d *imageDecoderIPLab) blockCount() int {
	return d.blocks
}

func (d *imageDecoderIPLab) decodeBlock(i int) (*Plane, error) {
	pt := d.pixelType
	if pt.bytesPerSample == 8 {
		return nil, newUnsupportedSampleWidthErrorf("64 bit floating point pixels")
	}
	spec := planeSpec{
		width:          d.width,
		height:         d.height,
		channels:       d.channels,
		bytesPerSample: pt.bytesPerSample,
		byteOrder:      d.byteOrder,
		signed:         pt.signed,
		float:          pt.float,
	}
	if d.channels == 3 && pt.bytesPerSample == 1 {
		spec.layout = layoutThirds
	}
	size, err := spec.size(d.opts.LimitPlaneBytes)
	if err != nil {
		return nil, err
	}
	return d.readPlaneAt(iplabDataOffset+int64(i)*size, spec)
}
