// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"strconv"
)

const (
	dvHeaderSize = 1024
	// Stored at offset 96; reads as this value in the file's byte order.
	dvMagic = 0xC0A0
)

var dvImageTypes = map[int]string{
	0: "normal",
	1: "Tilt-series",
	2: "Stereo tilt-series",
	3: "Averaged images",
	4: "Averaged stereo pairs",
}

type dvPixelType struct {
	description    string
	omeName        string
	bytesPerSample int
	signed         bool
	float          bool
}

var dvPixelTypes = map[int]dvPixelType{
	0: {"8 bit unsigned integer", "Uint8", 1, false, false},
	1: {"16 bit signed integer", "int16", 2, true, false},
	2: {"32 bit floating point", "float", 4, false, true},
	// Complex samples are read as raw 32-bit integers.
	3: {"32 bit complex", "Uint32", 4, true, false},
	4: {"64 bit complex", "float", 8, false, false},
	6: {"16 bit unsigned integer", "Uint16", 2, false, false},
}

type imageDecoderDeltavision struct {
	*baseDecoder
	width, height int
	numImages     int
	extSize       int64
	pixelType     dvPixelType
}

func (d *imageDecoderDeltavision) init() error {
	if err := d.checkAvailable(dvHeaderSize); err != nil {
		return err
	}

	d.seek(96)
	d.byteOrder = binary.LittleEndian
	if d.read2() != dvMagic {
		d.byteOrder = binary.BigEndian
	}
	little := d.byteOrder == binary.LittleEndian

	i32 := func(off int64) int {
		d.seek(off)
		return int(d.read4s())
	}
	i16 := func(off int64) int {
		d.seek(off)
		return int(d.read2s())
	}
	u16 := func(off int64) int {
		d.seek(off)
		return int(d.read2())
	}
	f32 := func(off int64) float32 {
		d.seek(off)
		return d.readF32()
	}

	d.width = i32(0)
	d.height = i32(4)
	d.numImages = i32(8)
	pixelType := i32(12)
	d.extSize = int64(i32(92))

	if d.width <= 0 || d.height <= 0 {
		return newBadHeaderErrorf("invalid dimensions %dx%d", d.width, d.height)
	}
	if d.numImages < 0 {
		return newBadHeaderErrorf("invalid image count %d", d.numImages)
	}
	if d.extSize < 0 || d.extSize > d.length()-dvHeaderSize {
		return newTruncatedErrorf("extended header of %d bytes", d.extSize)
	}
	if _, err := blockTotal(d.length()-dvHeaderSize-d.extSize, d.numImages); err != nil {
		return err
	}
	pt, found := dvPixelTypes[pixelType]
	if !found {
		return newBadHeaderErrorf("unknown pixel type %d", pixelType)
	}
	d.pixelType = pt

	d.put("ImageWidth", d.width)
	d.put("ImageHeight", d.height)
	d.put("NumberOfImages", d.numImages)
	d.put("PixelType", pt.description)

	d.attr("Pixels", "SizeX", d.width)
	d.attr("Pixels", "SizeY", d.height)
	d.attr("Pixels", "PixelType", pt.omeName)
	d.attr("Pixels", "BigEndian", !little)

	d.put("Sub-image starting point (X)", i32(16))
	d.put("Sub-image starting point (Y)", i32(20))
	d.put("Sub-image starting point (Z)", i32(24))
	d.put("Pixel sampling size (X)", i32(28))
	d.put("Pixel sampling size (Y)", i32(32))
	d.put("Pixel sampling size (Z)", i32(36))
	d.put("X element length (in um)", f32(40))
	d.put("Y element length (in um)", f32(44))
	d.put("Z element length (in um)", f32(48))
	d.put("X axis angle", f32(52))
	d.put("Y axis angle", f32(56))
	d.put("Z axis angle", f32(60))
	d.put("Column axis sequence", i32(64))
	d.put("Row axis sequence", i32(68))
	d.put("Section axis sequence", i32(72))
	d.put("Wavelength 1 min. intensity", f32(76))
	d.put("Wavelength 1 max. intensity", f32(80))
	d.put("Wavelength 1 mean intensity", f32(84))
	d.put("Space group number", i32(88))
	d.put("Number of Sub-resolution sets", i16(132))
	d.put("Z axis reduction quotient", i16(134))
	d.put("Wavelength 2 min. intensity", f32(136))
	d.put("Wavelength 2 max. intensity", f32(140))
	d.put("Wavelength 3 min. intensity", f32(144))
	d.put("Wavelength 3 max. intensity", f32(148))
	d.put("Wavelength 4 min. intensity", f32(152))
	d.put("Wavelength 4 max. intensity", f32(156))

	imageType, found := dvImageTypes[i16(160)]
	if !found {
		imageType = "unknown"
	}
	d.put("Image Type", imageType)
	d.put("Lens ID Number", i16(162))
	d.put("Wavelength 5 min. intensity", f32(172))
	d.put("Wavelength 5 max. intensity", f32(176))

	numT := u16(180)
	d.put("Number of timepoints", numT)
	d.attr("Pixels", "SizeT", numT)

	var sequence, dimOrder string
	switch u16(182) {
	case 0:
		sequence, dimOrder = "ZTW", "XYZTC"
	case 1:
		sequence, dimOrder = "WZT", "XYCZT"
	case 2:
		sequence, dimOrder = "ZWT", "XYZCT"
	default:
		sequence, dimOrder = "unknown", "XYZTC"
	}
	d.put("Image sequence", sequence)
	d.attr("Pixels", "DimensionOrder", dimOrder)

	d.put("X axis tilt angle", f32(184))
	d.put("Y axis tilt angle", f32(188))
	d.put("Z axis tilt angle", f32(192))

	numW := u16(196)
	d.put("Number of wavelengths", numW)
	d.attr("Pixels", "SizeC", numW)

	numZ := d.numImages / (max(numW, 1) * max(numT, 1))
	d.put("Number of focal planes", numZ)
	d.attr("Pixels", "SizeZ", numZ)

	for i := range 5 {
		d.put("Wavelength "+strconv.Itoa(i+1)+" (in nm)", i16(198+int64(2*i)))
	}

	xOrigin, yOrigin, zOrigin := f32(208), f32(212), f32(216)
	d.put("X origin (in um)", xOrigin)
	d.put("Y origin (in um)", yOrigin)
	d.put("Z origin (in um)", zOrigin)
	d.attr("StageLabel", "X", xOrigin)
	d.attr("StageLabel", "Y", yOrigin)
	d.attr("StageLabel", "Z", zOrigin)

	d.put("Number of titles", i32(220))
	d.seek(224)
	for i := 1; i <= 10; i++ {
		title := d.readFixedString(80)
		d.put("Title "+strconv.Itoa(i), title)
		if i == 1 {
			d.attr("Image", "Description", title)
		}
	}

	return nil
}

func (d *imageDecoderDeltavision) blockCount() int {
	return d.numImages
}

func (d *imageDecoderDeltavision) decodeBlock(i int) (*Plane, error) {
	pt := d.pixelType
	if pt.bytesPerSample == 8 {
		return nil, newUnsupportedSampleWidthErrorf("64 bit complex pixels")
	}
	planeSize := int64(d.width) * int64(d.height) * int64(pt.bytesPerSample)
	offset := dvHeaderSize + d.extSize + int64(i)*planeSize
	return d.readPlaneAt(offset, planeSpec{
		width:          d.width,
		height:         d.height,
		channels:       1,
		bytesPerSample: pt.bytesPerSample,
		byteOrder:      d.byteOrder,
		signed:         pt.signed,
		float:          pt.float,
	})
}
