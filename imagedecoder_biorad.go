// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"strconv"
)

const (
	bioRadFileID     = 12345
	bioRadHeaderSize = 76
	bioRadLUTSize    = 768
	bioRadMaxLUTs    = 3
)

// Calibration units.
const (
	unitMicron = "micron"
	unitSecond = "s"
)

var bioRadMergeNames = []string{
	"MERGE_OFF", "MERGE_16", "MERGE_ALTERNATE", "MERGE_COLUMN",
	"MERGE_ROW", "MERGE_MAXIMUM", "MERGE_OPT12", "MERGE_OPT12_V2",
}

// BioRadLUT is a Bio-Rad colour table: 256 red, 256 green and 256 blue entries.
type BioRadLUT [3][256]uint8

type bioRadHeader struct {
	nx, ny, npic         int
	ramp1Min, ramp1Max   int
	notes                bool
	byteFormat           bool
	imageNumber          int
	name                 string
	merged               int
	color1               int
	fileID               int
	ramp2Min, ramp2Max   int
	color2, edited, lens int
	magFactor            float32
}

func (h bioRadHeader) bytesPerPixel() int {
	if h.byteFormat {
		return 1
	}
	return 2
}

type imageDecoderBioRad struct {
	*baseDecoder
	header      bioRadHeader
	calibration *Calibration
}

func (d *imageDecoderBioRad) init() error {
	d.byteOrder = binary.LittleEndian
	if err := d.checkAvailable(bioRadHeaderSize); err != nil {
		return err
	}

	h := &d.header
	h.nx = int(d.read2())
	h.ny = int(d.read2())
	h.npic = int(d.read2())
	h.ramp1Min = int(d.read2())
	h.ramp1Max = int(d.read2())
	h.notes = d.read4() != 0
	h.byteFormat = d.read2() != 0
	h.imageNumber = int(d.read2())
	h.name = d.readFixedString(32)
	h.merged = int(d.read2())
	h.color1 = int(d.read2())
	h.fileID = int(d.read2())
	h.ramp2Min = int(d.read2())
	h.ramp2Max = int(d.read2())
	h.color2 = int(d.read2())
	h.edited = int(d.read2())
	h.lens = int(d.read2())
	h.magFactor = d.readF32()
	d.skip(6)

	if h.fileID != bioRadFileID {
		return newBadHeaderErrorf("file id %d, expected %d", h.fileID, bioRadFileID)
	}

	merged := strconv.Itoa(h.merged)
	if h.merged < len(bioRadMergeNames) {
		merged = bioRadMergeNames[h.merged]
	}

	d.put("nx", h.nx)
	d.put("ny", h.ny)
	d.put("npic", h.npic)
	d.put("ramp1_min", h.ramp1Min)
	d.put("ramp1_max", h.ramp1Max)
	d.put("notes", h.notes)
	d.put("byte_format", h.byteFormat)
	d.put("image_number", h.imageNumber)
	d.put("name", h.name)
	d.put("merged", merged)
	d.put("color1", h.color1)
	d.put("file_id", h.fileID)
	d.put("ramp2_min", h.ramp2Min)
	d.put("ramp2_max", h.ramp2Max)
	d.put("color2", h.color2)
	d.put("edited", h.edited)
	d.put("lens", h.lens)
	d.put("mag_factor", h.magFactor)

	// Notes and colour tables follow the pixel data.
	pixelBytes := int64(h.bytesPerPixel()) * int64(h.npic) * int64(h.nx) * int64(h.ny)
	if pixelBytes > d.remaining() {
		return newTruncatedErrorf("pixel data needs %d bytes, have %d", pixelBytes, d.remaining())
	}
	d.skip(pixelBytes)

	var notes []BioRadNote
	for more := h.notes; more; {
		var note BioRadNote
		note, more = d.readBioRadNote()
		notes = append(notes, note)
		d.put("note"+strconv.Itoa(len(notes)), note)
	}

	var luts []BioRadLUT
	for len(luts) < bioRadMaxLUTs && d.remaining() >= bioRadLUTSize {
		var lut BioRadLUT
		for c := range lut {
			copy(lut[c][:], d.readBytesVolatile(256))
		}
		luts = append(luts, lut)
	}
	d.put("luts", luts)

	d.analyzeNotes(notes)

	d.attr("Image", "Name", h.name)
	d.attr("Pixels", "SizeX", h.nx)
	d.attr("Pixels", "SizeY", h.ny)
	d.attr("Pixels", "SizeZ", h.npic)
	d.attr("Pixels", "SizeT", 1)
	d.attr("Pixels", "SizeC", 1)
	if h.byteFormat {
		d.attr("Image", "PixelType", "Uint8")
	} else {
		d.attr("Image", "PixelType", "Uint16")
	}

	return nil
}

// analyzeNotes extracts the axis calibration and the numeric variables from the notes.
func (d *imageDecoderBioRad) analyzeNotes(notes []BioRadNote) {
	c := &Calibration{}
	var haveX, haveY bool
	for i, note := range notes {
		info := note.analyze()
		switch info.kind {
		case bioRadNoteInvalid:
			d.warnf("biorad: invalid %s note %d %q: %s", note.TypeName(), i+1, note.Text, info.reason)
		case bioRadNoteMetadata:
			d.put(info.name, info.value)
		case bioRadNoteHorizontalUnit:
			if haveX {
				d.warnf("biorad: ignoring extra AXIS_2 note")
				continue
			}
			haveX = true
			c.XOrigin, c.XStep, c.XUnit = info.origin, info.step, unitMicron
		case bioRadNoteVerticalUnit:
			if haveY {
				d.warnf("biorad: ignoring extra AXIS_3 note")
				continue
			}
			haveY = true
			c.YOrigin, c.YStep, c.YUnit = info.origin, info.step, unitMicron
			if info.time {
				c.YUnit = unitSecond
			}
		}
	}
	if !haveX && !haveY {
		return
	}
	if c.XStep == 0 {
		c.XStep = 1
	}
	if c.YStep == 0 {
		c.YStep = 1
	}
	d.calibration = c
}

func (d *imageDecoderBioRad) blockCount() int {
	return d.header.npic
}

func (d *imageDecoderBioRad) decodeBlock(i int) (*Plane, error) {
	h := d.header
	bpp := h.bytesPerPixel()
	offset := int64(bioRadHeaderSize) + int64(i)*int64(h.nx)*int64(h.ny)*int64(bpp)
	p, err := d.readPlaneAt(offset, planeSpec{
		width:          h.nx,
		height:         h.ny,
		channels:       1,
		bytesPerSample: bpp,
		byteOrder:      binary.LittleEndian,
	})
	if err != nil {
		return nil, err
	}
	if d.calibration != nil {
		c := *d.calibration
		p.Calibration = &c
	}
	return p, nil
}
