// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// encoderBioRad writes Bio-Rad PIC files.
// All values, pixels included, are written little endian.
type encoderBioRad struct {
	w   *bufio.Writer
	buf [4]byte
	err error
}

func newEncoderBioRad(w io.Writer) *encoderBioRad {
	return &encoderBioRad{w: bufio.NewWriter(w)}
}

func (e *encoderBioRad) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoderBioRad) put2(v int) {
	binary.LittleEndian.PutUint16(e.buf[:2], uint16(v))
	e.write(e.buf[:2])
}

func (e *encoderBioRad) put4(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

// putString writes s truncated or NUL padded to n bytes.
func (e *encoderBioRad) putString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	e.write(b)
}

// bioRadImages flattens planes into single-channel images; each channel of a
// multi-channel plane becomes its own image.
func bioRadImages(planes []*Plane) (images [][]float64, width, height int, byteFormat bool, err error) {
	if len(planes) == 0 {
		return nil, 0, 0, false, fmt.Errorf("%w: no planes", ErrBadHeader)
	}
	width, height = planes[0].Width, planes[0].Height
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, 0, 0, false, newBadHeaderErrorf("plane size %dx%d not representable", width, height)
	}
	byteFormat = true
	for i, p := range planes {
		if p.Width != width || p.Height != height {
			return nil, 0, 0, false, newBadHeaderErrorf("plane %d is %dx%d, expected %dx%d", i, p.Width, p.Height, width, height)
		}
		if p.PixelType != Uint8 {
			byteFormat = false
		}
		for c, samples := range p.Channels {
			if len(samples) != width*height {
				return nil, 0, 0, false, newBadHeaderErrorf("plane %d channel %d has %d samples, expected %d", i, c, len(samples), width*height)
			}
			images = append(images, samples)
		}
	}
	if len(images) > math.MaxUint16 {
		return nil, 0, 0, false, newBadHeaderErrorf("%d images, max is %d", len(images), math.MaxUint16)
	}
	return images, width, height, byteFormat, nil
}

// bioRadNotesFromMetadata returns the notes stored as note1, note2, ... in meta.
func bioRadNotesFromMetadata(meta *Metadata) []BioRadNote {
	var notes []BioRadNote
	if meta == nil {
		return nil
	}
	meta.Range(func(key string, v any) bool {
		if note, ok := v.(BioRadNote); ok && strings.HasPrefix(key, "note") {
			notes = append(notes, note)
		}
		return true
	})
	return notes
}

func (e *encoderBioRad) encode(planes []*Plane, meta *Metadata) error {
	images, width, height, byteFormat, err := bioRadImages(planes)
	if err != nil {
		return err
	}

	notes := bioRadNotesFromMetadata(meta)
	if len(notes) == 0 {
		if c := planes[0].Calibration; c != nil {
			notes = append(notes,
				bioRadAxisNote(true, c.XOrigin, c.XStep, c.XUnit),
				bioRadAxisNote(false, c.YOrigin, c.YStep, c.YUnit),
			)
		}
	}

	var luts []BioRadLUT
	if meta != nil {
		if v, found := meta.Get("luts"); found {
			luts, _ = v.([]BioRadLUT)
		}
	}
	if len(luts) > bioRadMaxLUTs {
		return newBadHeaderErrorf("%d colour tables, max is %d", len(luts), bioRadMaxLUTs)
	}

	var format int
	if byteFormat {
		format = 1
	}

	// Header.
	e.put2(width)
	e.put2(height)
	e.put2(len(images))
	e.put2(metaInt(meta, "ramp1_min", 0))
	e.put2(metaInt(meta, "ramp1_max", 255))
	e.put4(uint32(len(notes)))
	e.put2(format)
	e.put2(0) // image number
	e.putString(metaString(meta, "name", ""), 32)
	e.put2(0) // merged
	e.put2(7) // color1
	e.put2(bioRadFileID)
	e.put2(metaInt(meta, "ramp2_min", 0))
	e.put2(metaInt(meta, "ramp2_max", 255))
	e.put2(7) // color2
	e.put2(1) // edited
	e.put2(metaInt(meta, "lens", 0))
	magFactor := 0.0
	if meta != nil {
		if v, found := meta.Get("mag_factor"); found {
			if f := toFloat64(v); !math.IsNaN(f) {
				magFactor = f
			}
		}
	}
	e.put4(math.Float32bits(float32(magFactor)))
	e.write(make([]byte, 6))

	// Pixels.
	for _, samples := range images {
		if byteFormat {
			b := make([]byte, len(samples))
			for i, v := range samples {
				b[i] = uint8(clamp(v, 0, math.MaxUint8))
			}
			e.write(b)
			continue
		}
		b := make([]byte, 2*len(samples))
		for i, v := range samples {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(clamp(v, 0, math.MaxUint16)))
		}
		e.write(b)
	}

	// Notes.
	for i, note := range notes {
		more := uint32(0)
		if i < len(notes)-1 {
			more = 1
		}
		e.put2(note.Level)
		e.put4(more)
		e.put2(note.Num)
		e.put2(note.Status)
		e.put2(note.Type)
		e.put2(note.X)
		e.put2(note.Y)
		e.putString(note.Text, 80)
	}

	// Colour tables.
	for _, lut := range luts {
		for c := range lut {
			e.write(lut[c][:])
		}
	}

	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}
