// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rwcarlsen/goexif/tiff"
)

// Baseline TIFF tags used by the TIFF based formats.
const (
	tiffTagNewSubfileType  = 254
	tiffTagImageWidth      = 256
	tiffTagImageLength     = 257
	tiffTagBitsPerSample   = 258
	tiffTagCompression     = 259
	tiffTagPhotometric     = 262
	tiffTagDescription     = 270
	tiffTagStripOffsets    = 273
	tiffTagSamplesPerPixel = 277
	tiffTagStripByteCounts = 279
	tiffTagPlanarConfig    = 284
	tiffTagDateTime        = 306
	tiffTagPredictor       = 317
	tiffTagSampleFormat    = 339
)

const (
	tiffPhotometricBlackIsZero = 1
	tiffPhotometricRGB         = 2
	tiffPredictorHorizontal    = 2
)

// Max number of IFDs followed in one file.
const tiffMaxIFDs = 1 << 16

var tiffStandardTags = []struct {
	id   uint16
	name string
}{
	{tiffTagNewSubfileType, "NewSubfileType"},
	{tiffTagImageWidth, "ImageWidth"},
	{tiffTagImageLength, "ImageLength"},
	{tiffTagBitsPerSample, "BitsPerSample"},
	{tiffTagCompression, "Compression"},
	{tiffTagPhotometric, "PhotometricInterpretation"},
	{tiffTagDescription, "ImageDescription"},
	{tiffTagSamplesPerPixel, "SamplesPerPixel"},
	{tiffTagPlanarConfig, "PlanarConfiguration"},
	{tiffTagDateTime, "DateTime"},
	{tiffTagPredictor, "Predictor"},
	{tiffTagSampleFormat, "SampleFormat"},
}

// tiffIFD wraps a decoded image file directory.
type tiffIFD struct {
	tags  map[uint16]*tiff.Tag
	order binary.ByteOrder
}

func newTIFFIFD(dir *tiff.Dir, order binary.ByteOrder) tiffIFD {
	tags := make(map[uint16]*tiff.Tag, len(dir.Tags))
	for _, t := range dir.Tags {
		tags[t.Id] = t
	}
	return tiffIFD{tags: tags, order: order}
}

// intVal returns the first value of the integer tag id, or def if it is missing.
func (ifd tiffIFD) intVal(id uint16, def int) int {
	t, found := ifd.tags[id]
	if !found || t.Format() != tiff.IntVal || t.Count == 0 {
		return def
	}
	v, err := t.Int(0)
	if err != nil {
		return def
	}
	return v
}

// intVals returns all values of the integer tag id.
func (ifd tiffIFD) intVals(id uint16) []int64 {
	t, found := ifd.tags[id]
	if !found || t.Format() != tiff.IntVal {
		return nil
	}
	vals := make([]int64, 0, t.Count)
	for i := range int(t.Count) {
		v, err := t.Int64(i)
		if err != nil {
			return nil
		}
		vals = append(vals, v)
	}
	return vals
}

func (ifd tiffIFD) stringVal(id uint16) string {
	t, found := ifd.tags[id]
	if !found || t.Format() != tiff.StringVal {
		return ""
	}
	s, err := t.StringVal()
	if err != nil {
		return ""
	}
	return printableString(s)
}

// raw returns the undecoded value bytes of tag id.
func (ifd tiffIFD) raw(id uint16) []byte {
	if t, found := ifd.tags[id]; found {
		return t.Val
	}
	return nil
}

// walkIFDs decodes the IFD chain of the TIFF file of size bytes in ra.
// The directories are decoded lazily from ra, which need not fit in memory.
func walkIFDs(ra io.ReaderAt, size int64) ([]tiffIFD, error) {
	r := io.NewSectionReader(ra, 0, size)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, newTruncatedErrorf("TIFF header: %v", err)
	}
	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: no TIFF byte order mark", ErrFormatMismatch)
	}
	if order.Uint16(header[2:]) != 42 {
		return nil, fmt.Errorf("%w: no TIFF magic", ErrFormatMismatch)
	}

	var ifds []tiffIFD
	seen := make(map[uint32]bool)
	offset := order.Uint32(header[4:])
	for offset != 0 {
		if seen[offset] {
			return nil, newBadHeaderErrorf("IFD chain loops back to offset %d", offset)
		}
		if len(seen) >= tiffMaxIFDs {
			return nil, newBadHeaderErrorf("more than %d IFDs", tiffMaxIFDs)
		}
		seen[offset] = true
		err := checkIFDEntries(r, int64(offset), order)
		var (
			dir  *tiff.Dir
			next int32
		)
		if err == nil {
			if _, err = r.Seek(int64(offset), io.SeekStart); err == nil {
				dir, next, err = tiff.DecodeDir(r, order)
			}
		}
		if err != nil {
			if len(ifds) > 0 {
				// A broken trailing IFD does not invalidate the ones before it.
				break
			}
			return nil, newBadHeaderErrorf("IFD at %d: %v", offset, err)
		}
		ifds = append(ifds, newTIFFIFD(dir, order))
		offset = uint32(next)
	}
	if len(ifds) == 0 {
		return nil, newBadHeaderErrorf("no IFDs")
	}
	return ifds, nil
}

// Value sizes of the TIFF field types.
var tiffTypeSizes = [...]int64{1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8}

// checkIFDEntries verifies that the values of the IFD at offset fit in r
// before the directory is decoded, as the decoder allocates them up front.
func checkIFDEntries(r *io.SectionReader, offset int64, order binary.ByteOrder) error {
	var n [2]byte
	if _, err := r.ReadAt(n[:], offset); err != nil {
		return newTruncatedErrorf("IFD at %d: %v", offset, err)
	}
	count := int64(order.Uint16(n[:]))
	entries := make([]byte, 12*count)
	if _, err := r.ReadAt(entries, offset+2); err != nil {
		return newTruncatedErrorf("IFD at %d with %d entries: %v", offset, count, err)
	}
	for i := range count {
		e := entries[12*i:]
		typ := int(order.Uint16(e[2:]))
		if typ <= 0 || typ >= len(tiffTypeSizes) {
			return newBadHeaderErrorf("IFD at %d: tag %d has unknown type %d", offset, order.Uint16(e), typ)
		}
		if n := int64(order.Uint32(e[4:])) * tiffTypeSizes[typ]; n > r.Size() {
			return newTruncatedErrorf("IFD at %d: tag %d declares %d bytes", offset, order.Uint16(e), n)
		}
	}
	return nil
}

// decodeTIFF returns the first IFD of the TIFF held in b.
func decodeTIFF(b []byte) (tiffIFD, error) {
	ifds, err := walkIFDs(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return tiffIFD{}, fmt.Errorf("embedded TIFF: %w", err)
	}
	return ifds[0], nil
}

// putTIFFMetadata stores the baseline tags of ifd.
func (d *baseDecoder) putTIFFMetadata(ifd tiffIFD) {
	for _, st := range tiffStandardTags {
		t, found := ifd.tags[st.id]
		if !found {
			continue
		}
		switch t.Format() {
		case tiff.IntVal:
			vals := ifd.intVals(st.id)
			switch len(vals) {
			case 0:
			case 1:
				d.put(st.name, vals[0])
			default:
				d.put(st.name, vals)
			}
		case tiff.StringVal:
			d.put(st.name, ifd.stringVal(st.id))
		}
	}
}

// stripSpec returns the geometry of the strip image described by ifd.
func (ifd tiffIFD) stripSpec() (planeSpec, error) {
	bits := ifd.intVals(tiffTagBitsPerSample)
	bps := 1
	if len(bits) > 0 {
		bps = int(bits[0])
	}
	for _, b := range bits {
		if int(b) != bps {
			return planeSpec{}, newUnsupportedSampleWidthErrorf("mixed bits per sample %v", bits)
		}
	}
	if bps%8 != 0 {
		return planeSpec{}, newUnsupportedSampleWidthErrorf("%d bits per sample", bps)
	}
	s := planeSpec{
		width:          ifd.intVal(tiffTagImageWidth, 0),
		height:         ifd.intVal(tiffTagImageLength, 0),
		channels:       ifd.intVal(tiffTagSamplesPerPixel, 1),
		bytesPerSample: bps / 8,
		byteOrder:      ifd.order,
		layout:         layoutInterleaved,
	}
	if ifd.intVal(tiffTagPlanarConfig, 1) == 2 {
		s.layout = layoutPlanar
	}
	switch ifd.intVal(tiffTagSampleFormat, 1) {
	case 2:
		s.signed = true
	case 3:
		s.float = true
	}
	return s, nil
}

// decodeStrips reads the strip image described by ifd from r.
func (ifd tiffIFD) decodeStrips(r io.ReaderAt, size, limit int64) (*Plane, error) {
	s, err := ifd.stripSpec()
	if err != nil {
		return nil, err
	}
	if _, err := s.size(limit); err != nil {
		return nil, err
	}
	b, err := readStrips(r, size, ifd.intVals(tiffTagStripOffsets), ifd.intVals(tiffTagStripByteCounts), ifd.intVal(tiffTagCompression, compressionNone), limit)
	if err != nil {
		return nil, err
	}
	if ifd.intVal(tiffTagPredictor, 1) == tiffPredictorHorizontal {
		if err := undoHorizontalDifferencing(b, s); err != nil {
			return nil, err
		}
	}
	return decodePlane(b, s)
}
