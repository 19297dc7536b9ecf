// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var icsEndMarker = []byte("\nend")

// Deflate never expands data by more than this factor.
const maxDeflateRatio = 1032

type imageDecoderICS struct {
	*baseDecoder

	// bits, x, y, z, ch, t
	dims      [6]int
	blocks    int
	signed    bool
	float     bool
	gzipped   bool
	pixelData io.ReaderAt
	pixelSize int64
	dataStart int64

	// Decompressed pixel data, read on first use.
	inflated []byte
}

func (d *imageDecoderICS) init() error {
	var header []byte
	dataFile := d.path
	if hasSuffixFold(d.path, ".ids") {
		icsPath, err := d.findCompanion(".ics")
		if err != nil {
			return err
		}
		if header, err = d.readCompanion(icsPath); err != nil {
			return err
		}
	} else {
		n := min(d.length(), d.opts.LimitTagSize)
		if end := d.scan(icsEndMarker, 0, d.opts.LimitTagSize); end >= 0 {
			n = min(d.length(), end+int64(len(icsEndMarker))+2)
		}
		d.seek(0)
		header = d.readBytes(int(n))
	}
	header = header[:icsHeaderLength(header)]

	kvs := parseICSHeader(header)
	values := make(map[string]string)
	for _, kv := range kvs {
		d.put(kv.key, kv.value)
		values[kv.key] = kv.value
	}

	for i := range d.dims {
		d.dims[i] = 1
	}
	sizes, order := strings.Fields(values["sizes"]), strings.Fields(values["order"])
	if len(sizes) == 0 || len(order) == 0 {
		return newBadHeaderErrorf("missing layout sizes or order")
	}
	for i := 0; i < len(sizes) && i < len(order); i++ {
		n, err := strconv.Atoi(sizes[i])
		if err != nil || n <= 0 {
			return newBadHeaderErrorf("invalid size %q for %s", sizes[i], order[i])
		}
		switch order[i] {
		case "bits":
			d.dims[0] = n
		case "x":
			d.dims[1] = n
		case "y":
			d.dims[2] = n
		case "z":
			d.dims[3] = n
		case "ch":
			d.dims[4] = n
		default:
			if d.dims[5] > math.MaxInt32/n {
				return newBadHeaderErrorf("time sizes overflow at %s %d", order[i], n)
			}
			d.dims[5] *= n
		}
	}
	if d.dims[0]%8 != 0 {
		return newUnsupportedSampleWidthErrorf("%d bits per sample", d.dims[0])
	}

	d.byteOrder = binary.LittleEndian
	if b := strings.Fields(values["byte_order"]); len(b) > 1 {
		first, err1 := strconv.Atoi(b[0])
		last, err2 := strconv.Atoi(b[len(b)-1])
		if err1 == nil && err2 == nil && last < first {
			d.byteOrder = binary.BigEndian
		}
	}
	d.float = values["format"] == "real"
	d.signed = values["sign"] != "unsigned"
	switch c := values["compression"]; c {
	case "", "uncompressed":
	case "gzip":
		d.gzipped = true
	default:
		return fmt.Errorf("%w: compression %q", ErrUnsupportedOperation, c)
	}

	// Version 2 files may keep the pixels behind the header.
	if off, found := values["offset"]; found && !hasSuffixFold(d.path, ".ids") {
		start, err := strconv.ParseInt(off, 10, 64)
		if err != nil || start < 0 || start > d.length() {
			return newBadHeaderErrorf("invalid data offset %q", off)
		}
		d.pixelData, d.pixelSize, d.dataStart = d.ra, d.length(), start
	} else if hasSuffixFold(d.path, ".ids") {
		d.pixelData, d.pixelSize = d.ra, d.length()
	} else {
		idsPath, err := d.findCompanion(".ids")
		if err != nil {
			return err
		}
		f, err := d.openCompanion(idsPath)
		if err != nil {
			return err
		}
		d.pixelData, d.pixelSize = f, int64(f.Len())
		dataFile = idsPath
	}
	avail := d.pixelSize - d.dataStart
	if d.gzipped {
		avail = min(avail, math.MaxInt64/maxDeflateRatio) * maxDeflateRatio
	}
	var err error
	if d.blocks, err = blockTotal(avail, d.dims[3], d.dims[4], d.dims[5]); err != nil {
		return err
	}
	d.put("Data file", filepath.Base(dataFile))

	d.attr("Pixels", "SizeX", d.dims[1])
	d.attr("Pixels", "SizeY", d.dims[2])
	d.attr("Pixels", "SizeZ", d.dims[3])
	d.attr("Pixels", "SizeC", d.dims[4])
	d.attr("Pixels", "SizeT", d.dims[5])
	d.attr("Pixels", "BigEndian", d.byteOrder == binary.BigEndian)
	d.attr("Image", "Name", values["filename"])
	d.attr("Pixels", "DimensionOrder", icsDimensionOrder(order))
	d.attr("Pixels", "PixelType", d.omePixelType(values["significant_bits"]))

	return nil
}

// icsDimensionOrder converts the ICS order (e.g. "bits x y ch z") to an
// OME dimension order (e.g. "XYCZT").
func icsDimensionOrder(order []string) string {
	var sb strings.Builder
	for _, o := range order {
		switch o {
		case "x", "y", "z", "t":
			sb.WriteString(strings.ToUpper(o))
		case "ch":
			sb.WriteString("C")
		}
	}
	s := sb.String()
	for _, c := range []string{"Z", "T", "C"} {
		if !strings.Contains(s, c) {
			s += c
		}
	}
	return s
}

func (d *imageDecoderICS) omePixelType(bits string) string {
	if d.float {
		return "float"
	}
	if bits == "" {
		bits = strconv.Itoa(d.dims[0])
	}
	if d.signed {
		return "int" + bits
	}
	return "Uint" + bits
}

func (d *imageDecoderICS) blockCount() int {
	return d.blocks
}

func (d *imageDecoderICS) spec() planeSpec {
	return planeSpec{
		width:          d.dims[1],
		height:         d.dims[2],
		channels:       1,
		bytesPerSample: d.dims[0] / 8,
		byteOrder:      d.byteOrder,
		signed:         d.signed,
		float:          d.float,
	}
}

func (d *imageDecoderICS) decodeBlock(i int) (*Plane, error) {
	spec := d.spec()
	size, err := spec.size(d.opts.LimitPlaneBytes)
	if err != nil {
		return nil, err
	}
	offset := int64(i) * size

	if d.gzipped {
		if err := d.inflate(size); err != nil {
			return nil, err
		}
		if offset+size > int64(len(d.inflated)) {
			return nil, newTruncatedErrorf("block %d needs %d bytes of decompressed data, have %d", i, offset+size, len(d.inflated))
		}
		return decodePlane(d.inflated[offset:offset+size], spec)
	}

	r := newStreamReaderAt(io.NewSectionReader(d.pixelData, d.dataStart, d.pixelSize-d.dataStart), d.pixelSize-d.dataStart, d.byteOrder)
	return r.readPlane(offset, spec, d.opts.LimitPlaneBytes)
}

// inflate decompresses the gzip pixel stream once.
func (d *imageDecoderICS) inflate(planeSize int64) error {
	if d.inflated != nil {
		return nil
	}
	zr, err := gzip.NewReader(io.NewSectionReader(d.pixelData, d.dataStart, d.pixelSize-d.dataStart))
	if err != nil {
		return fmt.Errorf("%w: gzip: %v", ErrBadHeader, err)
	}
	defer zr.Close()
	if n := int64(d.blocks); n > 0 && planeSize > math.MaxInt64/n {
		return newBadHeaderErrorf("%d blocks of %d bytes overflow", n, planeSize)
	}
	want := planeSize * int64(d.blocks)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(zr, want)); err != nil {
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: gzip: %v", ErrTruncatedStream, err)
		}
		return err
	}
	d.inflated = buf.Bytes()
	return nil
}
