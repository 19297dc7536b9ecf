// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"unicode/utf16"

	"golang.org/x/image/tiff"
)

// byteWriter builds binary test files.
type byteWriter struct {
	bytes.Buffer
	order binary.ByteOrder
}

func newByteWriter(order binary.ByteOrder) *byteWriter {
	return &byteWriter{order: order}
}

func (w *byteWriter) u8(v int) *byteWriter {
	w.WriteByte(uint8(v))
	return w
}

func (w *byteWriter) u16(v int) *byteWriter {
	var b [2]byte
	w.order.PutUint16(b[:], uint16(v))
	w.Write(b[:])
	return w
}

func (w *byteWriter) u32(v int) *byteWriter {
	var b [4]byte
	w.order.PutUint32(b[:], uint32(v))
	w.Write(b[:])
	return w
}

func (w *byteWriter) f32(v float32) *byteWriter {
	return w.u32(int(math.Float32bits(v)))
}

func (w *byteWriter) f64(v float64) *byteWriter {
	var b [8]byte
	w.order.PutUint64(b[:], math.Float64bits(v))
	w.Write(b[:])
	return w
}

// str writes s NUL padded to n bytes.
func (w *byteWriter) str(s string, n int) *byteWriter {
	b := make([]byte, n)
	copy(b, s)
	w.Write(b)
	return w
}

func (w *byteWriter) raw(b ...byte) *byteWriter {
	w.Write(b)
	return w
}

// padTo pads with zeros up to offset n.
func (w *byteWriter) padTo(n int) *byteWriter {
	for w.Len() < n {
		w.WriteByte(0)
	}
	return w
}

func (w *byteWriter) utf16(s string) *byteWriter {
	for _, r := range utf16.Encode([]rune(s)) {
		w.u16(int(r))
	}
	return w
}

func writeTestFile(t testing.TB, dir, name string, b []byte) string {
	t.Helper()
	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return filename
}

// bioRadFile creates a Bio-Rad PIC file with npic byte format images of nx*ny
// pixels. The pixel values are 0, 1, 2, ...
func bioRadFile(nx, ny, npic int, notes []BioRadNote) []byte {
	w := newByteWriter(binary.LittleEndian)
	w.u16(nx).u16(ny).u16(npic)
	w.u16(0).u16(255) // ramp1
	w.u32(len(notes))
	w.u16(1) // byte format
	w.u16(0)
	w.str("test.pic", 32)
	w.u16(0).u16(7)
	w.u16(bioRadFileID)
	w.u16(0).u16(255) // ramp2
	w.u16(7).u16(0)
	w.u16(10) // lens
	w.f32(1.5)
	w.padTo(bioRadHeaderSize)
	for i := range nx * ny * npic {
		w.u8(i)
	}
	for i, n := range notes {
		more := 0
		if i < len(notes)-1 {
			more = 1
		}
		w.u16(n.Level).u32(more).u16(n.Num).u16(n.Status).u16(n.Type).u16(n.X).u16(n.Y)
		w.str(n.Text, 80)
	}
	return w.Bytes()
}

func bioRadVariable(text string) BioRadNote {
	return BioRadNote{Level: 1, Status: bioRadNoteStatusAll, Type: BioRadNoteVariable, Text: text}
}

// deltavisionFile creates a Deltavision file with numImages 16 bit unsigned
// planes of w*h pixels. The pixel values are 0, 1, 2, ...
func deltavisionFile(order binary.ByteOrder, w, h, numImages int) []byte {
	b := newByteWriter(order)
	b.u32(w).u32(h).u32(numImages).u32(6)
	b.padTo(40)
	b.f32(0.1).f32(0.2).f32(0.3)
	b.padTo(92)
	b.u32(0) // extended header size
	b.u16(dvMagic)
	b.padTo(180)
	b.u16(1) // timepoints
	b.u16(0) // sequence
	b.padTo(196)
	b.u16(1) // wavelengths
	b.padTo(208)
	b.f32(1).f32(2).f32(3)
	b.u32(1)
	b.str("A title", 80)
	b.padTo(dvHeaderSize)
	for i := range w * h * numImages {
		b.u16(i)
	}
	return b.Bytes()
}

// gatanWriter writes DM3 tag trees: the structure big endian, the data little endian.
type gatanWriter struct {
	s *byteWriter
}

func newGatanWriter() *gatanWriter {
	g := &gatanWriter{s: newByteWriter(binary.BigEndian)}
	g.s.u32(3).u32(0).u32(1) // version, length, little endian data
	return g
}

func (g *gatanWriter) group(label string, n int) *gatanWriter {
	g.s.u8(gatanTagGroup).u16(len(label)).str(label, len(label))
	g.s.u16(0).u32(n)
	return g
}

func (g *gatanWriter) dataHeader(label string, info ...int) {
	g.s.u8(gatanTagData).u16(len(label)).str(label, len(label))
	g.s.raw('%', '%', '%', '%')
	g.s.u32(len(info))
	for _, v := range info {
		g.s.u32(v)
	}
}

func (g *gatanWriter) uint32Value(label string, v int) *gatanWriter {
	g.dataHeader(label, gatanTypeUint32)
	binary.Write(g.s, binary.LittleEndian, uint32(v))
	return g
}

// stringValue writes a string tag. Its type and length are little endian, like the data.
func (g *gatanWriter) stringValue(label, v string) *gatanWriter {
	g.s.u8(gatanTagData).u16(len(label)).str(label, len(label))
	g.s.raw('%', '%', '%', '%')
	g.s.u32(2)
	binary.Write(g.s, binary.LittleEndian, []uint32{gatanTypeString, uint32(len(v))})
	g.s.str(v, len(v))
	return g
}

func (g *gatanWriter) uint16Array(label string, v ...uint16) *gatanWriter {
	g.dataHeader(label, gatanTypeArray, gatanTypeUint16, len(v))
	binary.Write(g.s, binary.LittleEndian, v)
	return g
}

func (g *gatanWriter) uint8Array(label string, v ...uint8) *gatanWriter {
	g.dataHeader(label, gatanTypeArray, gatanTypeUint8, len(v))
	g.s.raw(v...)
	return g
}

// gatanFile creates a DM3 file with a thumbnail and a 3x2 16 bit image with the values 1..6.
func gatanFile() []byte {
	g := newGatanWriter()
	g.s.u16(0).u32(2) // root group
	g.stringValue("Name", "cells")
	g.group("ImageList", 2)
	g.group("", 1)
	g.group("ImageData", 1)
	g.uint8Array("Data", 9, 9, 9, 9)
	g.group("", 1)
	g.group("ImageData", 4)
	g.uint16Array("Data", 1, 2, 3, 4, 5, 6)
	g.group("Dimensions", 2)
	g.uint32Value("", 3)
	g.uint32Value("", 2)
	g.uint32Value("DataType", 10)
	g.uint32Value("PixelDepth", 2)
	return g.s.Bytes()
}

// tiffEntry is an IFD entry for tiffFile.
type tiffEntry struct {
	tag   uint16
	typ   uint16
	count int
	// Inline values (at most 4 bytes) or, if data is set, the value bytes.
	value int
	data  []byte
}

// tiffFile creates a little endian TIFF with one IFD and appends strip to it.
// The entry with the StripOffsets tag gets the offset of strip.
func tiffFile(entries []tiffEntry, strip []byte) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
	const ifdOffset = 8
	dataOffset := ifdOffset + 2 + 12*len(entries) + 4

	var data []byte
	w := newByteWriter(binary.LittleEndian)
	w.raw('I', 'I').u16(42).u32(ifdOffset)
	w.u16(len(entries))
	var stripEntry bool
	for _, e := range entries {
		w.u16(int(e.tag)).u16(int(e.typ)).u32(e.count)
		switch {
		case e.tag == tiffTagStripOffsets:
			stripEntry = true
			w.u32(-1) // patched below
		case e.data != nil:
			w.u32(dataOffset + len(data))
			data = append(data, e.data...)
		case e.typ == 3:
			w.u16(e.value).u16(0)
		default:
			w.u32(e.value)
		}
	}
	w.u32(0)
	w.Write(data)
	b := w.Bytes()
	if stripEntry {
		for i, e := range entries {
			if e.tag == tiffTagStripOffsets {
				binary.LittleEndian.PutUint32(b[ifdOffset+2+12*i+8:], uint32(len(b)))
			}
		}
	}
	return append(b, strip...)
}

// grayTIFF encodes a w*h 8 bit gray TIFF with the pixel values start, start+1, ...
func grayTIFF(t testing.TB, w, h, start int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(start + i)
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// cfbEntry is a storage or stream of a compound document built by cfbFile.
type cfbEntry struct {
	name     string
	data     []byte
	children []cfbEntry
}

const (
	cfbSectorSize = 512
	cfbMinStream  = 4096
	cfbNoStream   = 0xFFFFFFFF
	cfbEndOfChain = 0xFFFFFFFE
	cfbFATSector  = 0xFFFFFFFD
	cfbFreeSector = 0xFFFFFFFF
)

// cfbFile creates a version 3 compound document holding entries.
// Streams are padded to the mini stream cutoff so that all of them live in regular sectors.
func cfbFile(entries []cfbEntry) []byte {
	type dirEntry struct {
		name               string
		typ                int
		left, right, child uint32
		start              uint32
		size               int
	}

	var (
		dir     = []dirEntry{{name: "Root Entry", typ: 5, left: cfbNoStream, right: cfbNoStream, child: cfbNoStream, start: cfbEndOfChain}}
		streams [][]byte
	)

	var add func(parent int, list []cfbEntry)
	add = func(parent int, list []cfbEntry) {
		prev := -1
		for _, e := range list {
			idx := len(dir)
			de := dirEntry{name: e.name, typ: 1, left: cfbNoStream, right: cfbNoStream, child: cfbNoStream}
			if e.children == nil {
				de.typ = 2
				data := make([]byte, max(len(e.data), cfbMinStream))
				copy(data, e.data)
				de.size = len(data)
				de.start = uint32(len(streams)) // patched to a sector below
				streams = append(streams, data)
			}
			dir = append(dir, de)
			if prev < 0 {
				dir[parent].child = uint32(idx)
			} else {
				dir[prev].right = uint32(idx)
			}
			prev = idx
			if e.children != nil {
				add(idx, e.children)
			}
		}
	}
	add(0, entries)

	numDirSectors := (len(dir)*128 + cfbSectorSize - 1) / cfbSectorSize
	fat := []uint32{cfbFATSector}
	firstDir := uint32(len(fat))
	for i := range numDirSectors {
		if i == numDirSectors-1 {
			fat = append(fat, cfbEndOfChain)
		} else {
			fat = append(fat, uint32(len(fat)+1))
		}
	}
	var streamStarts []uint32
	for _, s := range streams {
		streamStarts = append(streamStarts, uint32(len(fat)))
		n := (len(s) + cfbSectorSize - 1) / cfbSectorSize
		for i := range n {
			if i == n-1 {
				fat = append(fat, cfbEndOfChain)
			} else {
				fat = append(fat, uint32(len(fat)+1))
			}
		}
	}
	if len(fat) > cfbSectorSize/4 {
		panic("cfbFile: too many sectors")
	}
	for i := range dir {
		if dir[i].typ == 2 {
			dir[i].start = streamStarts[dir[i].start]
		}
	}

	w := newByteWriter(binary.LittleEndian)
	w.raw(0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1)
	w.padTo(24)
	w.u16(0x3E).u16(3).u16(0xFFFE).u16(9).u16(6)
	w.padTo(40)
	w.u32(0) // directory sectors, always 0 in version 3
	w.u32(1) // FAT sectors
	w.u32(int(firstDir))
	w.u32(0)
	w.u32(cfbMinStream)
	w.u32(cfbEndOfChain).u32(0) // mini FAT
	w.u32(cfbEndOfChain).u32(0) // DIFAT
	w.u32(0)                    // first FAT sector
	for w.Len() < cfbSectorSize {
		w.u32(cfbFreeSector)
	}

	// FAT.
	for _, v := range fat {
		w.u32(int(v))
	}
	for w.Len() < 2*cfbSectorSize {
		w.u32(cfbFreeSector)
	}

	// Directory.
	for _, de := range dir {
		start := w.Len()
		name := utf16.Encode([]rune(de.name))
		for _, r := range name {
			w.u16(int(r))
		}
		w.padTo(start + 64)
		w.u16(2 * (len(name) + 1))
		w.u8(de.typ).u8(1)
		w.u32(int(de.left)).u32(int(de.right)).u32(int(de.child))
		w.padTo(start + 116)
		w.u32(int(de.start))
		w.u32(de.size).u32(0)
	}
	for w.Len()%cfbSectorSize != 0 {
		start := w.Len()
		w.padTo(start + 68)
		w.u32(cfbNoStream).u32(cfbNoStream).u32(cfbNoStream)
		w.padTo(start + 128)
	}

	for _, s := range streams {
		w.Write(s)
		w.padTo((w.Len() + cfbSectorSize - 1) / cfbSectorSize * cfbSectorSize)
	}
	return w.Bytes()
}
