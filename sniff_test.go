// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestDetect(t *testing.T) {
	c := qt.New(t)

	ole := cfbFile([]cfbEntry{{name: "Contents", data: []byte("x")}})
	ics := []byte("\t\nics_version\t1.0\nfilename\tx\nend\n")

	for _, test := range []struct {
		name string
		head []byte
		want Format
	}{
		{"a.bin", bioRadFile(2, 2, 1, nil), BioRad},
		{"a.bin", deltavisionFile(binary.BigEndian, 2, 2, 1), Deltavision},
		{"a.bin", deltavisionFile(binary.LittleEndian, 2, 2, 1), Deltavision},
		{"a.bin", gatanFile(), Gatan},
		{"a.bin", iplabFile(func(w *byteWriter) {}), IPLab},
		{"a.bin", leicaFile(), Leica},
		{"a.bin", openlabFile(2), Openlab},
		{"a.bin", lsmFile(), LSM},
		{"a.bin", ics, ICS},
		{"a.ics", ics, ICS},
		// OLE2 files are told apart by suffix.
		{"a.zvi", ole, ZVI},
		{"a.IPW", ole, IPW},
		{"a.bin", ole, ZVI},
		// No header match.
		{"a.pic", nil, BioRad},
		{"a.r3d", []byte("garbage"), Deltavision},
		{"a.ids", nil, ICS},
		{"a.lif", nil, Openlab},
		{"a.TIM", nil, PerkinElmer},
		{"a.htm", []byte("<HTML>"), PerkinElmer},
		{"a.tif", grayTIFF(c, 1, 1, 0), FormatAuto},
		{"a.bin", nil, FormatAuto},
		{"", []byte{0}, FormatAuto},
	} {
		c.Assert(Detect(test.name, test.head), qt.Equals, test.want, qt.Commentf("%s %.8q", test.name, test.head))
	}
}

func TestMatchesHeaderShortInput(t *testing.T) {
	c := qt.New(t)

	full := map[Format][]byte{
		BioRad:      bioRadFile(2, 2, 1, nil),
		Deltavision: deltavisionFile(binary.LittleEndian, 2, 2, 1),
		Gatan:       gatanFile(),
		IPLab:       iplabFile(func(w *byteWriter) {}),
		Leica:       leicaFile(),
		Openlab:     openlabFile(2),
		LSM:         lsmFile(),
	}

	for _, f := range Formats() {
		c.Assert(MatchesHeader(f, nil), qt.IsFalse, qt.Commentf("%s", f))
		b, found := full[f]
		if !found {
			continue
		}
		c.Assert(MatchesHeader(f, b), qt.IsTrue, qt.Commentf("%s", f))
		for n := range min(len(b), 128) {
			// Must not panic.
			MatchesHeader(f, b[:n])
		}
	}

	c.Assert(MatchesHeader(PerkinElmer, []byte("anything")), qt.IsFalse)
	c.Assert(MatchesHeader(FormatAuto, bioRadFile(2, 2, 1, nil)), qt.IsFalse)
	c.Assert(MatchesHeader(Format(42), nil), qt.IsFalse)
}

func TestLSMHeaderWithoutZeissTag(t *testing.T) {
	c := qt.New(t)
	c.Assert(isLSMHeader(grayTIFF(c, 1, 1, 0)), qt.IsFalse)
	c.Assert(isLSMHeader(lsmFile()), qt.IsTrue)
	// IFD0 beyond the header cannot be verified.
	c.Assert(isLSMHeader([]byte{'I', 'I', 0x2A, 0, 0xFF, 0xFF, 0, 0}), qt.IsFalse)
	// Entries cut off by the end of the header.
	b := lsmFile()
	ifd := int(binary.LittleEndian.Uint32(b[4:]))
	c.Assert(isLSMHeader(b[:ifd+2+12]), qt.IsFalse)
	c.Assert(isLSMHeader(b[:4]), qt.IsFalse)

	// Such files are still found by their suffix.
	head := []byte{'I', 'I', 0x2A, 0, 0xFF, 0xFF, 0, 0}
	c.Assert(Detect("scan.lsm", head), qt.Equals, LSM)
	c.Assert(Detect("scan.tif", head), qt.Equals, FormatAuto)
}

func TestFormats(t *testing.T) {
	c := qt.New(t)

	formats := Formats()
	c.Assert(formats, qt.HasLen, 11)
	c.Assert(formats[0], qt.Equals, BioRad)
	c.Assert(formats[len(formats)-1], qt.Equals, PerkinElmer)

	seen := make(map[Format]bool)
	for _, f := range formats {
		c.Assert(seen[f], qt.IsFalse)
		seen[f] = true
	}
	c.Assert(seen[FormatAuto], qt.IsFalse)
}

func TestMatchesSuffix(t *testing.T) {
	c := qt.New(t)

	c.Assert(MatchesSuffix(BioRad, "/data/CELLS.PIC"), qt.IsTrue)
	c.Assert(MatchesSuffix(ICS, "cells.ids"), qt.IsTrue)
	c.Assert(MatchesSuffix(Deltavision, "cells.dv"), qt.IsTrue)
	c.Assert(MatchesSuffix(PerkinElmer, "exp.zpo"), qt.IsTrue)
	c.Assert(MatchesSuffix(BioRad, "cells.pict"), qt.IsFalse)
	c.Assert(MatchesSuffix(FormatAuto, "cells.pic"), qt.IsFalse)
}
