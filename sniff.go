// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/bep/biodecode/internal/ole"
)

// HeaderSize is the number of leading bytes of a file Detect and MatchesHeader look at.
const HeaderSize = 16384

var (
	gatanMagic   = []byte{0x00, 0x00, 0x00, 0x03}
	oleMagic     = []byte{0xD0, 0xCF, 0x11, 0xE0}
	leicaMagicBE = []byte{0x01, 0x60, 0x33, 0xF0}
	leicaMagicLE = []byte{0xF0, 0x33, 0x60, 0x01}
	openlabMagic = []byte{0x00, 0x00, 0xFF, 0xFF, 'i', 'm', 'p', 'r'}
	lsmMagic     = []byte{'I', 'I', 0x2A}
)

type formatProbe struct {
	suffixes []string
	header   func(head []byte) bool
}

// Detection order; the first header match wins.
var formatProbes = []struct {
	format Format
	probe  formatProbe
}{
	{BioRad, formatProbe{suffixes: []string{".pic"}, header: isBioRadHeader}},
	{Gatan, formatProbe{suffixes: []string{".dm3"}, header: isGatanHeader}},
	{IPLab, formatProbe{suffixes: []string{".ipl"}, header: isIPLabHeader}},
	{Leica, formatProbe{suffixes: []string{".lei"}, header: isLeicaHeader}},
	{Openlab, formatProbe{suffixes: []string{".liff", ".lif"}, header: isOpenlabHeader}},
	{LSM, formatProbe{suffixes: []string{".lsm"}, header: isLSMHeader}},
	{ZVI, formatProbe{suffixes: []string{".zvi"}, header: isZVIHeader}},
	{IPW, formatProbe{suffixes: []string{".ipw"}, header: isIPWHeader}},
	{ICS, formatProbe{suffixes: []string{".ics", ".ids"}, header: isICSHeader}},
	{Deltavision, formatProbe{suffixes: []string{".dv", ".r3d"}, header: isDeltavisionHeader}},
	{PerkinElmer, formatProbe{suffixes: []string{".tim", ".zpo", ".csv", ".htm"}}},
}

func lookupProbe(f Format) (formatProbe, bool) {
	for _, p := range formatProbes {
		if p.format == f {
			return p.probe, true
		}
	}
	return formatProbe{}, false
}

// Formats returns all supported formats in detection order.
func Formats() []Format {
	formats := make([]Format, len(formatProbes))
	for i, p := range formatProbes {
		formats[i] = p.format
	}
	return formats
}

// MatchesSuffix reports whether name has one of the file suffixes of f, ignoring case.
func MatchesSuffix(f Format, name string) bool {
	p, ok := lookupProbe(f)
	if !ok {
		return false
	}
	return hasSuffixFold(name, p.suffixes...)
}

// MatchesHeader reports whether head, the first bytes of a file, looks like f.
// It returns false for formats without a magic number and never panics on short input.
func MatchesHeader(f Format, head []byte) bool {
	p, ok := lookupProbe(f)
	if !ok || p.header == nil {
		return false
	}
	return p.header(head)
}

// Detect returns the format of the file with the given name and leading bytes,
// or FormatAuto if none matched.
// Header matches win over suffix matches, except that formats sharing a
// container signature are told apart by suffix.
func Detect(name string, head []byte) Format {
	var matches []Format
	for _, p := range formatProbes {
		if p.probe.header != nil && p.probe.header(head) {
			matches = append(matches, p.format)
		}
	}
	for _, f := range matches {
		if MatchesSuffix(f, name) {
			return f
		}
	}
	if len(matches) > 0 {
		return matches[0]
	}
	for _, p := range formatProbes {
		if hasSuffixFold(name, p.probe.suffixes...) {
			return p.format
		}
	}
	return FormatAuto
}

func isBioRadHeader(head []byte) bool {
	if len(head) < 56 {
		return false
	}
	return binary.LittleEndian.Uint16(head[54:]) == bioRadFileID
}

func isGatanHeader(head []byte) bool {
	return bytes.HasPrefix(head, gatanMagic)
}

func isIPLabHeader(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	var order binary.ByteOrder
	switch string(head[:4]) {
	case "iiii":
		order = binary.LittleEndian
	case "mmmm":
		order = binary.BigEndian
	default:
		return false
	}
	return order.Uint32(head[4:]) == 4 && order.Uint32(head[8:]) >= iplabMinVersion
}

func isLeicaHeader(head []byte) bool {
	for _, off := range []int{0, 4} {
		if len(head) < off+4 {
			return false
		}
		m := head[off : off+4]
		if bytes.Equal(m, leicaMagicBE) || bytes.Equal(m, leicaMagicLE) {
			return true
		}
	}
	return false
}

func isOpenlabHeader(head []byte) bool {
	return bytes.HasPrefix(head, openlabMagic)
}

// isLSMHeader looks for the Zeiss private tag in IFD0 of a little endian TIFF.
// A TIFF whose IFD0 is not entirely within head is left to the suffix match.
func isLSMHeader(head []byte) bool {
	if !bytes.HasPrefix(head, lsmMagic) || len(head) < 8 {
		return false
	}
	ifd := int64(binary.LittleEndian.Uint32(head[4:]))
	if ifd+2 > int64(len(head)) {
		return false
	}
	n := int64(binary.LittleEndian.Uint16(head[ifd:]))
	if ifd+2+n*12 > int64(len(head)) {
		return false
	}
	for i := range n {
		switch binary.LittleEndian.Uint16(head[ifd+2+i*12:]) {
		case lsmTagZeissPrivate, lsmTagInfo:
			return true
		}
	}
	return false
}

func isZVIHeader(head []byte) bool {
	return ole.IsCompoundDocument(head)
}

func isIPWHeader(head []byte) bool {
	return bytes.HasPrefix(head, oleMagic)
}

func isICSHeader(head []byte) bool {
	if len(head) > 256 {
		head = head[:256]
	}
	// The first line declares the field and line separators.
	i := bytes.IndexAny(head, "\n\r")
	if i < 0 || i > 3 {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(string(head[i:]), "\r\n"), "ics_version")
}

func isDeltavisionHeader(head []byte) bool {
	if len(head) < dvHeaderSize {
		return false
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if order.Uint16(head[96:]) != dvMagic {
			continue
		}
		w, h, n := int32(order.Uint32(head)), int32(order.Uint32(head[4:])), int32(order.Uint32(head[8:]))
		if w > 0 && h > 0 && n > 0 {
			return true
		}
	}
	return false
}
