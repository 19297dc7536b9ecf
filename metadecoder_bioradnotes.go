// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Bio-Rad note types.
const (
	BioRadNoteLive      = 1
	BioRadNoteFile1     = 2
	BioRadNoteNumber    = 3
	BioRadNoteUser      = 4
	BioRadNoteLine      = 5
	BioRadNoteCollect   = 6
	BioRadNoteFile2     = 7
	BioRadNoteScalebar  = 8
	BioRadNoteMerge     = 9
	BioRadNoteThruview  = 10
	BioRadNoteArrow     = 11
	BioRadNoteVariable  = 20
	BioRadNoteStructure = 21
)

// Bio-Rad note status flags.
const (
	bioRadNoteStatusAll      = 0x0100
	bioRadNoteStatusDisplay  = 0x0200
	bioRadNoteStatusPosition = 0x0400
)

// Axis types used in AXIS_n variable notes.
const (
	bioRadAxisDistance = 1
	bioRadAxisTime     = 2
)

const bioRadNoteSize = 96

var bioRadNoteNames = []string{
	"0", "LIVE", "FILE1", "NUMBER", "USER", "LINE", "COLLECT", "FILE2",
	"SCALEBAR", "MERGE", "THRUVIEW", "ARROW", "12", "13", "14", "15",
	"16", "17", "18", "19", "VARIABLE", "STRUCTURE",
}

// VARIABLE notes whose value is a single number.
var bioRadNumericVariables = map[string]bool{
	"SCALE_FACTOR":       true,
	"LENS_MAGNIFICATION": true,
	"RAMP_GAMMA1":        true,
	"RAMP_GAMMA2":        true,
	"RAMP_GAMMA3":        true,
	"RAMP1_MIN":          true,
	"RAMP2_MIN":          true,
	"RAMP3_MIN":          true,
	"RAMP1_MAX":          true,
	"RAMP2_MAX":          true,
	"RAMP3_MAX":          true,
	"PIC_FF_VERSION":     true,
	"Z_CORRECT_FACTOR":   true,
	"AXIS_0":             true,
	"AXIS_1":             true,
	"AXIS_4":             true,
	"AXIS_5":             true,
	"AXIS_6":             true,
	"AXIS_7":             true,
	"AXIS_8":             true,
	"AXIS_9":             true,
	"AXIS_21":            true,
}

// BioRadNote is one 96-byte annotation record of a Bio-Rad PIC file.
type BioRadNote struct {
	Level  int
	Num    int
	Status int
	Type   int
	X      int
	Y      int
	Text   string
}

// TypeName returns the name of the note type, e.g. "VARIABLE".
func (n BioRadNote) TypeName() string {
	if n.Type >= 0 && n.Type < len(bioRadNoteNames) {
		return bioRadNoteNames[n.Type]
	}
	return strconv.Itoa(n.Type)
}

func (n BioRadNote) String() string {
	return fmt.Sprintf("level=%d; num=%d; status=%d; type=%s; x=%d; y=%d; text=%s",
		n.Level, n.Num, n.Status, n.TypeName(), n.X, n.Y, n.Text)
}

// readBioRadNote reads one note record and reports whether another follows.
func (e *streamReader) readBioRadNote() (BioRadNote, bool) {
	var n BioRadNote
	n.Level = int(e.read2())
	more := e.read4() != 0
	n.Num = int(e.read2())
	n.Status = int(e.read2())
	n.Type = int(e.read2())
	n.X = int(e.read2())
	n.Y = int(e.read2())
	n.Text = e.readFixedString(80)
	return n, more
}

type bioRadNoteKind int

const (
	bioRadNoteNoInformation bioRadNoteKind = iota
	bioRadNoteMetadata
	bioRadNoteHorizontalUnit
	bioRadNoteVerticalUnit
	bioRadNoteInvalid
)

// bioRadNoteInfo is the result of analysing a note.
type bioRadNoteInfo struct {
	kind bioRadNoteKind

	// Set for bioRadNoteMetadata.
	name  string
	value float64

	// Set for the unit kinds.
	origin float64
	step   float64
	time   bool

	// Set for bioRadNoteInvalid.
	reason string
}

func invalidBioRadNote(format string, args ...any) bioRadNoteInfo {
	return bioRadNoteInfo{kind: bioRadNoteInvalid, reason: fmt.Sprintf(format, args...)}
}

// analyze validates the note text for the note types with a defined text syntax.
func (n BioRadNote) analyze() bioRadNoteInfo {
	fields := strings.Fields(n.Text)

	switch n.Type {
	case BioRadNoteScalebar:
		// SCALEBAR = length angle
		if len(fields) != 4 || fields[0] != "SCALEBAR" || fields[1] != "=" {
			return invalidBioRadNote("want SCALEBAR = length angle")
		}
		if !nonNegativeInts(fields[2:4]...) {
			return invalidBioRadNote("invalid length or angle")
		}
		return bioRadNoteInfo{kind: bioRadNoteNoInformation}
	case BioRadNoteThruview:
		return invalidBioRadNote("reserved")
	case BioRadNoteArrow:
		// ARROW = lx ly angle fill_type
		if len(fields) != 6 || fields[0] != "ARROW" || fields[1] != "=" {
			return invalidBioRadNote("want ARROW = lx ly angle fill")
		}
		if !nonNegativeInts(fields[2:5]...) {
			return invalidBioRadNote("invalid size or angle")
		}
		if fields[5] != "Fill" && fields[5] != "Outline" {
			return invalidBioRadNote("invalid fill type %q", fields[5])
		}
		return bioRadNoteInfo{kind: bioRadNoteNoInformation}
	case BioRadNoteVariable:
		return n.analyzeVariable(fields)
	default:
		return bioRadNoteInfo{kind: bioRadNoteNoInformation}
	}
}

func (n BioRadNote) analyzeVariable(fields []string) bioRadNoteInfo {
	if len(fields) < 2 {
		return invalidBioRadNote("want VARIABLE value")
	}
	name, values := fields[0], fields[1:]

	if bioRadNumericVariables[name] {
		v, err := strconv.ParseFloat(values[0], 64)
		if err != nil || len(values) != 1 {
			return invalidBioRadNote("%s: invalid value", name)
		}
		return bioRadNoteInfo{kind: bioRadNoteMetadata, name: name, value: v}
	}

	switch name {
	case "AXIS_2", "AXIS_3":
		// AXIS_n type origin increment label
		if len(values) != 4 {
			return invalidBioRadNote("%s: want type origin increment label", name)
		}
		axisType, err1 := strconv.Atoi(values[0])
		origin, err2 := strconv.ParseFloat(values[1], 64)
		step, err3 := strconv.ParseFloat(values[2], 64)
		if err1 != nil || err2 != nil || err3 != nil || axisType < 0 || origin < 0 || step < 0 {
			return invalidBioRadNote("%s: invalid number", name)
		}
		info := bioRadNoteInfo{origin: origin, step: step}
		if name == "AXIS_2" {
			if axisType != bioRadAxisDistance {
				return invalidBioRadNote("%s: unsupported axis type %d", name, axisType)
			}
			info.kind = bioRadNoteHorizontalUnit
			return info
		}
		switch axisType {
		case bioRadAxisDistance:
		case bioRadAxisTime:
			info.time = true
		default:
			return invalidBioRadNote("%s: unsupported axis type %d", name, axisType)
		}
		info.kind = bioRadNoteVerticalUnit
		return info
	}

	return invalidBioRadNote("unknown variable %q", name)
}

// bioRadAxisNote creates the AXIS_2 (x) or AXIS_3 (y) note describing a calibrated axis.
func bioRadAxisNote(xAxis bool, origin, step float64, unit string) BioRadNote {
	axis, axisType, label := "AXIS_3", bioRadAxisDistance, "microns"
	if xAxis {
		axis = "AXIS_2"
	}
	if !xAxis && unit == unitSecond {
		axisType, label = bioRadAxisTime, "seconds"
	}
	return BioRadNote{
		Level:  1,
		Status: bioRadNoteStatusAll | bioRadNoteStatusPosition,
		Type:   BioRadNoteVariable,
		Text: fmt.Sprintf("%s %d %s %s %s", axis, axisType,
			strconv.FormatFloat(origin, 'g', -1, 64), strconv.FormatFloat(step, 'g', -1, 64), label),
	}
}

func nonNegativeInts(s ...string) bool {
	for _, v := range s {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			return false
		}
	}
	return true
}
