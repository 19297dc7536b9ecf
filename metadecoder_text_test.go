// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var keyValueComparer = cmp.AllowUnexported(keyValue{})

func TestParseICSHeader(t *testing.T) {
	c := qt.New(t)

	header := "\t\n" +
		"ics_version\t1.0\n" +
		"filename\tcells\n" +
		"layout\tsizes\t8 4 3\n" +
		"parameter scale 1.0 0.5 0.5\n" +
		"history\tauthor\tsomeone else\n" +
		"\n" +
		"source\n" +
		"end\n" +
		"ignored\tafter end\n"

	got := parseICSHeader([]byte(header))
	want := []keyValue{
		{"ics_version", "1.0"},
		{"filename", "cells"},
		{"sizes", "8 4 3"},
		{"scale", "1.0 0.5 0.5"},
		{"author", "someone else"},
	}
	c.Assert(got, qt.CmpEquals(keyValueComparer), want)

	c.Assert(parseICSHeader(nil), qt.HasLen, 0)
	c.Assert(parseICSHeader([]byte("\t\n")), qt.HasLen, 0)
}

func TestICSHeaderLength(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		in   string
		want int
	}{
		{"a\nend\nrest", 6},
		{"a\r\nend\r\nrest", 8},
		{"a\n  end \nrest", 9},
		{"a\nendless\n", 10},
		{"no end", 6},
		{"", 0},
	} {
		c.Assert(icsHeaderLength([]byte(test.in)), qt.Equals, test.want, qt.Commentf("%q", test.in))
	}
}

func TestParsePerkinElmerTim(t *testing.T) {
	c := qt.New(t)

	got := parsePerkinElmerTim([]byte("2 0 0\n1 0 um 0.5 0.25"))
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"Number of Wavelengths/Timepoints", "2"},
		{"Zero 1", "0"},
		{"Zero 2", "0"},
		{"Number of slices", "1"},
		{"Extra int", "0"},
		{"Calibration Unit", "um"},
		{"Pixel Size Y", "0.5"},
		{"Pixel Size X", "0.25"},
	})

	many := strings.Repeat("1 ", len(perkinElmerTimKeys)+5)
	c.Assert(parsePerkinElmerTim([]byte(many)), qt.HasLen, len(perkinElmerTimKeys))
}

func TestParsePerkinElmerCSV(t *testing.T) {
	c := qt.New(t)

	toks := make([]string, 23)
	for i := range toks {
		toks[i] = "skip"
	}
	toks[7] = "um"
	toks[12] = "0.5"
	toks[18] = "0.25"
	toks[22] = "1.5"
	toks = append(toks, "Exposure", "Time", "100", "Binning", "2", "2", "Dangling", "key")

	got := parsePerkinElmerCSV([]byte(strings.Join(toks, " ")))
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"Calibration Unit", "um"},
		{"Pixel Size X", "0.5"},
		{"Pixel Size Y", "0.25"},
		{"Z slice space", "1.5"},
		{"ExposureTime", "100"},
		{"Binning2", "2"},
	})

	c.Assert(parsePerkinElmerCSV([]byte("a b c")), qt.HasLen, 0)
}

func TestParsePerkinElmerZPO(t *testing.T) {
	c := qt.New(t)

	got := parsePerkinElmerZPO([]byte("1.0\n2.5\n"))
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"Z slice #0 position", "1.0"},
		{"Z slice #1 position", "2.5"},
	})
}

func TestParsePerkinElmerHTM(t *testing.T) {
	c := qt.New(t)

	htm := "<HTML><HEAD>Objective<p>60x<p>Wavelength 1 X<p>Camera<p>Hamamatsu</body>"
	got := parsePerkinElmerHTM([]byte(htm))
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"Objective", "60x"},
		{"Camera Data X", "Wavelength 1 X"},
		{"Camera", "Hamamatsu"},
	})

	// Unknown tags blank their token.
	got = parsePerkinElmerHTM([]byte("Gain<p><i>2</i><p>Offset<p>3"))
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"Gain", ""},
		{"Offset", "3"},
	})

	c.Assert(parsePerkinElmerHTM([]byte("Wavelength<p>x")), qt.HasLen, 0)
	c.Assert(parsePerkinElmerHTM(nil), qt.HasLen, 0)
}

func TestParseKeyValueLines(t *testing.T) {
	c := qt.New(t)

	got := parseKeyValueLines("a = 1\r\nfree text\n\n\x00\nb=2=3\n", "Note")
	c.Assert(got, qt.CmpEquals(keyValueComparer), []keyValue{
		{"a", "1"},
		{"Note", "free text"},
		{"b", "2=3"},
	})
}
