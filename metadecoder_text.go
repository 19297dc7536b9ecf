// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// keyValue is one entry of a text header, in file order.
type keyValue struct {
	key   string
	value string
}

// Leading words of ICS header lines that name a section rather than a key.
var icsSections = map[string]bool{
	"layout":         true,
	"representation": true,
	"parameter":      true,
	"history":        true,
	"sensor":         true,
	"document":       true,
	"view":           true,
	"source":         true,
}

// parseICSHeader parses the lines of an ICS header.
// The first line declares the separators and is skipped.
// Of each remaining line the leading section words are dropped; the next
// word is the key and the rest, joined by single spaces, the value.
func parseICSHeader(b []byte) []keyValue {
	var kvs []keyValue
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 4096), len(b)+1)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		for len(fields) > 0 && icsSections[fields[0]] {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "end" && len(fields) == 1 {
			break
		}
		kvs = append(kvs, keyValue{key: fields[0], value: strings.Join(fields[1:], " ")})
	}
	return kvs
}

// icsHeaderLength returns the length of the ICS header in b including the
// terminating "end" line, or len(b) if there is none.
func icsHeaderLength(b []byte) int {
	var n int
	for len(b) > 0 {
		line := b
		i := bytes.IndexAny(b, "\n\r")
		if i >= 0 {
			line = b[:i]
			// Include the line separator(s).
			for i < len(b) && (b[i] == '\n' || b[i] == '\r') {
				i++
			}
		} else {
			i = len(b)
		}
		n += i
		b = b[i:]
		if strings.TrimSpace(string(line)) == "end" {
			break
		}
	}
	return n
}

// PerkinElmer .tim files are a plain list of values in this order.
var perkinElmerTimKeys = []string{
	"Number of Wavelengths/Timepoints", "Zero 1", "Zero 2", "Number of slices",
	"Extra int", "Calibration Unit", "Pixel Size Y", "Pixel Size X",
	"Image Width", "Image Length", "Origin X", "SubfileType X",
	"Dimension Label X", "Origin Y", "SubfileType Y", "Dimension Label Y",
	"Origin Z", "SubfileType Z", "Dimension Label Z",
}

func parsePerkinElmerTim(b []byte) []keyValue {
	var kvs []keyValue
	for i, tok := range strings.Fields(string(b)) {
		if i >= len(perkinElmerTimKeys) {
			break
		}
		kvs = append(kvs, keyValue{key: perkinElmerTimKeys[i], value: tok})
	}
	return kvs
}

var perkinElmerCSVKeys = []string{"Calibration Unit", "Pixel Size X", "Pixel Size Y", "Z slice space"}

// parsePerkinElmerCSV reads the known values at token positions 7, 12, 18 and 22
// and then treats the remaining tokens as (key part 1, key part 2, value) triples.
func parsePerkinElmerCSV(b []byte) []keyValue {
	var kvs []keyValue
	toks := strings.Fields(string(b))
	pt := 0
	for tNum := 0; len(toks) > 0; tNum++ {
		switch {
		case tNum < 7, tNum > 7 && tNum < 12, tNum > 12 && tNum < 18, tNum > 18 && tNum < 22:
			toks = toks[1:]
		case pt < len(perkinElmerCSVKeys):
			kvs = append(kvs, keyValue{key: perkinElmerCSVKeys[pt], value: toks[0]})
			toks = toks[1:]
			pt++
		default:
			if len(toks) < 3 {
				return kvs
			}
			kvs = append(kvs, keyValue{key: toks[0] + toks[1], value: toks[2]})
			toks = toks[3:]
		}
	}
	return kvs
}

func parsePerkinElmerZPO(b []byte) []keyValue {
	var kvs []keyValue
	for i, tok := range strings.Fields(string(b)) {
		kvs = append(kvs, keyValue{key: "Z slice #" + strconv.Itoa(i) + " position", value: tok})
	}
	return kvs
}

var perkinElmerHTMSplit = regexp.MustCompile(`<p>|</p>|<br>|<hr>|<b>|</b>|<HTML>|<HEAD>|</HTML>|</HEAD>|<h1>|</h1>|<HR>|</body>`)

// parsePerkinElmerHTM splits the HTML report on its formatting tags and reads
// the text pieces as alternating keys and values.
func parsePerkinElmerHTM(b []byte) []keyValue {
	toks := perkinElmerHTMSplit.Split(string(b), -1)
	for len(toks) > 0 && toks[len(toks)-1] == "" {
		toks = toks[:len(toks)-1]
	}
	for i, tok := range toks {
		if strings.Contains(tok, "<") {
			toks[i] = ""
		}
	}

	var kvs []keyValue
	for j := 0; j < len(toks)-1; j += 2 {
		tok := toks[j]
		switch {
		case strings.Contains(tok, "Wavelength"):
			if len(tok) > 13 {
				kvs = append(kvs, keyValue{key: "Camera Data " + tok[13:14], value: tok})
			}
			// Camera data lines have no value.
			j--
		case strings.TrimSpace(tok) != "":
			kvs = append(kvs, keyValue{key: tok, value: toks[j+1]})
		}
	}
	return kvs
}

// parseKeyValueLines reads key=value lines. Lines without "=" are returned
// with the key fallbackKey; a later one overwrites an earlier one.
func parseKeyValueLines(s, fallbackKey string) []keyValue {
	var kvs []keyValue
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = printableString(line)
		if line == "" {
			continue
		}
		if key, value, found := strings.Cut(line, "="); found {
			kvs = append(kvs, keyValue{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
			continue
		}
		kvs = append(kvs, keyValue{key: fallbackKey, value: line})
	}
	return kvs
}
