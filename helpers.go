// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// printableString removes non-graphic characters and surrounding space from s.
func printableString(s string) string {
	ss := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(ss)
}

// toFloat64 converts a numeric metadata value to float64.
// Strings are parsed; anything else gives NaN.
func toFloat64(v any) float64 {
	switch vv := v.(type) {
	case float64:
		return vv
	case float32:
		return float64(vv)
	case int:
		return float64(vv)
	case int8:
		return float64(vv)
	case int16:
		return float64(vv)
	case int32:
		return float64(vv)
	case int64:
		return float64(vv)
	case uint8:
		return float64(vv)
	case uint16:
		return float64(vv)
	case uint32:
		return float64(vv)
	case uint64:
		return float64(vv)
	case bool:
		if vv {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func toString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return string(trimBytesNulls(vv))
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}

// metaInt returns the value of key in m as an int, or def if missing or not numeric.
func metaInt(m *Metadata, key string, def int) int {
	if m == nil {
		return def
	}
	v, found := m.Get(key)
	if !found {
		return def
	}
	f := toFloat64(v)
	if math.IsNaN(f) {
		return def
	}
	return int(f)
}

// metaString returns the value of key in m as a string, or def if missing.
func metaString(m *Metadata, key, def string) string {
	if m == nil {
		return def
	}
	v, found := m.Get(key)
	if !found {
		return def
	}
	return toString(v)
}

// clamp limits v to [lo, hi], mapping NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
