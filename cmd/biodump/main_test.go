// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bep/biodecode"
	qt "github.com/frankban/quicktest"
)

func writeBioRad(c *qt.C) string {
	c.Helper()
	filename := filepath.Join(c.TempDir(), "cells.pic")
	planes := []*biodecode.Plane{
		{Width: 2, Height: 2, PixelType: biodecode.Uint8, Channels: [][]float64{{0, 1, 2, 3}}},
		{Width: 2, Height: 2, PixelType: biodecode.Uint8, Channels: [][]float64{{4, 5, 6, 7}}},
	}
	c.Assert(biodecode.SaveFile(filename, biodecode.BioRad, planes, nil), qt.IsNil)
	return filename
}

func runBiodump(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun(t *testing.T) {
	c := qt.New(t)

	c.Run("Usage", func(c *qt.C) {
		code, _, stderr := runBiodump()
		c.Assert(code, qt.Equals, 2)
		c.Assert(stderr, qt.Contains, "Usage: biodump")

		code, _, _ = runBiodump("a", "b", "c")
		c.Assert(code, qt.Equals, 2)

		code, _, _ = runBiodump("-nope", "a")
		c.Assert(code, qt.Equals, 2)
	})

	c.Run("Unknown format", func(c *qt.C) {
		code, _, stderr := runBiodump("-format", "jpeg", "a.pic")
		c.Assert(code, qt.Equals, 2)
		c.Assert(stderr, qt.Contains, `unknown format "jpeg"`)
	})

	c.Run("Missing file", func(c *qt.C) {
		code, _, stderr := runBiodump(filepath.Join(c.TempDir(), "nope.pic"))
		c.Assert(code, qt.Equals, 1)
		c.Assert(stderr, qt.Contains, "failed")
	})

	c.Run("Text", func(c *qt.C) {
		code, stdout, _ := runBiodump("-planes", writeBioRad(c))
		c.Assert(code, qt.Equals, 0)
		c.Assert(stdout, qt.Contains, "Format: BioRad\n")
		c.Assert(stdout, qt.Contains, "Blocks: 2\n")
		c.Assert(stdout, qt.Contains, "  nx = 2\n")
		c.Assert(stdout, qt.Contains, "  Pixels.SizeZ = 2\n")
		c.Assert(stdout, qt.Contains, "Plane 1: 2x2 Uint8\n  channel 0: min 4 max 7 mean 5.5\n")
	})

	c.Run("JSON", func(c *qt.C) {
		code, stdout, _ := runBiodump("-json", "-format", "biorad", writeBioRad(c))
		c.Assert(code, qt.Equals, 0)

		var res struct {
			Format   string `json:"format"`
			Blocks   int    `json:"blocks"`
			Metadata struct {
				Values     map[string]any               `json:"values"`
				Attributes map[string]map[string]string `json:"attributes"`
			} `json:"metadata"`
			Planes []planeStats `json:"planes"`
		}
		c.Assert(json.Unmarshal([]byte(stdout), &res), qt.IsNil)
		c.Assert(res.Format, qt.Equals, "BioRad")
		c.Assert(res.Blocks, qt.Equals, 2)
		c.Assert(res.Metadata.Values["ny"], qt.Equals, 2.0)
		c.Assert(res.Metadata.Attributes["Pixels"]["SizeX"], qt.Equals, "2")
		c.Assert(res.Planes, qt.HasLen, 0)
	})

	c.Run("Convert", func(c *qt.C) {
		out := filepath.Join(c.TempDir(), "out.pic")
		code, _, stderr := runBiodump("-v", writeBioRad(c), out)
		c.Assert(code, qt.Equals, 0)
		c.Assert(stderr, qt.Contains, "saved")

		meta, planes, err := biodecode.ReadFile(out, biodecode.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(planes, qt.HasLen, 2)
		c.Assert(planes[1].Channels[0], qt.DeepEquals, []float64{4, 5, 6, 7})
		v, _ := meta.Get("npic")
		c.Assert(v, qt.Equals, 2)
	})
}
