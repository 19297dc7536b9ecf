// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"fmt"
	"path/filepath"
	"strings"
)

type imageDecoderPerkinElmer struct {
	*baseDecoder

	// The TIFF planes, in name order.
	files []string
}

func (d *imageDecoderPerkinElmer) init() error {
	names, err := d.siblings()
	if err != nil {
		return err
	}
	prefix := baseName(d.path)
	dir := filepath.Dir(d.path)

	var tim, csv, zpo, htm string
	first := func(s *string, name, suffix string) {
		if *s == "" && hasSuffixFold(name, suffix) {
			*s = filepath.Join(dir, name)
		}
	}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		first(&tim, name, ".tim")
		first(&csv, name, ".csv")
		first(&zpo, name, ".zpo")
		first(&htm, name, ".htm")
		if hasSuffixFold(name, ".tif", ".tiff") {
			d.files = append(d.files, filepath.Join(dir, name))
		}
	}

	if tim == "" && csv == "" && zpo == "" && htm == "" {
		return fmt.Errorf("%w: no .tim, .csv, .zpo or .htm header file for %s", ErrMissingCompanionFile, filepath.Base(d.path))
	}

	if tim != "" {
		if err := d.parseHeaderFile(tim, parsePerkinElmerTim); err != nil {
			return err
		}
	}
	// At most one of these is used.
	switch {
	case csv != "":
		err = d.parseHeaderFile(csv, parsePerkinElmerCSV)
	case zpo != "":
		err = d.parseHeaderFile(zpo, parsePerkinElmerZPO)
	case htm != "":
		err = d.parseHeaderFile(htm, parsePerkinElmerHTM)
	}
	if err != nil {
		return err
	}

	d.attr("Image", "PixelSizeX", metaString(d.meta, "Pixel Size X", ""))
	d.attr("Image", "PixelSizeY", metaString(d.meta, "Pixel Size Y", ""))
	d.attr("Image", "CreationDate", metaString(d.meta, "Finish Time:", ""))
	d.attr("Pixels", "SizeX", metaString(d.meta, "Image Width", ""))
	d.attr("Pixels", "SizeY", metaString(d.meta, "Image Length", ""))
	d.attr("StageLabel", "X", metaString(d.meta, "Origin X", ""))
	d.attr("StageLabel", "Y", metaString(d.meta, "Origin Y", ""))
	d.attr("StageLabel", "Z", metaString(d.meta, "Origin Z", ""))

	return nil
}

func (d *imageDecoderPerkinElmer) parseHeaderFile(filename string, parse func([]byte) []keyValue) error {
	b, err := d.readCompanion(filename)
	if err != nil {
		return err
	}
	for _, kv := range parse(b) {
		d.put(kv.key, kv.value)
	}
	return nil
}

func (d *imageDecoderPerkinElmer) blockCount() int {
	return len(d.files)
}

func (d *imageDecoderPerkinElmer) decodeBlock(i int) (*Plane, error) {
	return d.decodeCompanionTIFF(d.files[i])
}
