// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"fmt"
)

const leicaFirstBlockAddress = 12

type imageDecoderLeica struct {
	*baseDecoder

	// Per-image TIFF file names, relative to the directory of the LEI file.
	files []string
}

func (d *imageDecoderLeica) init() error {
	if !isLeicaHeader(d.readBytes(8)) {
		return fmt.Errorf("%w: no LEI magic", ErrFormatMismatch)
	}
	d.seek(0)
	if string(d.readBytesVolatile(4)) == "IIII" {
		d.byteOrder = binary.LittleEndian
	}

	blocks := d.readBlocks()

	// The file name length is declared in the series block.
	var nameLength int
	for _, b := range blocks {
		if data, found := b[leicaTagSeries]; found && len(data) >= 12 {
			nameLength = int(d.byteOrder.Uint32(data[8:]))
		}
	}

	for _, b := range blocks {
		d.parseBlock(b, nameLength)
	}

	d.attr("Pixels", "SizeX", metaString(d.meta, "Image width", ""))
	d.attr("Pixels", "SizeY", metaString(d.meta, "Image height", ""))
	d.attr("Pixels", "BigEndian", d.byteOrder == binary.BigEndian)
	d.attr("Group", "Name", "OME")
	d.attr("Image", "CreationDate", metaString(d.meta, "Timestamp 1", ""))
	d.attr("Image", "Description", metaString(d.meta, "Image Description", ""))
	photometric := "monochrome"
	if metaString(d.meta, "VoxelType", "") == "RGB" {
		photometric = "RGB"
	}
	d.attr("ChannelInfo", "PhotometricInterpretation", photometric)
	d.attr("ChannelInfo", "SamplesPerPixel", metaString(d.meta, "Samples per pixel", ""))
	d.attr("Image", "DimensionOrder", "XYZCT")

	return nil
}

// readBlocks reads the chain of header blocks starting at offset 12.
// Each block is a list of (tag, offset) pairs ending with tag 0;
// the payload of a tag is at offset+12, prefixed by its size.
func (d *imageDecoderLeica) readBlocks() []leicaBlock {
	var blocks []leicaBlock
	seen := make(map[uint32]bool)
	d.seek(leicaFirstBlockAddress)
	addr := d.read4()
	for addr != 0 {
		if seen[addr] {
			d.stop(newBadHeaderErrorf("header block chain loops back to offset %d", addr))
		}
		seen[addr] = true
		d.seek(int64(addr))
		d.skip(4) // number of entries

		block := make(leicaBlock)
		for tag := d.read4(); tag != 0; tag = d.read4() {
			offset := int64(d.read4())
			d.preservePos(func() error {
				d.seek(offset + 12)
				size := int64(d.read4())
				if size > d.opts.LimitTagSize {
					d.stop(newBadHeaderErrorf("tag %d: size %d exceeds max %d", tag, size, d.opts.LimitTagSize))
				}
				block[tag] = d.readBytes(int(size))
				return nil
			})
		}
		blocks = append(blocks, block)
		addr = d.read4()
	}
	return blocks
}

func (d *imageDecoderLeica) parseBlock(b leicaBlock, nameLength int) {
	record := func(tag uint32, f func(r *streamReader)) {
		data, found := b[tag]
		if !found {
			return
		}
		r := newStreamReaderBytes(data, d.byteOrder)
		d.readRecord(r, func() { f(r) })
	}

	record(leicaTagSeries, d.parseSeries)
	record(leicaTagImages, func(r *streamReader) {
		d.files = append(d.files, d.parseImages(r, nameLength)...)
	})
	record(leicaTagDimensions, d.parseDimensions)
	if data, found := b[leicaTagTimeInfo]; found {
		r := newStreamReaderBytes(data, d.byteOrder)
		d.tolerateRecord("time info", r, func() { d.parseTimeInfo(r) })
	}
	// Filter and scanner settings are not decoded.
	record(leicaTagExperiment, d.parseExperiment)
	record(leicaTagLUT, d.parseLUT)
}

func (d *imageDecoderLeica) blockCount() int {
	return len(d.files)
}

func (d *imageDecoderLeica) decodeBlock(i int) (*Plane, error) {
	filename, err := d.findSibling(d.files[i])
	if err != nil {
		return nil, err
	}
	return d.decodeCompanionTIFF(filename)
}
