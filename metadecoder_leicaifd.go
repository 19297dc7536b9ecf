// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"strconv"
	"strings"
)

// LEI header block tags.
const (
	leicaTagSeries     = 10
	leicaTagImages     = 15
	leicaTagDimensions = 20
	leicaTagFilter     = 30
	leicaTagTimeInfo   = 40
	leicaTagScanner    = 50
	leicaTagExperiment = 60
	leicaTagLUT        = 70
)

var leicaVoxelTypes = map[uint32]string{
	0:  "undefined",
	10: "gray normal",
	20: "RGB",
}

var leicaDimensionNames = map[uint32]string{
	0:       "undefined",
	120:     "x",
	121:     "y",
	122:     "z",
	116:     "t",
	6815843: "channel",
	6357100: "wave length",
	7602290: "rotation",
	7798904: "x-wide for the motorized xy-stage",
	7798905: "y-wide for the motorized xy-stage",
	7798906: "z-wide for the z-stage-drive",
	4259957: "user1 - unspecified",
	4325493: "user2 - unspecified",
	4391029: "user3 - unspecified",
	6357095: "graylevel",
	6422631: "graylevel1",
	6488167: "graylevel2",
	6553703: "graylevel3",
	7864398: "logical x",
	7929934: "logical y",
	7995470: "logical z",
	7602254: "logical t",
	7077966: "logical lambda",
	7471182: "logical rotation",
	5767246: "logical x-wide",
	5832782: "logical y-wide",
	5898318: "logical z-wide",
}

// leicaBlock holds the tag payloads of one header block.
type leicaBlock map[uint32][]byte

// readLeicaString reads a UTF-16 string of n bytes.
func readLeicaString(r *streamReader, n int) string {
	return strings.TrimSpace(decodeUTF16(r.readBytesVolatile(n), r.byteOrder))
}

// readLeicaString32 reads a UTF-16 string prefixed by its byte length.
func readLeicaString32(r *streamReader) string {
	return readLeicaString(r, int(r.read4()))
}

func (d *imageDecoderLeica) parseSeries(r *streamReader) {
	d.put("Version", r.read4())
	d.put("Number of Series", r.read4())
	nameLength := r.read4()
	d.put("Length of filename", nameLength)
	extLength := r.read4()
	d.put("Length of file extension", extLength)
	d.put("Image file extension", readLeicaString(r, int(extLength)))
}

// parseImages reads the image dimensions and file names of a series.
func (d *imageDecoderLeica) parseImages(r *streamReader, nameLength int) []string {
	count := r.read4()
	d.put("Number of images", count)
	d.put("Image width", r.read4())
	d.put("Image height", r.read4())
	d.put("Bits per Sample", r.read4())
	d.put("Samples per pixel", r.read4())
	if nameLength <= 0 {
		d.stop(newBadHeaderErrorf("%d images but no file name length", count))
	}
	if int64(count) > r.remaining()/int64(2*nameLength) {
		d.stop(newTruncatedErrorf("%d file names of %d characters", count, nameLength))
	}
	names := make([]string, count)
	for i := range names {
		names[i] = strings.Trim(readLeicaString(r, 2*nameLength), "\x00")
	}
	return names
}

func (d *imageDecoderLeica) parseDimensions(r *streamReader) {
	d.put("Voxel Version", r.read4())
	d.put("VoxelType", leicaVoxelTypes[r.read4()])
	d.put("Bytes per pixel", r.read4())
	d.put("Real world resolution", r.read4())
	d.put("Maximum voxel intensity", readLeicaString32(r))
	d.put("Minimum voxel intensity", readLeicaString32(r))
	r.skip(int64(r.read4()) + 4)

	numDims := int(r.read4())
	for j := range numDims {
		prefix := "Dim" + strconv.Itoa(j) + " "
		d.put(prefix+"type", leicaDimensionNames[r.read4()])
		d.put(prefix+"size", r.read4())
		d.put(prefix+"distance between sub-dimensions", r.read4())
		d.put(prefix+"physical length", readLeicaString32(r))
		d.put(prefix+"physical origin", readLeicaString32(r))
		d.put(prefix+"name", readLeicaString32(r))
		d.put(prefix+"description", readLeicaString32(r))
	}
}

func (d *imageDecoderLeica) parseTimeInfo(r *streamReader) {
	d.put("Number of time-stamped dimensions", r.read4())
	numDims := int(r.read4())
	d.put("Time-stamped dimension", numDims)
	for j := range numDims {
		prefix := "Dimension " + strconv.Itoa(j) + " "
		d.put(prefix+"ID", r.read4())
		d.put(prefix+"size", r.read4())
		d.put(prefix+"distance between dimensions", r.read4())
	}

	numStamps := int(r.read4())
	d.put("Number of time-stamps", numStamps)
	for j := range numStamps {
		d.put("Timestamp "+strconv.Itoa(j), readLeicaString(r, 64))
	}

	numMarkers := int(r.read4())
	d.put("Number of time-markers", numMarkers)
	for j := range numMarkers {
		prefix := "Time-marker " + strconv.Itoa(j)
		numCoords := int(r.read4())
		for k := range numCoords {
			d.put(prefix+" Dimension "+strconv.Itoa(k)+" coordinate", r.read4())
		}
		d.put(prefix, readLeicaString(r, 64))
	}
}

// parseExperiment reads the experiment block. Its string lengths count characters.
func (d *imageDecoderLeica) parseExperiment(r *streamReader) {
	r.skip(8)
	for _, key := range []string{
		"Image Description",
		"Main file extension",
		"Single image format identifier",
		"Single image extension",
	} {
		d.put(key, readLeicaString(r, 2*int(r.read4())))
	}
}

func (d *imageDecoderLeica) parseLUT(r *streamReader) {
	numChannels := int(r.read4())
	d.put("Number of LUT channels", numChannels)
	d.put("ID of colored dimension", r.read4())
	for j := range numChannels {
		prefix := "LUT Channel " + strconv.Itoa(j) + " "
		d.put(prefix+"version", r.read4())
		d.put(prefix+"inverted?", strconv.FormatBool(r.read1() == 1))
		d.put(prefix+"description", readLeicaString32(r))
		d.put(prefix+"filename", readLeicaString32(r))
		d.put(prefix+"name", readLeicaString32(r))
		r.skip(8)
	}
}
