// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import "encoding/binary"

// Zeiss private TIFF tags.
const (
	lsmTagZeissPrivate = 33412
	lsmTagInfo         = 34412
)

// CZ_LSMINFO magic numbers.
const (
	lsmInfoMagic1 = 0x0300494C
	lsmInfoMagic2 = 0x0400494C
)

var lsmScanTypes = map[int]string{
	0:  "normal x-y-z-scan",
	1:  "z-scan (x-z-plane)",
	2:  "line scan",
	3:  "time series x-y",
	4:  "time series x-z",
	5:  "time series - mean of ROIs",
	6:  "time series x-y-z",
	7:  "spline scan",
	8:  "spline plane x-z",
	9:  "time series spline plane x-z",
	10: "point mode",
}

type imageDecoderLSM struct {
	*baseDecoder

	// IFDs holding full resolution images; thumbnails are skipped.
	ifds []tiffIFD
	// Max samples per pixel over all images.
	maxChannels int
}

func (d *imageDecoderLSM) init() error {
	all, err := walkIFDs(d.ra, d.length())
	if err != nil {
		return err
	}
	if all[0].order != binary.LittleEndian {
		return newBadHeaderErrorf("LSM files are little endian")
	}

	for _, ifd := range all {
		if ifd.intVal(tiffTagNewSubfileType, 0) != 0 {
			continue
		}
		switch p := ifd.intVal(tiffTagPhotometric, tiffPhotometricBlackIsZero); p {
		case tiffPhotometricBlackIsZero, tiffPhotometricRGB:
		default:
			return newBadHeaderErrorf("photometric interpretation %d", p)
		}
		d.ifds = append(d.ifds, ifd)
		d.maxChannels = max(d.maxChannels, ifd.intVal(tiffTagSamplesPerPixel, 1))
	}
	if len(d.ifds) == 0 {
		return newBadHeaderErrorf("no full resolution images")
	}

	first := d.ifds[0]
	d.putTIFFMetadata(first)
	d.attr("Pixels", "SizeX", first.intVal(tiffTagImageWidth, 0))
	d.attr("Pixels", "SizeY", first.intVal(tiffTagImageLength, 0))
	d.attr("Pixels", "BigEndian", false)
	d.attr("Pixels", "DimensionOrder", "XYZCT")

	if info := all[0].raw(lsmTagInfo); info != nil {
		d.parseInfo(info)
	} else {
		d.warnf("lsm: no CZ_LSMINFO tag")
	}

	return nil
}

// parseInfo reads the CZ_LSMINFO record.
func (d *imageDecoderLSM) parseInfo(b []byte) {
	if len(b) < 90 {
		d.warnf("lsm: CZ_LSMINFO of %d bytes is too short", len(b))
		return
	}
	r := newStreamReaderBytes(b, binary.LittleEndian)
	d.tolerateRecord("CZ_LSMINFO", r, func() {
		magic := r.read4()
		if magic != lsmInfoMagic1 && magic != lsmInfoMagic2 {
			d.warnf("lsm: unexpected CZ_LSMINFO magic %#x", magic)
		}
		r.skip(4) // structure size
		sizeX, sizeY := int(r.read4s()), int(r.read4s())
		sizeZ, sizeC, sizeT := int(r.read4s()), int(r.read4s()), int(r.read4s())
		dataType := int(r.read4s())
		r.skip(8) // thumbnail size
		voxelX, voxelY, voxelZ := r.readF64(), r.readF64(), r.readF64()
		originX, originY, originZ := r.readF64(), r.readF64(), r.readF64()
		scanType := int(r.read2())

		d.put("DimensionX", sizeX)
		d.put("DimensionY", sizeY)
		d.put("DimensionZ", sizeZ)
		d.put("DimensionChannels", sizeC)
		d.put("DimensionTime", sizeT)
		d.put("DataType", dataType)
		d.put("VoxelSizeX", voxelX)
		d.put("VoxelSizeY", voxelY)
		d.put("VoxelSizeZ", voxelZ)
		d.put("OriginX", originX)
		d.put("OriginY", originY)
		d.put("OriginZ", originZ)
		if s, found := lsmScanTypes[scanType]; found {
			d.put("ScanType", s)
		}

		d.attr("Pixels", "SizeZ", sizeZ)
		d.attr("Pixels", "SizeC", sizeC)
		d.attr("Pixels", "SizeT", sizeT)
		// Voxel sizes are stored in meters.
		d.attr("Image", "PixelSizeX", voxelX*1e6)
		d.attr("Image", "PixelSizeY", voxelY*1e6)
		d.attr("Image", "PixelSizeZ", voxelZ*1e6)
	})
}

func (d *imageDecoderLSM) blockCount() int {
	return len(d.ifds)
}

func (d *imageDecoderLSM) decodeBlock(i int) (*Plane, error) {
	ifd := d.ifds[i]
	p, err := ifd.decodeStrips(d.ra, d.length(), d.opts.LimitPlaneBytes)
	if err != nil {
		return nil, err
	}
	if ifd.intVal(tiffTagPhotometric, tiffPhotometricBlackIsZero) == tiffPhotometricBlackIsZero && d.maxChannels >= 3 {
		p = p.replicateChannels(3)
	}
	return p, nil
}
