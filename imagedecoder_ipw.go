// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/bep/biodecode/internal/ole"
)

// The description in the ImageInfo stream follows a fixed size preamble.
const ipwImageInfoPreamble = 22

type imageDecoderIPW struct {
	*baseDecoder

	// Embedded TIFF files in image number order.
	images [][]byte
	ifds   []tiffIFD
}

func (d *imageDecoderIPW) init() error {
	if !bytes.HasPrefix(d.readBytesVolatile(len(oleMagic)), oleMagic) {
		return fmt.Errorf("%w: not a compound document", ErrFormatMismatch)
	}

	var (
		version   string
		imageInfo []byte
		images    = make(map[int][]byte)
	)

	err := ole.Walk(d.ra, func(s *ole.Stream) error {
		switch s.Name {
		case "CONTENTS", "FrameRate", "FrameInfo", "ImageInfo", "ImageTIFF":
		default:
			return nil
		}
		b, err := s.Bytes(d.opts.LimitTagSize)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadHeader, err)
		}
		switch s.Name {
		case "CONTENTS":
			version = printableString(string(b))
		case "FrameRate":
			if len(b) >= 4 {
				d.put("Frame Rate", binary.LittleEndian.Uint32(b))
			}
		case "FrameInfo":
			for i := 0; i+2 <= len(b); i += 2 {
				d.put("FrameInfo "+strconv.Itoa(i/2), int16(binary.LittleEndian.Uint16(b[i:])))
			}
		case "ImageInfo":
			imageInfo = b
		case "ImageTIFF":
			n := ipwImageNumber(s.Parent())
			if _, found := images[n]; found {
				d.warnf("ipw: duplicate image number %d in storage %q", n, s.Parent())
			}
			images[n] = b
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if len(images) == 0 {
		return newBadHeaderErrorf("no ImageTIFF streams")
	}

	nums := make([]int, 0, len(images))
	for n := range images {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		ifd, err := decodeTIFF(images[n])
		if err != nil {
			return fmt.Errorf("image %d: %w", n, err)
		}
		d.images = append(d.images, images[n])
		d.ifds = append(d.ifds, ifd)
	}

	var description string
	if len(imageInfo) > ipwImageInfoPreamble {
		description = string(imageInfo[ipwImageInfoPreamble:])
	}
	d.put("Image Description", printableString(description))

	// Defaults, possibly overridden by the description.
	d.put("slices", "1")
	d.put("channels", "1")
	d.put("frames", strconv.Itoa(len(d.images)))
	for _, kv := range parseKeyValueLines(description, "Timestamp") {
		d.put(kv.key, kv.value)
	}
	d.put("Version", version)
	d.putTIFFMetadata(d.ifds[0])

	first := d.ifds[0]
	d.attr("Pixels", "SizeX", first.intVal(tiffTagImageWidth, 0))
	d.attr("Pixels", "SizeY", first.intVal(tiffTagImageLength, 0))
	d.attr("Pixels", "SizeZ", metaString(d.meta, "slices", "1"))
	d.attr("Pixels", "SizeC", metaString(d.meta, "channels", "1"))
	d.attr("Pixels", "SizeT", metaString(d.meta, "frames", "1"))
	d.attr("Pixels", "BigEndian", first.order == binary.BigEndian)
	d.attr("Image", "Description", version)

	return nil
}

// ipwImageNumber returns the image number encoded in the trailing digits of
// the storage name, or 0 for the root storage.
func ipwImageNumber(storage string) int {
	prefix := strings.TrimRightFunc(storage, unicode.IsDigit)
	n, err := strconv.Atoi(storage[len(prefix):])
	if err != nil {
		return 0
	}
	return n
}

func (d *imageDecoderIPW) blockCount() int {
	return len(d.images)
}

func (d *imageDecoderIPW) decodeBlock(i int) (*Plane, error) {
	b := d.images[i]
	return d.ifds[i].decodeStrips(bytes.NewReader(b), int64(len(b)), d.opts.LimitPlaneBytes)
}
