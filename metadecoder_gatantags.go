// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/binary"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DM3 tag entry kinds.
const (
	gatanTagGroup = 20
	gatanTagData  = 21
)

// DM3 encoded types.
const (
	gatanTypeInt16   = 2
	gatanTypeInt32   = 3
	gatanTypeUint16  = 4
	gatanTypeUint32  = 5
	gatanTypeFloat32 = 6
	gatanTypeFloat64 = 7
	gatanTypeBool    = 8
	gatanTypeInt8    = 9
	gatanTypeUint8   = 10
	gatanTypeInt64   = 11
	gatanTypeUint64  = 12
	gatanTypeStruct  = 15
	gatanTypeString  = 18
	gatanTypeArray   = 20
)

// Arrays of uint16 up to this length are decoded as UTF-16 text.
const gatanMaxTextLength = 256

const gatanMaxDepth = 64

var gatanTypeSizes = map[int]int64{
	gatanTypeInt16:   2,
	gatanTypeInt32:   4,
	gatanTypeUint16:  2,
	gatanTypeUint32:  4,
	gatanTypeFloat32: 4,
	gatanTypeFloat64: 8,
	gatanTypeBool:    1,
	gatanTypeInt8:    1,
	gatanTypeUint8:   1,
	gatanTypeInt64:   8,
	gatanTypeUint64:  8,
}

// gatanTagContext is the position of a tag group in the tag tree.
type gatanTagContext struct {
	// Non-empty ancestor labels, outermost first.
	path  []string
	depth int
}

func (c gatanTagContext) parent() string {
	if len(c.path) == 0 {
		return ""
	}
	return c.path[len(c.path)-1]
}

func (c gatanTagContext) key(label string) string {
	return strings.Join(append(c.path[:len(c.path):len(c.path)], label), ".")
}

func (c gatanTagContext) child(label string) gatanTagContext {
	path := c.path[:len(c.path):len(c.path)]
	if label != "" {
		path = append(path, label)
	}
	return gatanTagContext{path: path, depth: c.depth + 1}
}

// structure reads a u32 of the tag structure, which is stored in the
// opposite byte order to the data.
func (d *imageDecoderGatan) structure() uint32 {
	return uint32(d.readUint(4, d.otherByteOrder()))
}

// parseTags reads count tag entries belonging to the group described by ctx.
func (d *imageDecoderGatan) parseTags(count int, ctx gatanTagContext) {
	if ctx.depth > gatanMaxDepth {
		d.stop(newBadHeaderErrorf("tag groups nested deeper than %d", gatanMaxDepth))
	}
	for i := range count {
		kind := d.read1()
		labelLength := int(d.readUint(2, d.otherByteOrder()))
		label := latin1String(d.readBytesVolatile(labelLength))
		if label == "" {
			label = strconv.Itoa(i)
		}

		switch kind {
		case gatanTagGroup:
			d.skip(2)
			n := int(d.structure())
			d.parseTags(n, ctx.child(label))
		case gatanTagData:
			d.parseTagData(i, label, ctx)
		default:
			d.stop(newBadHeaderErrorf("tag %q: unknown entry kind %d", ctx.key(label), kind))
		}
	}
}

func (d *imageDecoderGatan) parseTagData(index int, label string, ctx gatanTagContext) {
	d.skip(4) // %%%%
	n := d.structure()
	key := ctx.key(label)

	switch n {
	case 1:
		typ := int(d.structure())
		v := d.readGatanValue(typ, key)
		d.put(key, v)
		if ctx.parent() == "Dimensions" && index < 2 {
			d.dims[index] = int(toFloat64(v))
		}
		switch label {
		case "PixelDepth":
			d.pixelDepth = int(toFloat64(v))
		case "DataType":
			d.dataType = int(toFloat64(v))
		}
	case 2:
		// String descriptors are stored in the data byte order.
		typ := int(d.read4())
		if typ != gatanTypeString {
			d.stop(newBadHeaderErrorf("tag %q: unexpected string type %d", key, typ))
		}
		length := int64(d.read4())
		b, closer, err := d.bufferedReader(length)
		if err != nil {
			d.stop(err)
		}
		d.put(key, latin1String(b.readBytesVolatile(int(length))))
		closer.Close()
	case 3:
		typ := int(d.structure())
		if typ != gatanTypeArray {
			d.stop(newBadHeaderErrorf("tag %q: unexpected array type %d", key, typ))
		}
		elemType := int(d.structure())
		length := int64(d.structure())
		d.parseTagArray(key, label, elemType, length)
	default:
		typ := int(d.structure())
		switch typ {
		case gatanTypeStruct:
			d.skip(d.structSize(key))
		case gatanTypeArray:
			elemType := int(d.structure())
			if elemType != gatanTypeStruct {
				d.stop(newBadHeaderErrorf("tag %q: unexpected array element type %d", key, elemType))
			}
			size := d.structSize(key)
			count := int64(d.structure())
			d.skipN(size, count)
		default:
			d.stop(newBadHeaderErrorf("tag %q: unexpected type %d with %d info entries", key, typ, n))
		}
	}
}

func (d *imageDecoderGatan) readGatanValue(typ int, key string) any {
	order := d.byteOrder
	switch typ {
	case gatanTypeInt16:
		return int16(d.readInt(2, order))
	case gatanTypeInt32:
		return int32(d.readInt(4, order))
	case gatanTypeUint16:
		return uint16(d.readUint(2, order))
	case gatanTypeUint32:
		return uint32(d.readUint(4, order))
	case gatanTypeFloat32:
		return d.readFloat32(order)
	case gatanTypeFloat64:
		return d.readFloat64(order)
	case gatanTypeBool:
		return d.read1() != 0
	case gatanTypeInt8:
		return int8(d.read1())
	case gatanTypeUint8:
		return d.read1()
	case gatanTypeInt64:
		return d.readInt(8, order)
	case gatanTypeUint64:
		return d.readUint(8, order)
	}
	d.stop(newBadHeaderErrorf("tag %q: unknown value type %d", key, typ))
	return nil
}

// structSize reads a struct type description and returns the size of one struct value.
func (d *imageDecoderGatan) structSize(key string) int64 {
	size := int64(d.structure()) // name length
	numFields := int(d.structure())
	for range numFields {
		size += int64(d.structure()) // field name length
		typ := int(d.structure())
		fieldSize, found := gatanTypeSizes[typ]
		if !found {
			d.stop(newBadHeaderErrorf("tag %q: unknown struct field type %d", key, typ))
		}
		size += fieldSize
	}
	return size
}

// skipN skips count values of size bytes.
func (d *imageDecoderGatan) skipN(size, count int64) {
	if size != 0 && count > d.remaining()/size {
		d.stop(newTruncatedErrorf("%d values of %d bytes", count, size))
	}
	d.skip(size * count)
}

func (d *imageDecoderGatan) parseTagArray(key, label string, elemType int, length int64) {
	if label == "Data" {
		d.numDataTags++
		if d.numDataTags == 2 {
			d.locatePixels(length)
			return
		}
	}

	size, found := gatanTypeSizes[elemType]
	if !found {
		d.stop(newBadHeaderErrorf("tag %q: unknown array element type %d", key, elemType))
	}

	if elemType == gatanTypeUint16 && length <= gatanMaxTextLength {
		b, closer, err := d.bufferedReader(size * length)
		if err != nil {
			d.stop(err)
		}
		defer closer.Close()
		d.put(key, decodeUTF16(b.readBytesVolatile(int(size*length)), d.byteOrder))
		return
	}

	d.skipN(size, length)
}

// locatePixels finds the extent of the image payload of length samples at the
// current position. The sample width is not known until later in the file, so
// it is found by doubling a guess until the byte after the payload starts the
// next tag entry.
func (d *imageDecoderGatan) locatePixels(length int64) {
	start := d.pos()
	for bpp := int64(1); bpp <= 8; bpp *= 2 {
		end := start + bpp*length
		if length <= 0 || end > d.length() || end < start {
			break
		}
		if end < d.length() {
			d.seek(end)
			if b := d.read1(); b != gatanTagGroup && b != gatanTagData {
				continue
			}
		}
		d.pixelOffset, d.pixelCount, d.pixelBytes = start, length, int(bpp)
		d.seek(end)
		return
	}
	d.stop(newBadHeaderErrorf("cannot locate the end of the %d sample image data", length))
}

// decodeUTF16 decodes b as UTF-16 text in the given byte order.
func decodeUTF16(b []byte, order binary.ByteOrder) string {
	endianness := unicode.LittleEndian
	if order == binary.BigEndian {
		endianness = unicode.BigEndian
	}
	s, err := unicode.UTF16(endianness, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(s), "\x00")
}
