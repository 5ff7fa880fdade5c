package v3d

import (
	"encoding/binary"
	"fmt"
)

// RangeReader provides bounded reads of a stored object such as a file or a blob.
// Each call is independent; implementations open and release any underlying handle
// within the call.
type RangeReader interface {
	// ReadRange returns exactly length bytes starting at offset.
	ReadRange(offset, length int64) ([]byte, error)

	// Size returns the total number of bytes in the object.
	Size() (int64, error)
}

// BytesReader is a RangeReader over an in-memory byte slice.  Returned slices share
// memory with the receiver.
type BytesReader []byte

func (b BytesReader) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(b)) {
		return nil, CorruptDataf("range [%d, %d) is beyond the %d available bytes", offset, offset+length, len(b))
	}
	return b[offset : offset+length], nil
}

func (b BytesReader) Size() (int64, error) {
	return int64(len(b)), nil
}

// RawLayout describes an uncompressed payload in the Volume sample order that starts at
// Offset bytes into an object.
type RawLayout struct {
	Offset   int64
	Size     Point3d
	Channels int32
	Type     DataType
	Order    binary.ByteOrder
}

// PayloadBytes returns the number of bytes the payload occupies.
func (l RawLayout) PayloadBytes() int64 {
	return l.Size.Prod() * int64(l.Channels) * int64(l.Type.Bytes())
}

// ReadRawRegion reads the box, given in the payload's own coordinates, from an
// uncompressed payload.  Only the byte span from the first to the last requested row of
// each requested (channel, plane) is read.
func ReadRawRegion(src RangeReader, layout RawLayout, box Extents3d) (*Volume, error) {
	full := NewExtents3d(Point3d{}, layout.Size)
	if box.Empty() || !full.Contains(box.MinPoint) || !full.Contains(box.MaxPoint) {
		return nil, &RangeError{Box: box, Dims: layout.Size}
	}
	out, err := NewVolume(box.Size(), layout.Channels, layout.Type)
	if err != nil {
		return nil, err
	}
	bps := int64(layout.Type.Bytes())
	nx := int64(layout.Size[0])
	ny := int64(layout.Size[1])
	nz := int64(layout.Size[2])
	x0, y0 := int64(box.MinPoint[0]), int64(box.MinPoint[1])
	x1, y1 := int64(box.MaxPoint[0]), int64(box.MaxPoint[1])
	rowBytes := (x1 - x0 + 1) * bps
	spanBytes := ((y1-y0)*nx + (x1 - x0 + 1)) * bps

	for c := int64(0); c < int64(layout.Channels); c++ {
		for z := int64(box.MinPoint[2]); z <= int64(box.MaxPoint[2]); z++ {
			planeStart := layout.Offset + (c*nz+z)*ny*nx*bps
			spanStart := planeStart + (y0*nx+x0)*bps
			span, err := src.ReadRange(spanStart, spanBytes)
			if err != nil {
				return nil, fmt.Errorf("reading channel %d plane %d: %w", c, z, err)
			}
			if int64(len(span)) != spanBytes {
				return nil, CorruptDataf("read %d bytes of channel %d plane %d, expected %d", len(span), c, z, spanBytes)
			}
			for y := y0; y <= y1; y++ {
				srcI := (y - y0) * nx * bps
				dstI := out.Offset(0, int32(y-y0), int32(z-int64(box.MinPoint[2])), int32(c))
				copy(out.Data[dstI:dstI+rowBytes], span[srcI:srcI+rowBytes])
			}
		}
	}
	if bps == 2 && layout.Order == binary.BigEndian {
		SwapBytes16(out.Data)
	}
	return out, nil
}

// SwapBytes16 converts 16-bit samples between big and little endian in place.
func SwapBytes16(data []byte) {
	for i := 0; i+1 < len(data); i += 2 {
		data[i], data[i+1] = data[i+1], data[i]
	}
}
