// Package v3draw implements reading and writing of V3D Raw stacks produced by Vaa3D.

package v3draw

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/janelia-flyem/v3d/v3d"
)

const (
	// Magic starts every V3D Raw file.
	Magic = "raw_image_stack_by_hpeng"

	// HeaderSize is magic, endianness byte, uint16 data type and four uint32 dimensions.
	HeaderSize = len(Magic) + 1 + 2 + 4*4
)

// Header describes a V3D Raw stack.
type Header struct {
	Order    binary.ByteOrder
	Type     v3d.DataType
	Size     v3d.Point3d
	Channels int32
}

// PayloadBytes returns the number of sample bytes following the header.
func (h *Header) PayloadBytes() int64 {
	return h.Size.Prod() * int64(h.Channels) * int64(h.Type.Bytes())
}

// Layout returns the placement of the payload for v3d.ReadRawRegion.
func (h *Header) Layout() v3d.RawLayout {
	return v3d.RawLayout{
		Offset:   int64(HeaderSize),
		Size:     h.Size,
		Channels: h.Channels,
		Type:     h.Type,
		Order:    h.Order,
	}
}

func (h *Header) String() string {
	return fmt.Sprintf("V3D Raw %s x %d channel(s) of %s (%s)", h.Size, h.Channels, h.Type, h.Order)
}

// HasMagic returns true if the bytes begin with the V3D Raw magic string.
func HasMagic(b []byte) bool {
	return len(b) >= len(Magic) && string(b[:len(Magic)]) == Magic
}

// DecodeHeader parses the fixed-size header at the start of a V3D Raw file.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < len(Magic) {
		return nil, v3d.CorruptDataf("V3D Raw header needs %d bytes, got %d", HeaderSize, len(b))
	}
	if !HasMagic(b) {
		return nil, &v3d.FormatError{Reason: fmt.Sprintf("bad magic string in V3D Raw file: %q", b[:len(Magic)])}
	}
	if len(b) < HeaderSize {
		return nil, v3d.CorruptDataf("V3D Raw header needs %d bytes, got %d", HeaderSize, len(b))
	}
	pos := len(Magic)
	var order binary.ByteOrder
	switch b[pos] {
	case 'L':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return nil, &v3d.FormatError{Reason: fmt.Sprintf("illegal byte order %q in V3D Raw file", b[pos])}
	}
	pos++

	h := &Header{Order: order}
	switch dataType := order.Uint16(b[pos:]); dataType {
	case 1:
		h.Type = v3d.T_uint8
	case 2:
		h.Type = v3d.T_uint16
	default:
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("V3D Raw data type %d", dataType)}
	}
	pos += 2

	var dims [4]uint32
	for i := range dims {
		dims[i] = order.Uint32(b[pos:])
		pos += 4
		if dims[i] > math.MaxInt32 {
			return nil, v3d.CorruptDataf("V3D Raw dimension %d has impossible size %d", i, dims[i])
		}
	}
	h.Size = v3d.Point3d{int32(dims[0]), int32(dims[1]), int32(dims[2])}
	h.Channels = int32(dims[3])
	if h.Channels < 1 || h.Channels > v3d.MaxChannels {
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("V3D Raw channel count %d", h.Channels)}
	}
	if h.Size[0] < 1 || h.Size[1] < 1 || h.Size[2] < 1 {
		return nil, v3d.CorruptDataf("V3D Raw size %s must be positive along every axis", h.Size)
	}
	if _, ok := v3d.VolumeBytes(h.Size, h.Channels, h.Type); !ok {
		return nil, v3d.CorruptDataf("V3D Raw size %s x %d channel(s) exceeds %d bytes", h.Size, h.Channels, int64(v3d.MaxVolumeBytes))
	}
	return h, nil
}

// ReadHeader reads the header of a V3D Raw object and verifies the object holds
// exactly the declared payload.
func ReadHeader(src v3d.RangeReader) (*Header, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	n := int64(HeaderSize)
	if size < n {
		n = size
	}
	b, err := src.ReadRange(0, n)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if expected := int64(HeaderSize) + h.PayloadBytes(); size != expected {
		return nil, v3d.CorruptDataf("V3D Raw %s needs %d bytes, has %d", h.Size, expected, size)
	}
	return h, nil
}

// ReadRegion decodes the inclusive box with bounded reads of the requested rows.
func ReadRegion(src v3d.RangeReader, box v3d.Extents3d) (*v3d.Volume, error) {
	h, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	return v3d.ReadRawRegion(src, h.Layout(), box)
}

// Decode converts a complete V3D Raw file into a little-endian volume.
func Decode(data []byte) (*v3d.Volume, error) {
	src := v3d.BytesReader(data)
	h, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	return v3d.ReadRawRegion(src, h.Layout(), v3d.NewExtents3d(v3d.Point3d{}, h.Size))
}

// Encode writes a little-endian V3D Raw file.
func Encode(vol *v3d.Volume) ([]byte, error) {
	return EncodeOrder(vol, binary.LittleEndian)
}

// EncodeOrder writes a V3D Raw file with the given byte order.
func EncodeOrder(vol *v3d.Volume, order binary.ByteOrder) ([]byte, error) {
	if err := vol.Validate(); err != nil {
		return nil, &v3d.UnsupportedFormatError{Reason: "can't write V3D Raw", Err: err}
	}
	var endian byte = 'L'
	if order == binary.BigEndian {
		endian = 'B'
	}
	out := make([]byte, HeaderSize, int64(HeaderSize)+int64(len(vol.Data)))
	copy(out, Magic)
	pos := len(Magic)
	out[pos] = endian
	pos++
	order.PutUint16(out[pos:], uint16(vol.Type.Bytes()))
	pos += 2
	for _, n := range []int32{vol.Size[0], vol.Size[1], vol.Size[2], vol.Channels} {
		order.PutUint32(out[pos:], uint32(n))
		pos += 4
	}
	payload := out[HeaderSize : HeaderSize+len(vol.Data)]
	copy(payload, vol.Data)
	if vol.Type == v3d.T_uint16 && order == binary.BigEndian {
		v3d.SwapBytes16(payload)
	}
	return out[:HeaderSize+len(vol.Data)], nil
}

// DecodeFile reads a V3D Raw file from disk.
func DecodeFile(path string) (*v3d.Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vol, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding V3D Raw %q: %w", path, err)
	}
	return vol, nil
}

// EncodeFile writes a little-endian V3D Raw file to disk.
func EncodeFile(path string, vol *v3d.Volume) error {
	data, err := Encode(vol)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
