package v3d

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxChannels is the largest channel count a Volume or file header may declare.
const MaxChannels = 64

// MaxVolumeBytes is the largest sample buffer a Volume or file header may declare.
const MaxVolumeBytes = 1 << 40

// VolumeBytes returns the size of a sample buffer with the given shape, or false if it
// exceeds MaxVolumeBytes.
func VolumeBytes(size Point3d, channels int32, t DataType) (int64, bool) {
	n := int64(t.Bytes())
	for _, f := range []int64{int64(size[0]), int64(size[1]), int64(size[2]), int64(channels)} {
		if f < 0 || (f > 0 && n > MaxVolumeBytes/f) {
			return 0, false
		}
		n *= f
	}
	return n, true
}

// Volume is a dense buffer of voxel samples with dimensions (X, Y, Z, C).
// Samples are stored little-endian with the column index varying fastest, then row,
// then plane, then channel:
//
//	offset = (((c*Z + z)*Y + y)*X + x) * bytesPerSample
//
// This is the in-memory layout of every buffer produced by the codecs and the tiled
// volume layer.  A Volume returned by any v3d package is owned by the caller.
type Volume struct {
	Size     Point3d
	Channels int32
	Type     DataType
	Data     []byte
}

// NewVolume allocates a zeroed volume.
func NewVolume(size Point3d, channels int32, t DataType) (*Volume, error) {
	if err := checkShape(size, channels, t); err != nil {
		return nil, err
	}
	n := size.Prod() * int64(channels) * int64(t.Bytes())
	return &Volume{
		Size:     size,
		Channels: channels,
		Type:     t,
		Data:     make([]byte, n),
	}, nil
}

func checkShape(size Point3d, channels int32, t DataType) error {
	if !t.Valid() {
		return fmt.Errorf("volume sample type must be uint8 or uint16, not %s", t)
	}
	if channels < 1 || channels > MaxChannels {
		return fmt.Errorf("volume must have 1 to %d channels, not %d", MaxChannels, channels)
	}
	if size[0] < 1 || size[1] < 1 || size[2] < 1 {
		return fmt.Errorf("volume size %s must be positive along every axis", size)
	}
	if _, ok := VolumeBytes(size, channels, t); !ok {
		return fmt.Errorf("volume of %s x %d channel(s) of %s exceeds %d bytes", size, channels, t, int64(MaxVolumeBytes))
	}
	return nil
}

// Dims returns the (X, Y, Z, C) extents of the volume.
func (v *Volume) Dims() (x, y, z, c int32) {
	return v.Size[0], v.Size[1], v.Size[2], v.Channels
}

// BytesPerSample returns the number of bytes used by a single sample.
func (v *Volume) BytesPerSample() int64 {
	return int64(v.Type.Bytes())
}

// RowBytes returns the number of bytes in one row of one channel.
func (v *Volume) RowBytes() int64 {
	return int64(v.Size[0]) * v.BytesPerSample()
}

// PlaneBytes returns the number of bytes in one plane of one channel.
func (v *Volume) PlaneBytes() int64 {
	return int64(v.Size[1]) * v.RowBytes()
}

// NumSamples returns the total number of samples across all channels.
func (v *Volume) NumSamples() int64 {
	return v.Size.Prod() * int64(v.Channels)
}

// Offset returns the byte offset of a sample.
func (v *Volume) Offset(x, y, z, c int32) int64 {
	i := ((int64(c)*int64(v.Size[2])+int64(z))*int64(v.Size[1])+int64(y))*int64(v.Size[0]) + int64(x)
	return i * v.BytesPerSample()
}

// Value returns a sample, widened to 16 bits.
func (v *Volume) Value(x, y, z, c int32) uint16 {
	i := v.Offset(x, y, z, c)
	if v.Type == T_uint8 {
		return uint16(v.Data[i])
	}
	return binary.LittleEndian.Uint16(v.Data[i : i+2])
}

// SetValue sets a sample.  For uint8 volumes the value is truncated to 8 bits.
func (v *Volume) SetValue(x, y, z, c int32, value uint16) {
	i := v.Offset(x, y, z, c)
	if v.Type == T_uint8 {
		v.Data[i] = uint8(value)
		return
	}
	binary.LittleEndian.PutUint16(v.Data[i:i+2], value)
}

// Validate checks that the data length agrees with the declared shape.
func (v *Volume) Validate() error {
	if err := checkShape(v.Size, v.Channels, v.Type); err != nil {
		return err
	}
	expected := v.NumSamples() * v.BytesPerSample()
	if int64(len(v.Data)) != expected {
		return fmt.Errorf("volume %s x %d channels of %s needs %d bytes, has %d",
			v.Size, v.Channels, v.Type, expected, len(v.Data))
	}
	return nil
}

// Equal returns true if both volumes have identical shape, type and samples.
func (v *Volume) Equal(v2 *Volume) bool {
	if v == nil || v2 == nil {
		return v == v2
	}
	return v.Size == v2.Size && v.Channels == v2.Channels && v.Type == v2.Type &&
		bytes.Equal(v.Data, v2.Data)
}

// CopyFrom transfers a box of voxels of the given size from src, starting at srcBeg in
// src coordinates, into the receiver starting at dstBeg.  All channels are copied.
func (v *Volume) CopyFrom(src *Volume, srcBeg, dstBeg, size Point3d) error {
	if src.Type != v.Type || src.Channels != v.Channels {
		return fmt.Errorf("can't copy %d channels of %s into %d channels of %s",
			src.Channels, src.Type, v.Channels, v.Type)
	}
	srcBox := NewExtents3d(srcBeg, size)
	dstBox := NewExtents3d(dstBeg, size)
	if srcBox.Empty() {
		return nil
	}
	if !NewExtents3d(Point3d{}, src.Size).Contains(srcBox.MinPoint) ||
		!NewExtents3d(Point3d{}, src.Size).Contains(srcBox.MaxPoint) {
		return fmt.Errorf("source box %s outside source volume %s", srcBox, src.Size)
	}
	if !NewExtents3d(Point3d{}, v.Size).Contains(dstBox.MinPoint) ||
		!NewExtents3d(Point3d{}, v.Size).Contains(dstBox.MaxPoint) {
		return fmt.Errorf("destination box %s outside volume %s", dstBox, v.Size)
	}

	rowBytes := int64(size[0]) * v.BytesPerSample()
	for c := int32(0); c < v.Channels; c++ {
		for z := int32(0); z < size[2]; z++ {
			for y := int32(0); y < size[1]; y++ {
				srcI := src.Offset(srcBeg[0], srcBeg[1]+y, srcBeg[2]+z, c)
				dstI := v.Offset(dstBeg[0], dstBeg[1]+y, dstBeg[2]+z, c)
				copy(v.Data[dstI:dstI+rowBytes], src.Data[srcI:srcI+rowBytes])
			}
		}
	}
	return nil
}

func (v *Volume) String() string {
	return fmt.Sprintf("%s volume %s with %d channel(s)", v.Type, v.Size, v.Channels)
}
