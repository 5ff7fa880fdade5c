package v3d

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The sample order of a Volume is load-bearing for every codec and for stitching.
// This fixture pins it: column fastest, then row, plane, channel.
func TestVolumeAxisOrder(t *testing.T) {
	vol, err := NewVolume(Point3d{4, 3, 2}, 2, T_uint8)
	require.NoError(t, err)
	x, y, z, c := vol.Dims()
	assert.Equal(t, [4]int32{4, 3, 2, 2}, [4]int32{x, y, z, c})
	require.Len(t, vol.Data, 4*3*2*2)

	vol.SetValue(1, 0, 0, 0, 11)
	vol.SetValue(0, 1, 0, 0, 22)
	vol.SetValue(0, 0, 1, 0, 33)
	vol.SetValue(0, 0, 0, 1, 44)
	assert.Equal(t, uint8(11), vol.Data[1])
	assert.Equal(t, uint8(22), vol.Data[4])
	assert.Equal(t, uint8(33), vol.Data[12])
	assert.Equal(t, uint8(44), vol.Data[24])
}

func TestVolume16LittleEndian(t *testing.T) {
	vol, err := NewVolume(Point3d{2, 2, 1}, 1, T_uint16)
	require.NoError(t, err)
	vol.SetValue(1, 1, 0, 0, 0xABCD)
	assert.Equal(t, uint16(0xABCD), binary.LittleEndian.Uint16(vol.Data[6:8]))
	assert.Equal(t, uint16(0xABCD), vol.Value(1, 1, 0, 0))
	assert.Equal(t, int64(6), vol.Offset(1, 1, 0, 0))
}

func TestNewVolumeRejectsBadShape(t *testing.T) {
	_, err := NewVolume(Point3d{0, 1, 1}, 1, T_uint8)
	assert.Error(t, err)
	_, err = NewVolume(Point3d{1, 1, 1}, 0, T_uint8)
	assert.Error(t, err)
	_, err = NewVolume(Point3d{1, 1, 1}, 1, T_unknown)
	assert.Error(t, err)
}

func TestVolumeBytes(t *testing.T) {
	n, ok := VolumeBytes(Point3d{10, 20, 30}, 2, T_uint16)
	assert.True(t, ok)
	assert.Equal(t, int64(24000), n)

	_, ok = VolumeBytes(Point3d{math.MaxInt32, math.MaxInt32, math.MaxInt32}, MaxChannels, T_uint16)
	assert.False(t, ok)

	_, err := NewVolume(Point3d{math.MaxInt32, math.MaxInt32, 1}, 1, T_uint8)
	assert.Error(t, err)
}

func TestCopyFrom(t *testing.T) {
	src, err := NewVolume(Point3d{5, 4, 3}, 2, T_uint16)
	require.NoError(t, err)
	for c := int32(0); c < 2; c++ {
		for z := int32(0); z < 3; z++ {
			for y := int32(0); y < 4; y++ {
				for x := int32(0); x < 5; x++ {
					src.SetValue(x, y, z, c, uint16(1000*c+100*z+10*y+x))
				}
			}
		}
	}
	dst, err := NewVolume(Point3d{3, 3, 3}, 2, T_uint16)
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src, Point3d{2, 1, 1}, Point3d{1, 0, 1}, Point3d{2, 3, 2}))
	assert.Equal(t, uint16(0), dst.Value(0, 0, 1, 0))
	assert.Equal(t, uint16(112), dst.Value(1, 0, 1, 0))
	assert.Equal(t, uint16(1000+200+30+3), dst.Value(2, 2, 2, 1))

	assert.Error(t, dst.CopyFrom(src, Point3d{4, 0, 0}, Point3d{0, 0, 0}, Point3d{2, 1, 1}))
}

func TestExtents(t *testing.T) {
	a := NewExtents3d(Point3d{10, 20, 30}, Point3d{5, 5, 5})
	assert.Equal(t, Point3d{14, 24, 34}, a.MaxPoint)
	assert.Equal(t, int64(125), a.NumVoxels())

	b := Extents3d{Point3d{12, 0, 33}, Point3d{100, 21, 40}}
	i, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Extents3d{Point3d{12, 20, 33}, Point3d{14, 21, 34}}, i)

	_, ok = a.Intersect(NewExtents3d(Point3d{15, 20, 30}, Point3d{1, 1, 1}))
	assert.False(t, ok)
	assert.True(t, a.Contains(Point3d{14, 24, 34}))
	assert.False(t, a.Contains(Point3d{15, 24, 34}))
	assert.Equal(t, Point3d{2, 0, 3}, i.Translate(Point3d{10, 20, 30}).MinPoint)

	p, err := StringToPoint3d("1, 2,3", ",")
	require.NoError(t, err)
	assert.Equal(t, Point3d{1, 2, 3}, p)
	_, err = StringToPoint3d("1,2", ",")
	assert.Error(t, err)
}

func TestReadRawRegion(t *testing.T) {
	vol, err := NewVolume(Point3d{6, 5, 4}, 2, T_uint16)
	require.NoError(t, err)
	for i := int64(0); i < vol.NumSamples(); i++ {
		binary.LittleEndian.PutUint16(vol.Data[2*i:], uint16(i*7))
	}
	header := []byte("0123456789")
	file := append(append([]byte{}, header...), vol.Data...)
	layout := RawLayout{
		Offset:   int64(len(header)),
		Size:     vol.Size,
		Channels: 2,
		Type:     T_uint16,
		Order:    binary.LittleEndian,
	}
	box := Extents3d{Point3d{1, 2, 1}, Point3d{4, 4, 3}}
	crop, err := ReadRawRegion(BytesReader(file), layout, box)
	require.NoError(t, err)
	assert.Equal(t, Point3d{4, 3, 3}, crop.Size)
	for c := int32(0); c < 2; c++ {
		for z := int32(0); z < 3; z++ {
			for y := int32(0); y < 3; y++ {
				for x := int32(0); x < 4; x++ {
					require.Equal(t, vol.Value(x+1, y+2, z+1, c), crop.Value(x, y, z, c))
				}
			}
		}
	}

	_, err = ReadRawRegion(BytesReader(file), layout, Extents3d{Point3d{0, 0, 0}, Point3d{6, 0, 0}})
	assert.ErrorIs(t, err, ErrRange)

	_, err = ReadRawRegion(BytesReader(file[:len(file)-2]), layout, NewExtents3d(Point3d{}, vol.Size))
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestErrorKinds(t *testing.T) {
	var err error = &UnsupportedFormatError{Path: "x", Reason: "scheme"}
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, Retryable(err))

	err = &TileReadError{Tile: "a.v3draw", Err: CorruptDataf("short")}
	assert.ErrorIs(t, err, ErrTileRead)
	assert.ErrorIs(t, err, ErrCorruptData)
	assert.True(t, Retryable(err))

	var rerr *RangeError
	err = &RangeError{Box: Extents3d{}, Dims: Point3d{1, 1, 1}}
	assert.ErrorAs(t, err, &rerr)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(&IndexCorruptError{Path: "p", Reason: "gap"}))
	assert.NotErrorIs(t, &FormatError{Path: "p"}, ErrUnsupported)
}
