package view

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
)

type pyramid struct {
	dir   string
	store *storage.Store
	meta  *tiled.Metadata
	vol   *v3d.Volume
}

func makePyramid(t *testing.T, size v3d.Point3d, channels int32, typ v3d.DataType, opts tiled.WriteOptions) *pyramid {
	vol, err := v3d.NewVolume(size, channels, typ)
	require.NoError(t, err)
	rand.New(rand.NewSource(23)).Read(vol.Data)

	dir := t.TempDir()
	store, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, tiled.WritePyramid(store, vol, opts))
	meta, err := tiled.Open(store, tiled.Options{})
	require.NoError(t, err)
	return &pyramid{dir: dir, store: store, meta: meta, vol: vol}
}

// reference crops the expected box out of the source volume.
func reference(t *testing.T, vol *v3d.Volume, box v3d.Extents3d) *v3d.Volume {
	out, err := v3d.NewVolume(box.Size(), vol.Channels, vol.Type)
	require.NoError(t, err)
	require.NoError(t, out.CopyFrom(vol, box.MinPoint, v3d.Point3d{}, box.Size()))
	return out
}

var endToEndOpts = tiled.WriteOptions{
	TileSize: v3d.Point3d{100, 100, 50},
	Overlap:  v3d.Point3d{10, 10, 5},
	Levels:   2,
	Encode:   codec.Options{Compression: codec.LZ4},
}

func TestEndToEndTwoLevels(t *testing.T) {
	p := makePyramid(t, v3d.Point3d{190, 190, 50}, 2, v3d.T_uint16, endToEndOpts)
	require.Equal(t, 2, p.meta.NumLevels())

	v, err := New(p.store, p.meta, Options{})
	require.NoError(t, err)
	x, y, z, c := v.Dims()
	assert.Equal(t, [4]int32{190, 190, 50, 2}, [4]int32{x, y, z, c})
	assert.Equal(t, v3d.T_uint16, v.DataType())

	// 150 x 150 x 50 box spanning four tiles.
	box := v3d.Extents3d{MinPoint: v3d.Point3d{40, 40, 0}, MaxPoint: v3d.Point3d{189, 189, 49}}
	require.Len(t, p.meta.Levels[0].Intersecting(box), 4)
	got, err := v.ExtractBox(box)
	require.NoError(t, err)
	x, y, z, c = got.Dims()
	assert.Equal(t, [4]int32{150, 150, 50, 2}, [4]int32{x, y, z, c})
	assert.True(t, reference(t, p.vol, box).Equal(got))

	coarse, err := v.Level(1)
	require.NoError(t, err)
	assert.Equal(t, 1, coarse.LevelIndex())
	assert.Equal(t, 0, v.LevelIndex())
	x, y, z, _ = coarse.Dims()
	assert.Equal(t, [3]int32{95, 95, 25}, [3]int32{x, y, z})
	half, err := tiled.Downsample(p.vol)
	require.NoError(t, err)
	got, err = coarse.Extract(0, 94, 0, 94, 0, 24)
	require.NoError(t, err)
	assert.True(t, half.Equal(got))

	_, err = v.Level(2)
	assert.Error(t, err)
}

func TestExtractFullAndRange(t *testing.T) {
	p := makePyramid(t, v3d.Point3d{130, 70, 20}, 1, v3d.T_uint8, tiled.WriteOptions{
		TileSize: v3d.Point3d{50, 40, 8},
		Overlap:  v3d.Point3d{6, 4, 2},
	})
	v, err := New(p.store, p.meta, Options{})
	require.NoError(t, err)
	got, err := v.Extract(0, 129, 0, 69, 0, 19)
	require.NoError(t, err)
	assert.True(t, p.vol.Equal(got))

	bad := [][6]int32{
		{0, 130, 0, 69, 0, 19},
		{-1, 10, 0, 10, 0, 10},
		{0, 10, 0, 70, 0, 10},
		{0, 10, 0, 10, 0, 20},
		{5, 4, 0, 10, 0, 10},
	}
	for _, b := range bad {
		_, err := v.Extract(b[0], b[1], b[2], b[3], b[4], b[5])
		var rangeErr *v3d.RangeError
		require.True(t, errors.As(err, &rangeErr), "box %v: %v", b, err)
		assert.Equal(t, v3d.Point3d{130, 70, 20}, rangeErr.Dims)
		assert.True(t, v3d.Retryable(err))
	}
}

func TestExtractHalves(t *testing.T) {
	p := makePyramid(t, v3d.Point3d{130, 70, 20}, 1, v3d.T_uint16, tiled.WriteOptions{
		TileSize: v3d.Point3d{50, 40, 8},
		Overlap:  v3d.Point3d{6, 4, 2},
		Encode:   codec.Options{Compression: codec.RLE},
	})
	v, err := New(p.store, p.meta, Options{Concurrency: 3})
	require.NoError(t, err)
	box := v3d.Extents3d{MinPoint: v3d.Point3d{3, 5, 1}, MaxPoint: v3d.Point3d{120, 66, 18}}
	whole, err := v.ExtractBox(box)
	require.NoError(t, err)
	assert.True(t, reference(t, p.vol, box).Equal(whole))

	for axis := 0; axis < 3; axis++ {
		for _, split := range []int32{box.MinPoint[axis] + 1, (box.MinPoint[axis] + box.MaxPoint[axis]) / 2, box.MaxPoint[axis]} {
			lo, hi := box, box
			lo.MaxPoint[axis] = split - 1
			hi.MinPoint[axis] = split
			a, err := v.ExtractBox(lo)
			require.NoError(t, err)
			b, err := v.ExtractBox(hi)
			require.NoError(t, err)

			joined, err := v3d.NewVolume(box.Size(), 1, v3d.T_uint16)
			require.NoError(t, err)
			require.NoError(t, joined.CopyFrom(a, v3d.Point3d{}, v3d.Point3d{}, a.Size))
			var offset v3d.Point3d
			offset[axis] = split - box.MinPoint[axis]
			require.NoError(t, joined.CopyFrom(b, v3d.Point3d{}, offset, b.Size))
			assert.True(t, whole.Equal(joined), "axis %d split %d", axis, split)
		}
	}
}

func TestOtherTileFormats(t *testing.T) {
	for _, format := range []tiled.Format{tiled.Raw, tiled.Planes} {
		p := makePyramid(t, v3d.Point3d{90, 60, 12}, 1, v3d.T_uint8, tiled.WriteOptions{
			TileSize: v3d.Point3d{40, 40, 6},
			Overlap:  v3d.Point3d{4, 4, 2},
			Format:   format,
		})
		v, err := New(p.store, p.meta, Options{Concurrency: 2})
		require.NoError(t, err)
		box := v3d.Extents3d{MinPoint: v3d.Point3d{10, 20, 3}, MaxPoint: v3d.Point3d{80, 50, 10}}
		got, err := v.ExtractBox(box)
		require.NoError(t, err, "%s", format)
		assert.True(t, reference(t, p.vol, box).Equal(got), "%s", format)
	}
}

func TestMissingTile(t *testing.T) {
	p := makePyramid(t, v3d.Point3d{190, 190, 50}, 1, v3d.T_uint8, endToEndOpts)
	level := p.meta.Levels[0]
	victim, found := level.Owner(v3d.Point3d{150, 150, 10})
	require.True(t, found)
	require.NoError(t, os.Remove(filepath.Join(p.dir, filepath.FromSlash(victim.Path))))

	for _, concurrency := range []int{1, 4} {
		v, err := New(p.store, p.meta, Options{Concurrency: concurrency})
		require.NoError(t, err)
		got, err := v.Extract(40, 189, 40, 189, 0, 49)
		assert.Nil(t, got)
		require.Error(t, err)
		assert.ErrorIs(t, err, v3d.ErrTileRead)
		assert.True(t, v3d.Retryable(err))
		var tileErr *v3d.TileReadError
		require.True(t, errors.As(err, &tileErr))
		assert.Contains(t, tileErr.Tile, victim.Path)

		// Boxes that avoid the missing tile still succeed.
		box := v3d.Extents3d{MaxPoint: v3d.Point3d{50, 50, 49}}
		got, err = v.ExtractBox(box)
		require.NoError(t, err)
		assert.True(t, reference(t, p.vol, box).Equal(got))
	}
}

// Two hand-written tiles hold different constants so the extracted buffer shows which
// tile supplied each voxel of their overlap.
func TestOverlapTakesOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	tileSize := v3d.Point3d{100, 20, 4}
	desc := &tiled.Descriptor{
		Version:  tiled.DescriptorVersion.String(),
		Size:     v3d.Point3d{190, 20, 4},
		Channels: 1,
		DataType: v3d.T_uint8,
		Overlap:  v3d.Point3d{10, 0, 0},
	}
	for i, origin := range []int32{0, 90} {
		vol, err := v3d.NewVolume(tileSize, 1, v3d.T_uint8)
		require.NoError(t, err)
		for j := range vol.Data {
			vol.Data[j] = byte(i + 1)
		}
		data, err := codec.Encode(vol, codec.Options{Compression: codec.RLE})
		require.NoError(t, err)
		name := []string{"left.v3dvol", "right.v3dvol"}[i]
		require.NoError(t, store.WriteAll(name, data))
		desc.Tiles = append(desc.Tiles, tiled.TileEntry{Origin: v3d.Point3d{origin, 0, 0}, Size: tileSize, Path: name})
	}
	data, err := desc.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.WriteAll(tiled.DescriptorFile, data))

	meta, err := tiled.Open(store, tiled.Options{})
	require.NoError(t, err)
	for _, concurrency := range []int{1, 2} {
		v, err := New(store, meta, Options{Concurrency: concurrency})
		require.NoError(t, err)
		got, err := v.Extract(80, 110, 0, 19, 0, 3)
		require.NoError(t, err)
		for z := int32(0); z < 4; z++ {
			for y := int32(0); y < 20; y++ {
				for x := int32(80); x <= 110; x++ {
					expected := uint16(1)
					if x >= 95 {
						expected = 2
					}
					require.Equal(t, expected, got.Value(x-80, y, z, 0), "voxel (%d,%d,%d)", x, y, z)
				}
			}
		}
	}
}
