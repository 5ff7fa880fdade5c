package tiled

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/v3d"
)

func randomVolume(t *testing.T, size v3d.Point3d, channels int32, typ v3d.DataType) *v3d.Volume {
	vol, err := v3d.NewVolume(size, channels, typ)
	require.NoError(t, err)
	rand.New(rand.NewSource(int64(size.Prod()))).Read(vol.Data)
	return vol
}

var testWriteOpts = WriteOptions{
	TileSize: v3d.Point3d{100, 100, 20},
	Overlap:  v3d.Point3d{10, 10, 4},
	Levels:   2,
	Encode:   codec.Options{Compression: codec.Zstd},
}

// writeTestPyramid writes a two-level pyramid and returns its directory.
func writeTestPyramid(t *testing.T, opts WriteOptions) (string, *v3d.Volume) {
	dir := t.TempDir()
	store, err := storage.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	vol := randomVolume(t, v3d.Point3d{190, 150, 30}, 1, v3d.T_uint16)
	require.NoError(t, WritePyramid(store, vol, opts))
	return dir, vol
}

func openDir(t *testing.T, dir string) (*Metadata, error) {
	store, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Open(store, Options{})
}

func TestOpenPyramid(t *testing.T) {
	dir, _ := writeTestPyramid(t, testWriteOpts)
	meta, err := openDir(t, dir)
	require.NoError(t, err)
	require.Equal(t, 2, meta.NumLevels())
	assert.Equal(t, Tiled, meta.Scheme)

	level0, err := meta.Level(0)
	require.NoError(t, err)
	assert.Equal(t, "RES(150x190x30)", level0.Name)
	assert.Equal(t, v3d.Point3d{190, 150, 30}, level0.Size)
	assert.Equal(t, [3]int{2, 2, 2}, level0.GridSize())
	assert.Equal(t, v3d.T_uint16, level0.Type)
	for _, tile := range level0.Tiles {
		assert.Equal(t, Container, tile.Format)
	}

	level1, err := meta.Level(1)
	require.NoError(t, err)
	assert.Equal(t, v3d.Point3d{95, 75, 15}, level1.Size)
	assert.Equal(t, [3]int{1, 1, 1}, level1.GridSize())

	_, err = meta.Level(2)
	assert.Error(t, err)

	// Each voxel is owned by exactly one tile, the one Owner reports.
	for z := int32(0); z < level0.Size[2]; z++ {
		for y := int32(0); y < level0.Size[1]; y++ {
			for x := int32(0); x < level0.Size[0]; x++ {
				p := v3d.Point3d{x, y, z}
				var owners []*Tile
				for _, tile := range level0.Tiles {
					if tile.Owned.Contains(p) {
						owners = append(owners, tile)
					}
				}
				require.Len(t, owners, 1, "voxel %s", p)
				owner, found := level0.Owner(p)
				require.True(t, found)
				require.Equal(t, owners[0], owner)
				require.True(t, owner.Physical.Contains(p))
			}
		}
	}
	_, found := level0.Owner(v3d.Point3d{190, 0, 0})
	assert.False(t, found)

	tile, _ := level0.Owner(v3d.Point3d{94, 94, 17})
	assert.Equal(t, [3]int{0, 0, 0}, tile.Position)
	tile, _ = level0.Owner(v3d.Point3d{95, 95, 18})
	assert.Equal(t, [3]int{1, 1, 1}, tile.Position)

	box := v3d.Extents3d{MinPoint: v3d.Point3d{91, 0, 0}, MaxPoint: v3d.Point3d{99, 5, 5}}
	assert.Len(t, level0.Intersecting(box), 2)
}

func TestOpenOtherFormats(t *testing.T) {
	for _, format := range []Format{Raw, Planes} {
		opts := WriteOptions{
			TileSize:       v3d.Point3d{64, 64, 10},
			Overlap:        v3d.Point3d{6, 6, 2},
			Format:         format,
			RootDescriptor: true,
		}
		dir := t.TempDir()
		store, err := storage.Open(dir)
		require.NoError(t, err)
		vol := randomVolume(t, v3d.Point3d{100, 70, 12}, 1, v3d.T_uint8)
		require.NoError(t, WritePyramid(store, vol, opts))
		store.Close()

		meta, err := openDir(t, dir)
		require.NoError(t, err, "%s", format)
		require.Equal(t, 1, meta.NumLevels())
		level := meta.Levels[0]
		assert.Equal(t, "", level.Name)
		assert.Equal(t, [3]int{2, 2, 2}, level.GridSize())
		for _, tile := range level.Tiles {
			assert.Equal(t, format, tile.Format)
			if format == Planes {
				assert.Len(t, tile.Planes, int(tile.Physical.Size()[2]))
			}
		}
	}
}

// editDescriptor rewrites a level descriptor in place.
func editDescriptor(t *testing.T, path string, edit func(desc *Descriptor)) {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	desc, err := ParseDescriptor(data)
	require.NoError(t, err)
	edit(desc)
	data, err = desc.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestOpenCorruptIndex(t *testing.T) {
	level0 := "RES(150x190x30)"
	tests := map[string]func(t *testing.T, dir string){
		"missing tile": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				require.NoError(t, os.Remove(filepath.Join(dir, level0, filepath.FromSlash(desc.Tiles[3].Path))))
			})
		},
		"wrong tile size": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				small := randomVolume(t, v3d.Point3d{5, 5, 5}, 1, v3d.T_uint16)
				data, err := codec.Encode(small, codec.Options{})
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(dir, level0, filepath.FromSlash(desc.Tiles[0].Path)), data, 0644))
			})
		},
		"wrong sample type": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				desc.DataType = v3d.T_uint8
			})
		},
		"level name": func(t *testing.T, dir string) {
			require.NoError(t, os.Rename(filepath.Join(dir, level0), filepath.Join(dir, "RES(150x191x30)")))
		},
		"schema": func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, level0, DescriptorFile), []byte(`{"version": "1.0.0"}`), 0644))
		},
		"not json": func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, level0, DescriptorFile), []byte(`tiles:`), 0644))
		},
		"version": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				desc.Version = "2.0.0"
			})
		},
		"missing descriptor": func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, level0, DescriptorFile)))
		},
		"duplicate cell": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				desc.Tiles[1] = desc.Tiles[0]
			})
		},
		"missing cell": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				desc.Tiles = desc.Tiles[:len(desc.Tiles)-1]
			})
		},
		"tile outside level": func(t *testing.T, dir string) {
			editDescriptor(t, filepath.Join(dir, level0, DescriptorFile), func(desc *Descriptor) {
				desc.Tiles[0].Origin[0] = 150
			})
		},
	}
	for name, corrupt := range tests {
		t.Run(name, func(t *testing.T) {
			dir, _ := writeTestPyramid(t, testWriteOpts)
			corrupt(t, dir)
			_, err := openDir(t, dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, v3d.ErrIndexCorrupt, "%v", err)
		})
	}
}

func TestOpenEmptyDirectory(t *testing.T) {
	_, err := openDir(t, t.TempDir())
	assert.ErrorIs(t, err, v3d.ErrIndexCorrupt)
}

func TestDownsample(t *testing.T) {
	vol, err := v3d.NewVolume(v3d.Point3d{3, 2, 1}, 1, v3d.T_uint8)
	require.NoError(t, err)
	copy(vol.Data, []byte{10, 20, 30, 30, 40, 50})
	half, err := Downsample(vol)
	require.NoError(t, err)
	assert.Equal(t, v3d.Point3d{2, 1, 1}, half.Size)
	assert.Equal(t, []byte{25, 40}, half.Data)
}
