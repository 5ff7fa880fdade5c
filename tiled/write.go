package tiled

import (
	"bytes"
	"fmt"
	"path"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/codec/v3draw"
	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/v3d"
)

// WriteOptions control how a volume is cut into a pyramid.
type WriteOptions struct {
	// TileSize is the physical size of interior tiles, overlap included.
	TileSize v3d.Point3d

	// Overlap is the number of voxels shared by neighboring tiles along each axis.
	Overlap v3d.Point3d

	// Levels is the number of resolutions.  Each level halves the one before.
	Levels int

	// Format of the tile files.  Planes requires single-channel volumes.
	Format Format

	// Encode controls container tiles.
	Encode codec.Options

	VoxelSize [3]float64

	// RootDescriptor writes a single-level pyramid's descriptor at the root instead of
	// in a RES(HxWxD) directory.
	RootDescriptor bool
}

// tileSpans returns the [origin, end) spans along one axis for tiles of the given size
// and overlap.  The last tile is shortened to end at dim.
func tileSpans(dim, tileSize, overlap int32) ([][2]int32, error) {
	if tileSize > dim {
		tileSize = dim
	}
	step := tileSize - overlap
	if step <= 0 && tileSize < dim {
		return nil, fmt.Errorf("overlap %d must be smaller than tile size %d", overlap, tileSize)
	}
	var spans [][2]int32
	for origin := int32(0); ; origin += step {
		end := origin + tileSize
		if end >= dim {
			spans = append(spans, [2]int32{origin, dim})
			return spans, nil
		}
		spans = append(spans, [2]int32{origin, end})
	}
}

// Downsample halves a volume along every axis with more than one voxel, averaging
// each 2x2x2 neighborhood.
func Downsample(vol *v3d.Volume) (*v3d.Volume, error) {
	var factor, size v3d.Point3d
	for axis := 0; axis < 3; axis++ {
		factor[axis] = 1
		if vol.Size[axis] > 1 {
			factor[axis] = 2
		}
		size[axis] = (vol.Size[axis] + factor[axis] - 1) / factor[axis]
	}
	out, err := v3d.NewVolume(size, vol.Channels, vol.Type)
	if err != nil {
		return nil, err
	}
	for c := int32(0); c < vol.Channels; c++ {
		for z := int32(0); z < size[2]; z++ {
			for y := int32(0); y < size[1]; y++ {
				for x := int32(0); x < size[0]; x++ {
					var sum, n uint32
					for dz := int32(0); dz < factor[2]; dz++ {
						for dy := int32(0); dy < factor[1]; dy++ {
							for dx := int32(0); dx < factor[0]; dx++ {
								sx, sy, sz := x*factor[0]+dx, y*factor[1]+dy, z*factor[2]+dz
								if sx < vol.Size[0] && sy < vol.Size[1] && sz < vol.Size[2] {
									sum += uint32(vol.Value(sx, sy, sz, c))
									n++
								}
							}
						}
					}
					out.SetValue(x, y, z, c, uint16((sum+n/2)/n))
				}
			}
		}
	}
	return out, nil
}

// WritePyramid cuts a volume into overlapping tiles at one or more resolutions and
// writes them with their descriptors and a Tiled scheme marker.
func WritePyramid(store *storage.Store, vol *v3d.Volume, opts WriteOptions) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if opts.Levels < 1 {
		opts.Levels = 1
	}
	if opts.Format == UnknownFormat {
		opts.Format = Container
	}
	if opts.Format == Planes && vol.Channels != 1 {
		return fmt.Errorf("plane tiles need a single channel volume, not %d channels", vol.Channels)
	}
	if opts.RootDescriptor && opts.Levels != 1 {
		return fmt.Errorf("a root descriptor can only describe a single level")
	}
	if err := store.WriteAll(FormatFile, []byte(Tiled.String()+"\n")); err != nil {
		return err
	}
	cur := vol
	for n := 0; n < opts.Levels; n++ {
		if n > 0 {
			var err error
			if cur, err = Downsample(cur); err != nil {
				return err
			}
		}
		name := LevelName(cur.Size)
		if opts.RootDescriptor {
			name = ""
		}
		if err := writeLevel(store, name, cur, opts); err != nil {
			return fmt.Errorf("writing level %d: %w", n, err)
		}
	}
	return nil
}

func writeLevel(store *storage.Store, name string, vol *v3d.Volume, opts WriteOptions) error {
	var spans [3][][2]int32
	for axis := 0; axis < 3; axis++ {
		tileSize := opts.TileSize[axis]
		if tileSize <= 0 {
			tileSize = vol.Size[axis]
		}
		overlap := opts.Overlap[axis]
		if tileSize >= vol.Size[axis] {
			overlap = 0
		}
		var err error
		if spans[axis], err = tileSpans(vol.Size[axis], tileSize, overlap); err != nil {
			return err
		}
	}
	desc := &Descriptor{
		Version:   DescriptorVersion.String(),
		Size:      vol.Size,
		Channels:  vol.Channels,
		DataType:  vol.Type,
		VoxelSize: opts.VoxelSize,
		Overlap:   opts.Overlap,
	}
	for _, zs := range spans[2] {
		for _, ys := range spans[1] {
			for _, xs := range spans[0] {
				origin := v3d.Point3d{xs[0], ys[0], zs[0]}
				size := v3d.Point3d{xs[1] - xs[0], ys[1] - ys[0], zs[1] - zs[0]}
				tile, err := v3d.NewVolume(size, vol.Channels, vol.Type)
				if err != nil {
					return err
				}
				if err := tile.CopyFrom(vol, origin, v3d.Point3d{}, size); err != nil {
					return err
				}
				entry, err := writeTile(store, name, origin, tile, opts)
				if err != nil {
					return err
				}
				desc.Tiles = append(desc.Tiles, entry)
			}
		}
	}
	data, err := desc.Marshal()
	if err != nil {
		return err
	}
	v3d.Infof("Writing %d tiles of %s level %q\n", len(desc.Tiles), vol.Size, name)
	return store.WriteAll(path.Join(name, DescriptorFile), data)
}

func writeTile(store *storage.Store, level string, origin v3d.Point3d, tile *v3d.Volume, opts WriteOptions) (TileEntry, error) {
	format := opts.Format
	entry := TileEntry{Origin: origin, Size: tile.Size, Format: &format}
	dir := fmt.Sprintf("%06d/%06d_%06d", origin[1], origin[0], origin[1])
	base := fmt.Sprintf("%06d_%06d_%06d", origin[0], origin[1], origin[2])
	switch opts.Format {
	case Container, Raw:
		var data []byte
		var err error
		if opts.Format == Container {
			entry.Path = path.Join(dir, base+".v3dvol")
			data, err = codec.Encode(tile, opts.Encode)
		} else {
			entry.Path = path.Join(dir, base+".v3draw")
			data, err = v3draw.Encode(tile)
		}
		if err != nil {
			return entry, err
		}
		return entry, store.WriteAll(path.Join(level, entry.Path), data)
	case Planes:
		for z := int32(0); z < tile.Size[2]; z++ {
			var buf bytes.Buffer
			if err := plane.EncodePNG(&buf, tile, z, 0); err != nil {
				return entry, err
			}
			key := path.Join(dir, base, fmt.Sprintf("%06d.png", origin[2]+z))
			if err := store.WriteAll(path.Join(level, key), buf.Bytes()); err != nil {
				return entry, err
			}
			entry.Planes = append(entry.Planes, key)
		}
		return entry, nil
	default:
		return entry, fmt.Errorf("can't write %s tiles", opts.Format)
	}
}
