package view

import (
	"fmt"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/codec/v3draw"
	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
)

// readTile decodes a box given in tile-local coordinates.  Plane tiles are assembled
// into a single channel volume of the given type.
func readTile(store *storage.Store, decoder plane.Decoder, tile *tiled.Tile, local v3d.Extents3d, typ v3d.DataType) (*v3d.Volume, error) {
	switch tile.Format {
	case tiled.Container, tiled.Raw:
		obj, err := store.Object(tile.Path)
		if err != nil {
			return nil, err
		}
		if tile.Format == tiled.Container {
			return codec.ReadRegion(obj, local)
		}
		return v3draw.ReadRegion(obj, local)

	case tiled.Planes:
		out, err := v3d.NewVolume(local.Size(), 1, typ)
		if err != nil {
			return nil, err
		}
		for z := local.MinPoint[2]; z <= local.MaxPoint[2]; z++ {
			if int(z) >= len(tile.Planes) {
				return nil, fmt.Errorf("no plane file for z %d", z)
			}
			key := tile.Planes[z]
			obj, err := store.Object(key)
			if err != nil {
				return nil, err
			}
			region, err := decoder.DecodeRegion(key, obj, local.MinPoint[0], local.MaxPoint[0], local.MinPoint[1], local.MaxPoint[1])
			if err != nil {
				return nil, fmt.Errorf("plane %q: %w", key, err)
			}
			if err := out.CopyFrom(region, v3d.Point3d{}, v3d.Point3d{0, 0, z - local.MinPoint[2]}, region.Size); err != nil {
				return nil, fmt.Errorf("plane %q: %w", key, err)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown tile format %s", tile.Format)
	}
}
