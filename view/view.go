// Package view presents one resolution level of a tiled pyramid as a single addressable
// volume and stitches cropped reads from the tiles it covers.
package view

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
)

// Options control a View.
type Options struct {
	// Level selects the resolution, 0 being the native one.
	Level int

	// Concurrency is the number of tiles decoded at once within an extraction.
	// Values below 1 mean sequential decoding.
	Concurrency int

	// Decoder reads plane-series tiles.  The zero value uses plane.ImageDecoder.
	Decoder plane.Decoder
}

// View is an immutable volume view bound to one pyramid level.  It holds no tile data
// and may be used from multiple goroutines.
type View struct {
	store *storage.Store
	meta  *tiled.Metadata
	level *tiled.Level
	opts  Options
}

// New returns a view of the selected level of an indexed pyramid.
func New(store *storage.Store, meta *tiled.Metadata, opts Options) (*View, error) {
	level, err := meta.Level(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Decoder == nil {
		opts.Decoder = plane.ImageDecoder{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &View{store: store, meta: meta, level: level, opts: opts}, nil
}

// Level returns a view of another resolution level of the same pyramid.
func (v *View) Level(n int) (*View, error) {
	opts := v.opts
	opts.Level = n
	return New(v.store, v.meta, opts)
}

// LevelIndex returns the resolution level of the view.
func (v *View) LevelIndex() int {
	return v.opts.Level
}

// Metadata returns the index of the underlying pyramid.
func (v *View) Metadata() *tiled.Metadata {
	return v.meta
}

// Dims returns the extents of the selected level.
func (v *View) Dims() (x, y, z, c int32) {
	return v.level.Size[0], v.level.Size[1], v.level.Size[2], v.level.Channels
}

// DataType returns the sample type of the level.
func (v *View) DataType() v3d.DataType {
	return v.level.Type
}

func (v *View) String() string {
	return fmt.Sprintf("view of %s in %q", v.level, v.meta.Root)
}

// Extract returns the inclusive, 0-indexed box [x0,x1] x [y0,y1] x [z0,z1].
func (v *View) Extract(x0, x1, y0, y1, z0, z1 int32) (*v3d.Volume, error) {
	return v.ExtractBox(v3d.Extents3d{
		MinPoint: v3d.Point3d{x0, y0, z0},
		MaxPoint: v3d.Point3d{x1, y1, z1},
	})
}

// ExtractBox returns the voxels of an inclusive box.  Boxes reaching outside the level
// are a RangeError and are never clamped.  Each intersecting tile is decoded only within
// the box, and only the voxels it owns are copied, so overlapping borders are never
// blended.  If any tile fails to read, no volume is returned.
func (v *View) ExtractBox(box v3d.Extents3d) (*v3d.Volume, error) {
	bounds := v.level.Bounds()
	if box.Empty() || !bounds.Contains(box.MinPoint) || !bounds.Contains(box.MaxPoint) {
		return nil, &v3d.RangeError{Box: box, Dims: v.level.Size}
	}
	timedLog := v3d.NewTimeLog()
	out, err := v3d.NewVolume(box.Size(), v.level.Channels, v.level.Type)
	if err != nil {
		return nil, err
	}

	candidates := v.level.Intersecting(box)
	var g errgroup.Group
	g.SetLimit(v.opts.Concurrency)
	for _, tile := range candidates {
		g.Go(func() error {
			if err := v.stitchTile(out, box, tile); err != nil {
				return &v3d.TileReadError{Tile: v.store.Path(tile.Name()), Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	timedLog.Debugf("Extracted %s (%s) from %d tile(s) of level %d", box, v3d.Bytes(int64(len(out.Data))), len(candidates), v.opts.Level)
	return out, nil
}

// stitchTile decodes the part of box within the tile's physical extent and copies the
// voxels the tile owns into out.  Each tile writes a disjoint region of out.
func (v *View) stitchTile(out *v3d.Volume, box v3d.Extents3d, tile *tiled.Tile) error {
	crop, _ := box.Intersect(tile.Physical)
	origin := tile.Physical.MinPoint
	data, err := readTile(v.store, v.opts.Decoder, tile, crop.Translate(origin), out.Type)
	if err != nil {
		return err
	}
	if data.Type != out.Type || data.Channels != out.Channels {
		return fmt.Errorf("tile holds %d channel(s) of %s, level has %d of %s", data.Channels, data.Type, out.Channels, out.Type)
	}
	owned, overlaps := crop.Intersect(tile.Owned)
	if !overlaps {
		return nil
	}
	srcBeg := owned.MinPoint.Sub(crop.MinPoint)
	dstBeg := owned.MinPoint.Sub(box.MinPoint)
	return out.CopyFrom(data, srcBeg, dstBeg, owned.Size())
}
