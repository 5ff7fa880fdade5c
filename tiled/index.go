/*
	Package tiled indexes multi-resolution pyramids stored as a grid of overlapping tiles.

	A pyramid directory holds a .iim.format scheme marker and one RES(HxWxD) directory
	per resolution level, each with a mdata.json descriptor listing the level's tiles.  A
	single-level pyramid may instead put mdata.json at the root.  Tile borders overlap;
	Open resolves every overlap so that each voxel of a level is owned by exactly one
	tile.
*/
package tiled

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/DmitriyVTitov/size"

	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/v3d"
)

// Level is one resolution of a pyramid.  Owned extents of its tiles partition the level.
type Level struct {
	// Name is the level's directory, or empty for a root descriptor.
	Name string

	Size      v3d.Point3d
	Channels  int32
	Type      v3d.DataType
	VoxelSize [3]float64

	// Overlap is the declared overlap along each axis.
	Overlap v3d.Point3d

	Tiles []*Tile

	axes  [3]*axisGrid
	cells []*Tile // indexed by grid position, x fastest
}

// GridSize returns the number of tile positions along x, y and z.
func (l *Level) GridSize() [3]int {
	return [3]int{len(l.axes[0].origins), len(l.axes[1].origins), len(l.axes[2].origins)}
}

func (l *Level) cell(pos [3]int) int {
	grid := l.GridSize()
	return (pos[2]*grid[1]+pos[1])*grid[0] + pos[0]
}

// Bounds returns the inclusive extent of the level.
func (l *Level) Bounds() v3d.Extents3d {
	return v3d.NewExtents3d(v3d.Point3d{}, l.Size)
}

// Owner returns the unique tile owning a voxel.
func (l *Level) Owner(p v3d.Point3d) (*Tile, bool) {
	if !l.Bounds().Contains(p) {
		return nil, false
	}
	var pos [3]int
	for axis := 0; axis < 3; axis++ {
		pos[axis] = l.axes[axis].owner(p[axis])
	}
	return l.cells[l.cell(pos)], true
}

// Intersecting returns the tiles whose physical extent intersects the box.
func (l *Level) Intersecting(box v3d.Extents3d) []*Tile {
	var tiles []*Tile
	for _, tile := range l.Tiles {
		if _, overlaps := tile.Physical.Intersect(box); overlaps {
			tiles = append(tiles, tile)
		}
	}
	return tiles
}

func (l *Level) String() string {
	grid := l.GridSize()
	return fmt.Sprintf("level %q %s x %d channel(s) of %s in %d x %d x %d tiles",
		l.Name, l.Size, l.Channels, l.Type, grid[0], grid[1], grid[2])
}

// Metadata is the immutable description of an indexed pyramid.
type Metadata struct {
	Root   string
	Scheme Scheme

	// Levels are ordered finest first; level 0 is the native resolution.
	Levels []*Level
}

// NumLevels returns the number of resolution levels.
func (m *Metadata) NumLevels() int {
	return len(m.Levels)
}

// Level returns the given resolution level.
func (m *Metadata) Level(n int) (*Level, error) {
	if n < 0 || n >= len(m.Levels) {
		return nil, fmt.Errorf("pyramid %q has %d level(s), no level %d", m.Root, len(m.Levels), n)
	}
	return m.Levels[n], nil
}

// Options control how a pyramid is indexed.
type Options struct {
	// Decoder reads plane-series tiles.  The zero value uses plane.ImageDecoder.
	Decoder plane.Decoder
}

func (opts Options) decoder() plane.Decoder {
	if opts.Decoder == nil {
		return plane.ImageDecoder{}
	}
	return opts.Decoder
}

func indexCorrupt(store *storage.Store, key, reason string, err error) error {
	return &v3d.IndexCorruptError{Path: store.Path(key), Reason: reason, Err: err}
}

// Open indexes the tiled pyramid rooted at the store.  Every tile file is checked for
// existence and for dimensions that agree with its descriptor.
func Open(store *storage.Store, opts Options) (*Metadata, error) {
	timedLog := v3d.NewTimeLog()
	entries, err := store.List("")
	if err != nil {
		return nil, fmt.Errorf("listing pyramid %q: %w", store, err)
	}
	meta := &Metadata{Root: store.String(), Scheme: Tiled}
	for _, entry := range entries {
		if !entry.IsDir {
			continue
		}
		name := strings.TrimSuffix(entry.Key, "/")
		nameSize, isLevel := parseLevelName(name)
		if !isLevel {
			continue
		}
		level, err := openLevel(store, name, opts.decoder())
		if err != nil {
			return nil, err
		}
		if level.Size != nameSize {
			return nil, indexCorrupt(store, name, fmt.Sprintf("descriptor size %s does not match directory name", level.Size), nil)
		}
		meta.Levels = append(meta.Levels, level)
	}
	if len(meta.Levels) == 0 {
		exists, err := store.Exists(DescriptorFile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, indexCorrupt(store, "", "no RES(HxWxD) levels and no root "+DescriptorFile, nil)
		}
		level, err := openLevel(store, "", opts.decoder())
		if err != nil {
			return nil, err
		}
		meta.Levels = append(meta.Levels, level)
	}
	sort.SliceStable(meta.Levels, func(i, j int) bool {
		return meta.Levels[i].Size.Prod() > meta.Levels[j].Size.Prod()
	})
	for i := 1; i < len(meta.Levels); i++ {
		if meta.Levels[i].Size == meta.Levels[i-1].Size {
			return nil, indexCorrupt(store, meta.Levels[i].Name, fmt.Sprintf("two levels of size %s", meta.Levels[i].Size), nil)
		}
	}
	timedLog.Infof("Indexed %d level(s) of pyramid %q, native size %s (%s index)",
		len(meta.Levels), meta.Root, meta.Levels[0].Size, v3d.Bytes(int64(size.Of(meta))))
	return meta, nil
}

func openLevel(store *storage.Store, name string, decoder plane.Decoder) (*Level, error) {
	key := path.Join(name, DescriptorFile)
	data, err := store.ReadAll(key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, indexCorrupt(store, key, "missing level descriptor", err)
		}
		return nil, err
	}
	desc, err := ParseDescriptor(data)
	if err != nil {
		return nil, indexCorrupt(store, key, "bad level descriptor", err)
	}
	level, err := NewLevel(name, desc)
	if err != nil {
		return nil, indexCorrupt(store, key, "inconsistent tiling", err)
	}
	for _, tile := range level.Tiles {
		if err := tile.verify(store, decoder, level); err != nil {
			return nil, indexCorrupt(store, tile.Name(), "tile does not match descriptor", err)
		}
	}
	v3d.Debugf("Opened %s\n", level)
	return level, nil
}

// NewLevel builds a level from a descriptor, resolving overlaps into owned extents.
// Tile keys in the descriptor are relative to the level directory.
func NewLevel(name string, desc *Descriptor) (*Level, error) {
	level := &Level{
		Name:      name,
		Size:      desc.Size,
		Channels:  desc.Channels,
		Type:      desc.DataType,
		VoxelSize: desc.VoxelSize,
		Overlap:   desc.Overlap,
	}
	if !level.Type.Valid() {
		return nil, fmt.Errorf("unsupported data type %s", level.Type)
	}
	bounds := level.Bounds()
	extents := make([]v3d.Extents3d, len(desc.Tiles))
	for i, entry := range desc.Tiles {
		ext := v3d.NewExtents3d(entry.Origin, entry.Size)
		if ext.Empty() || !bounds.Contains(ext.MinPoint) || !bounds.Contains(ext.MaxPoint) {
			return nil, fmt.Errorf("tile %d extent %s is outside level %s", i, ext, level.Size)
		}
		extents[i] = ext
	}
	for axis := 0; axis < 3; axis++ {
		g, err := resolveAxis(axis, level.Size[axis], level.Overlap[axis], extents)
		if err != nil {
			return nil, err
		}
		level.axes[axis] = g
	}

	grid := level.GridSize()
	level.cells = make([]*Tile, grid[0]*grid[1]*grid[2])
	if len(desc.Tiles) != len(level.cells) {
		return nil, fmt.Errorf("%d tiles for a %d x %d x %d grid", len(desc.Tiles), grid[0], grid[1], grid[2])
	}
	for i, entry := range desc.Tiles {
		tile := &Tile{Physical: extents[i]}
		var owned v3d.Extents3d
		for axis := 0; axis < 3; axis++ {
			k, _ := level.axes[axis].position(entry.Origin[axis])
			tile.Position[axis] = k
			beg, end := level.axes[axis].ownedSpan(k)
			owned.MinPoint[axis] = beg
			owned.MaxPoint[axis] = end - 1
		}
		tile.Owned = owned
		if entry.Format != nil {
			tile.Format = *entry.Format
		}
		if len(entry.Planes) > 0 {
			if tile.Format != UnknownFormat && tile.Format != Planes {
				return nil, fmt.Errorf("tile %d lists planes but declares format %s", i, tile.Format)
			}
			tile.Format = Planes
			for _, p := range entry.Planes {
				tile.Planes = append(tile.Planes, path.Join(name, p))
			}
		} else {
			if tile.Format == Planes {
				return nil, fmt.Errorf("tile %d declares format planes without plane files", i)
			}
			tile.Path = path.Join(name, entry.Path)
		}
		c := level.cell(tile.Position)
		if prev := level.cells[c]; prev != nil {
			return nil, fmt.Errorf("tiles %q and %q both occupy grid position %v", prev.Name(), tile.Name(), tile.Position)
		}
		level.cells[c] = tile
		level.Tiles = append(level.Tiles, tile)
	}
	return level, nil
}
