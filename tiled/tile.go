package tiled

import (
	"fmt"
	"path"
	"strings"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/codec/v3draw"
	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/v3d"
)

// Format is the encoding of a tile's backing file(s).
type Format uint8

const (
	UnknownFormat Format = iota

	// Container tiles are single v3d container files.
	Container

	// Raw tiles are single V3D Raw files.
	Raw

	// Planes tiles are one 2D image file per z plane.
	Planes
)

func (f Format) String() string {
	switch f {
	case Container:
		return "v3dvol"
	case Raw:
		return "v3draw"
	case Planes:
		return "planes"
	default:
		return fmt.Sprintf("unknown tile format %d", uint8(f))
	}
}

// ParseFormat returns the Format for a descriptor format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "v3dvol":
		return Container, nil
	case "v3draw":
		return Raw, nil
	case "planes":
		return Planes, nil
	default:
		return UnknownFormat, fmt.Errorf("unknown tile format %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if f == UnknownFormat || f > Planes {
		return nil, fmt.Errorf("can't marshal %s", f)
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	format, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// Tile is one stored block of a resolution level.  Tiles never change after Open.
type Tile struct {
	// Position is the tile's index along x, y and z of the level grid.
	Position [3]int

	// Physical is the global inclusive extent of the stored data, overlap included.
	Physical v3d.Extents3d

	// Owned is the global inclusive extent of voxels this tile alone supplies.
	Owned v3d.Extents3d

	Format Format

	// Path is the key of a Container or Raw tile file.
	Path string

	// Planes are the keys of a Planes tile, one per z.
	Planes []string
}

// Name returns a key identifying the tile in messages.
func (t *Tile) Name() string {
	if t.Format == Planes && len(t.Planes) > 0 {
		return path.Dir(t.Planes[0])
	}
	return t.Path
}

func (t *Tile) String() string {
	return fmt.Sprintf("%s tile %v %q: physical %s, owned %s", t.Format, t.Position, t.Name(), t.Physical, t.Owned)
}

// sniffFormat identifies a 3D tile file by its magic string.
func sniffFormat(obj *storage.Object) (Format, error) {
	size, _ := obj.Size()
	n := int64(len(v3draw.Magic))
	if size < n {
		n = size
	}
	b, err := obj.ReadRange(0, n)
	if err != nil {
		return UnknownFormat, err
	}
	switch {
	case codec.HasMagic(b):
		return Container, nil
	case v3draw.HasMagic(b):
		return Raw, nil
	default:
		return UnknownFormat, fmt.Errorf("tile file is neither a v3d container nor V3D Raw")
	}
}

// verify checks that a tile's files exist and agree with its declared extent and the
// level's channel count and sample type.
func (t *Tile) verify(store *storage.Store, decoder plane.Decoder, level *Level) error {
	size := t.Physical.Size()
	switch t.Format {
	case Container, Raw, UnknownFormat:
		obj, err := store.Object(t.Path)
		if err != nil {
			return err
		}
		if t.Format == UnknownFormat {
			if t.Format, err = sniffFormat(obj); err != nil {
				return err
			}
		}
		var hdrSize v3d.Point3d
		var channels int32
		var typ v3d.DataType
		if t.Format == Container {
			r, err := codec.NewReader(obj)
			if err != nil {
				return err
			}
			hdr := r.Header()
			hdrSize, channels, typ = hdr.Size, hdr.Channels, hdr.SampleType
		} else {
			hdr, err := v3draw.ReadHeader(obj)
			if err != nil {
				return err
			}
			hdrSize, channels, typ = hdr.Size, hdr.Channels, hdr.Type
		}
		if hdrSize != size {
			return fmt.Errorf("file holds %s voxels, declared %s", hdrSize, size)
		}
		if channels != level.Channels || typ != level.Type {
			return fmt.Errorf("file has %d channel(s) of %s, level has %d of %s", channels, typ, level.Channels, level.Type)
		}

	case Planes:
		if level.Channels != 1 {
			return fmt.Errorf("plane tiles need a single channel level, not %d channels", level.Channels)
		}
		if int32(len(t.Planes)) != size[2] {
			return fmt.Errorf("%d plane files for a tile %d planes deep", len(t.Planes), size[2])
		}
		for _, key := range t.Planes {
			obj, err := store.Object(key)
			if err != nil {
				return err
			}
			cfg, err := decoder.DecodeConfig(key, obj)
			if err != nil {
				return err
			}
			if cfg.Width != size[0] || cfg.Height != size[1] {
				return fmt.Errorf("plane %q is %d x %d, declared %d x %d", key, cfg.Width, cfg.Height, size[0], size[1])
			}
			if cfg.Type != level.Type {
				return fmt.Errorf("plane %q has %s samples, level has %s", key, cfg.Type, level.Type)
			}
		}

	default:
		return fmt.Errorf("unknown tile format %d", uint8(t.Format))
	}
	return nil
}
