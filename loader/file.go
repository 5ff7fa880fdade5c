package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/codec/v3draw"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/v3d"
)

// FileKind is the format of a single volume file.
type FileKind uint8

const (
	ContainerFile FileKind = iota + 1
	RawFile
)

func (k FileKind) String() string {
	switch k {
	case ContainerFile:
		return "v3d container"
	case RawFile:
		return "V3D Raw"
	default:
		return fmt.Sprintf("unknown file kind %d", uint8(k))
	}
}

// File is an opened single-file volume.  Extractions read only the needed byte ranges.
type File struct {
	Kind FileKind

	store *storage.Store
	obj   *storage.Object

	size     v3d.Point3d
	channels int32
	typ      v3d.DataType

	container *codec.Reader
	raw       v3d.RawLayout
}

func openFile(store *storage.Store, key string) (*File, error) {
	obj, err := store.Object(key)
	if err != nil {
		return nil, err
	}
	f := &File{store: store, obj: obj}
	size, _ := obj.Size()
	n := int64(len(v3draw.Magic))
	if size < n {
		n = size
	}
	prefix, err := obj.ReadRange(0, n)
	if err != nil {
		return nil, err
	}
	switch {
	case codec.HasMagic(prefix):
		if f.container, err = codec.NewReader(obj); err != nil {
			return nil, fmt.Errorf("opening %q: %w", obj, err)
		}
		hdr := f.container.Header()
		f.Kind = ContainerFile
		f.size, f.channels, f.typ = hdr.Size, hdr.Channels, hdr.SampleType
	case v3draw.HasMagic(prefix):
		hdr, err := v3draw.ReadHeader(obj)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", obj, err)
		}
		f.Kind = RawFile
		f.raw = hdr.Layout()
		f.size, f.channels, f.typ = hdr.Size, hdr.Channels, hdr.Type
	default:
		return nil, &v3d.FormatError{Path: obj.String(), Reason: "not a v3d container or V3D Raw file"}
	}
	v3d.Debugf("Opened %s file %q: %s x %d channel(s) of %s\n", f.Kind, obj, f.size, f.channels, f.typ)
	return f, nil
}

func (f *File) Dims() (x, y, z, c int32) {
	return f.size[0], f.size[1], f.size[2], f.channels
}

func (f *File) DataType() v3d.DataType {
	return f.typ
}

// Header returns the container header, or nil for V3D Raw files.
func (f *File) Header() *codec.Header {
	if f.container == nil {
		return nil
	}
	return f.container.Header()
}

func (f *File) Extract(x0, x1, y0, y1, z0, z1 int32) (*v3d.Volume, error) {
	return f.ExtractBox(v3d.Extents3d{
		MinPoint: v3d.Point3d{x0, y0, z0},
		MaxPoint: v3d.Point3d{x1, y1, z1},
	})
}

func (f *File) ExtractBox(box v3d.Extents3d) (*v3d.Volume, error) {
	if f.Kind == ContainerFile {
		return f.container.ReadRegion(box)
	}
	return v3d.ReadRawRegion(f.obj, f.raw, box)
}

func (f *File) Close() error {
	return f.store.Close()
}

func (f *File) String() string {
	order := ""
	if f.Kind == RawFile && f.raw.Order == binary.BigEndian {
		order = ", big-endian"
	}
	return fmt.Sprintf("%s %q%s", f.Kind, f.obj, order)
}
