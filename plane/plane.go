// Package plane decodes rectangular regions of single 2D image files, one per z plane
// of a plane-series tile.
package plane

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/janelia-flyem/v3d/v3d"
)

// Config is the intrinsic shape of a plane file.
type Config struct {
	Width, Height int32
	Type          v3d.DataType
	Format        string
}

// Decoder decodes a named rectangular region of a 2D plane file.
type Decoder interface {
	// DecodeConfig returns the plane's dimensions and sample type without decoding pixels.
	DecodeConfig(name string, src v3d.RangeReader) (Config, error)

	// DecodeRegion returns the inclusive rectangle [x0,x1] x [y0,y1] of the plane as a
	// single-channel volume with one z plane.
	DecodeRegion(name string, src v3d.RangeReader, x0, x1, y0, y1 int32) (*v3d.Volume, error)
}

// ImageDecoder is a Decoder for the image formats registered with the image package:
// PNG, JPEG, GIF, TIFF and BMP.  Color images are converted to gray.
type ImageDecoder struct{}

// streamReader presents a RangeReader as an io.Reader, fetching blockSize bytes at a time.
type streamReader struct {
	src    v3d.RangeReader
	size   int64
	offset int64
}

const blockSize = 16 * 1024

func newStreamReader(src v3d.RangeReader) (*streamReader, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	return &streamReader{src: src, size: size}, nil
}

func (r *streamReader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	n := int64(len(p))
	if n > blockSize {
		n = blockSize
	}
	if r.offset+n > r.size {
		n = r.size - r.offset
	}
	data, err := r.src.ReadRange(r.offset, n)
	if err != nil {
		return 0, err
	}
	copy(p, data)
	r.offset += int64(len(data))
	return len(data), nil
}

func sampleType(model color.Model) v3d.DataType {
	switch model {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model, color.Alpha16Model:
		return v3d.T_uint16
	default:
		return v3d.T_uint8
	}
}

func (ImageDecoder) DecodeConfig(name string, src v3d.RangeReader) (Config, error) {
	r, err := newStreamReader(src)
	if err != nil {
		return Config{}, err
	}
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Config{}, &v3d.FormatError{Path: name, Reason: "can't read image header", Err: err}
	}
	return Config{
		Width:  int32(cfg.Width),
		Height: int32(cfg.Height),
		Type:   sampleType(cfg.ColorModel),
		Format: format,
	}, nil
}

func (ImageDecoder) DecodeRegion(name string, src v3d.RangeReader, x0, x1, y0, y1 int32) (*v3d.Volume, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	data, err := src.ReadRange(0, size)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &v3d.CorruptDataError{Reason: fmt.Sprintf("can't decode plane %q", name), Err: err}
	}
	bounds := img.Bounds()
	dims := v3d.Point3d{int32(bounds.Dx()), int32(bounds.Dy()), 1}
	box := v3d.Extents3d{MinPoint: v3d.Point3d{x0, y0, 0}, MaxPoint: v3d.Point3d{x1, y1, 0}}
	full := v3d.NewExtents3d(v3d.Point3d{}, dims)
	if box.Empty() || !full.Contains(box.MinPoint) || !full.Contains(box.MaxPoint) {
		return nil, &v3d.RangeError{Box: box, Dims: dims}
	}

	typ := sampleType(img.ColorModel())
	out, err := v3d.NewVolume(box.Size(), 1, typ)
	if err != nil {
		return nil, err
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			c := img.At(bounds.Min.X+int(x), bounds.Min.Y+int(y))
			var v uint16
			if typ == v3d.T_uint16 {
				v = color.Gray16Model.Convert(c).(color.Gray16).Y
			} else {
				v = uint16(color.GrayModel.Convert(c).(color.Gray).Y)
			}
			out.SetValue(x-x0, y-y0, 0, 0, v)
		}
	}
	v3d.Debugf("Decoded %s region %s of plane %q\n", format, box, name)
	return out, nil
}

// EncodePNG writes z plane and channel c of a volume as a gray PNG.  It is used to
// produce plane-series tiles.
func EncodePNG(w io.Writer, vol *v3d.Volume, z, c int32) error {
	x, y, _, _ := vol.Dims()
	rect := image.Rect(0, 0, int(x), int(y))
	var img image.Image
	switch vol.Type {
	case v3d.T_uint8:
		gray := image.NewGray(rect)
		for j := int32(0); j < y; j++ {
			for i := int32(0); i < x; i++ {
				gray.SetGray(int(i), int(j), color.Gray{Y: uint8(vol.Value(i, j, z, c))})
			}
		}
		img = gray
	case v3d.T_uint16:
		gray := image.NewGray16(rect)
		for j := int32(0); j < y; j++ {
			for i := int32(0); i < x; i++ {
				gray.SetGray16(int(i), int(j), color.Gray16{Y: vol.Value(i, j, z, c)})
			}
		}
		img = gray
	default:
		return fmt.Errorf("can't write %s plane as PNG", vol.Type)
	}
	return png.Encode(w, img)
}
