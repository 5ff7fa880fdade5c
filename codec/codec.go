package codec

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/janelia-flyem/v3d/v3d"
)

// Options control how Encode stores a volume.
type Options struct {
	// SampleType is the stored sample type.  The zero value keeps the volume's type, or
	// uint8 when a downscale method is given.
	SampleType v3d.DataType

	Compression Compression
	Downscale   Downscale
}

func (opts Options) String() string {
	return fmt.Sprintf("stored %s, %s compression, %s downscale", opts.SampleType, opts.Compression, opts.Downscale)
}

// header returns the header that would describe vol encoded with these options.
func (opts Options) header(vol *v3d.Volume) (*Header, error) {
	stored := opts.SampleType
	if stored == v3d.T_unknown {
		stored = vol.Type
		if opts.Downscale != NoDownscale {
			stored = v3d.T_uint8
		}
	}
	switch {
	case !stored.Valid():
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("stored sample type %s", stored)}
	case opts.Downscale == NoDownscale && stored != vol.Type:
		return nil, &v3d.UnsupportedFormatError{
			Reason: fmt.Sprintf("can't store %s samples as %s without a downscale method", vol.Type, stored),
		}
	case opts.Downscale != NoDownscale && vol.Type != v3d.T_uint16:
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("%s downscale requires uint16 samples, not %s", opts.Downscale, vol.Type)}
	}
	return &Header{
		Version:     FormatVersion,
		SampleType:  vol.Type,
		StoredType:  stored,
		Compression: opts.Compression,
		Downscale:   opts.Downscale,
		Size:        vol.Size,
		Channels:    vol.Channels,
	}, nil
}

// Encode serializes a volume into a container.  The input is not modified.
func Encode(vol *v3d.Volume, opts Options) ([]byte, error) {
	if vol == nil {
		return nil, fmt.Errorf("can't encode nil volume")
	}
	if vol.Channels < 1 || vol.Channels > v3d.MaxChannels || !vol.Type.Valid() {
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("volume with %d channel(s) of %s", vol.Channels, vol.Type)}
	}
	if err := vol.Validate(); err != nil {
		return nil, &v3d.CorruptDataError{Reason: "bad volume", Err: err}
	}
	hdr, err := opts.header(vol)
	if err != nil {
		return nil, err
	}

	stored := vol.Data
	switch hdr.Downscale {
	case PrecisionPreserving:
		hdr.Scale = PrecisionScale(vol.Data)
		stored = downscale16(PrecisionPreserving, vol.Data, hdr.Scale)
	case FastHalving:
		stored = downscale16(FastHalving, vol.Data, 0)
	}

	buf, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if hdr.Compression == Uncompressed {
		return append(buf, stored...), nil
	}

	numChunks := hdr.NumChunks()
	chunkBytes := hdr.ChunkBytes()
	width := int(hdr.StoredType.Bytes())
	chunks := make([][]byte, numChunks)
	table := make([]byte, 8*numChunks)
	var total int
	for i := int64(0); i < numChunks; i++ {
		chunk, err := compressChunk(hdr.Compression, stored[i*chunkBytes:(i+1)*chunkBytes], width)
		if err != nil {
			return nil, fmt.Errorf("compressing chunk %d with %s: %w", i, hdr.Compression, err)
		}
		chunks[i] = chunk
		binary.LittleEndian.PutUint64(table[8*i:], uint64(len(chunk)))
		total += len(chunk)
	}
	out := make([]byte, 0, len(buf)+len(table)+total)
	out = append(out, buf...)
	out = append(out, table...)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	v3d.Debugf("Encoded %s into %s (%s)\n", vol, v3d.Bytes(int64(len(out))), opts)
	return out, nil
}

// Decode reconstructs a volume and its header from a complete container.
func Decode(data []byte) (*v3d.Volume, *Header, error) {
	r, err := NewReader(v3d.BytesReader(data))
	if err != nil {
		return nil, nil, err
	}
	vol, err := r.ReadRegion(r.Bounds())
	if err != nil {
		return nil, nil, err
	}
	return vol, r.Header(), nil
}

// ReadHeader reads and validates only the header of a container.
func ReadHeader(src v3d.RangeReader) (*Header, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	n := int64(HeaderSize)
	if size < n {
		n = size
	}
	b, err := src.ReadRange(0, n)
	if err != nil {
		return nil, err
	}
	return DecodeHeader(b)
}

// Reader gives cropped access to a container through bounded range reads.
type Reader struct {
	src    v3d.RangeReader
	hdr    *Header
	chunks []chunkSpan // empty for uncompressed payloads
}

type chunkSpan struct {
	offset, length int64
}

// NewReader reads the header and chunk table of a container and verifies that the
// object size agrees with them.
func NewReader(src v3d.RangeReader) (*Reader, error) {
	hdr, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	r := &Reader{src: src, hdr: hdr}
	if hdr.Compression == Uncompressed {
		if expected := hdr.PayloadOffset() + hdr.StoredBytes(); size != expected {
			return nil, v3d.CorruptDataf("container of %s needs %d bytes, has %d", hdr.Size, expected, size)
		}
		return r, nil
	}

	numChunks := hdr.NumChunks()
	if size < hdr.PayloadOffset() {
		return nil, v3d.CorruptDataf("container truncated within chunk table (%d bytes, table ends at %d)", size, hdr.PayloadOffset())
	}
	table, err := src.ReadRange(HeaderSize, 8*numChunks)
	if err != nil {
		return nil, err
	}
	r.chunks = make([]chunkSpan, numChunks)
	offset := hdr.PayloadOffset()
	chunkBytes := hdr.ChunkBytes()
	width := int(hdr.StoredType.Bytes())
	for i := range r.chunks {
		length := binary.LittleEndian.Uint64(table[8*i:])
		if length > uint64(size) {
			return nil, v3d.CorruptDataf("chunk %d claims %d bytes in a %d byte container", i, length, size)
		}
		if maxInflated(hdr.Compression, int64(length), width) < chunkBytes {
			return nil, v3d.CorruptDataf("%s chunk %d of %d bytes can't hold %d bytes", hdr.Compression, i, length, chunkBytes)
		}
		r.chunks[i] = chunkSpan{offset: offset, length: int64(length)}
		offset += int64(length)
	}
	if offset != size {
		return nil, v3d.CorruptDataf("chunk table accounts for %d bytes, container has %d", offset, size)
	}
	return r, nil
}

// Header returns a copy of the container header.
func (r *Reader) Header() *Header {
	hdr := *r.hdr
	return &hdr
}

// Bounds returns the inclusive box covering the whole volume.
func (r *Reader) Bounds() v3d.Extents3d {
	return v3d.NewExtents3d(v3d.Point3d{}, r.hdr.Size)
}

// ReadRegion decodes the inclusive box.  Only chunks for planes within the box are read.
func (r *Reader) ReadRegion(box v3d.Extents3d) (*v3d.Volume, error) {
	full := r.Bounds()
	if box.Empty() || !full.Contains(box.MinPoint) || !full.Contains(box.MaxPoint) {
		return nil, &v3d.RangeError{Box: box, Dims: r.hdr.Size}
	}

	var stored *v3d.Volume
	var err error
	if r.hdr.Compression == Uncompressed {
		layout := v3d.RawLayout{
			Offset:   HeaderSize,
			Size:     r.hdr.Size,
			Channels: r.hdr.Channels,
			Type:     r.hdr.StoredType,
			Order:    binary.LittleEndian,
		}
		if stored, err = v3d.ReadRawRegion(r.src, layout, box); err != nil {
			return nil, err
		}
	} else if stored, err = r.readChunks(box); err != nil {
		return nil, err
	}

	if r.hdr.Downscale == NoDownscale {
		return stored, nil
	}
	stored.Data = upscale8(r.hdr.Downscale, stored.Data, r.hdr.Scale)
	stored.Type = r.hdr.SampleType
	return stored, nil
}

func (r *Reader) readChunks(box v3d.Extents3d) (*v3d.Volume, error) {
	out, err := v3d.NewVolume(box.Size(), r.hdr.Channels, r.hdr.StoredType)
	if err != nil {
		return nil, err
	}
	bps := int64(r.hdr.StoredType.Bytes())
	nx := int64(r.hdr.Size[0])
	rowBytes := out.RowBytes()
	width := int(bps)
	for c := int32(0); c < r.hdr.Channels; c++ {
		for z := box.MinPoint[2]; z <= box.MaxPoint[2]; z++ {
			i := int64(c)*int64(r.hdr.Size[2]) + int64(z)
			span := r.chunks[i]
			compressed, err := r.src.ReadRange(span.offset, span.length)
			if err != nil {
				return nil, fmt.Errorf("reading channel %d plane %d: %w", c, z, err)
			}
			plane, err := decompressChunk(r.hdr.Compression, compressed, width, r.hdr.ChunkBytes())
			if err != nil {
				return nil, fmt.Errorf("channel %d plane %d: %w", c, z, err)
			}
			for y := box.MinPoint[1]; y <= box.MaxPoint[1]; y++ {
				srcI := (int64(y)*nx + int64(box.MinPoint[0])) * bps
				dstI := out.Offset(0, y-box.MinPoint[1], z-box.MinPoint[2], c)
				copy(out.Data[dstI:dstI+rowBytes], plane[srcI:srcI+rowBytes])
			}
		}
	}
	return out, nil
}

// ReadRegion decodes a box from a container without reading the whole object.
func ReadRegion(src v3d.RangeReader, box v3d.Extents3d) (*v3d.Volume, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	return r.ReadRegion(box)
}

// EncodeFile encodes a volume and writes it to the given path.
func EncodeFile(path string, vol *v3d.Volume, opts Options) (err error) {
	data, err := Encode(vol, opts)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("writing container %q: %w", path, err)
	}
	return nil
}

// DecodeFile reads and decodes a container file.
func DecodeFile(path string) (*v3d.Volume, *Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	vol, hdr, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	return vol, hdr, nil
}
