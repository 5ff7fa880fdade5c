package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/blang/semver"

	"github.com/janelia-flyem/v3d/v3d"
)

const (
	// Magic starts every container file.
	Magic = "v3d_volume_stack"

	// HeaderSize is the fixed number of header bytes preceding any chunk table.
	HeaderSize = 48
)

// FormatVersion is the container version written by Encode.  Readers accept any file
// with the same major version.
var FormatVersion = semver.MustParse("1.0.0")

// Header is the self-describing prefix of a container file.  All fields are little-endian:
//
//	 0  magic        [16]byte
//	16  major, minor  uint8, uint8
//	18  sample type   uint8  (type of decoded samples)
//	19  stored type   uint8  (type of samples in the payload)
//	20  compression   uint8
//	21  downscale     uint8
//	22  reserved      uint16
//	24  X, Y, Z, C    uint32 each
//	40  scale         float64
//
// When Compression is not Uncompressed, a table of Z*C uint64 chunk lengths follows and
// each (channel, plane) is stored as a separately compressed chunk.
type Header struct {
	Version     semver.Version
	SampleType  v3d.DataType
	StoredType  v3d.DataType
	Compression Compression
	Downscale   Downscale
	Size        v3d.Point3d
	Channels    int32
	Scale       float64
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Header) MarshalBinary() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	b := make([]byte, HeaderSize)
	copy(b[0:16], Magic)
	b[16] = uint8(h.Version.Major)
	b[17] = uint8(h.Version.Minor)
	b[18] = uint8(h.SampleType)
	b[19] = uint8(h.StoredType)
	b[20] = uint8(h.Compression)
	b[21] = uint8(h.Downscale)
	binary.LittleEndian.PutUint32(b[24:28], uint32(h.Size[0]))
	binary.LittleEndian.PutUint32(b[28:32], uint32(h.Size[1]))
	binary.LittleEndian.PutUint32(b[32:36], uint32(h.Size[2]))
	binary.LittleEndian.PutUint32(b[36:40], uint32(h.Channels))
	binary.LittleEndian.PutUint64(b[40:48], math.Float64bits(h.Scale))
	return b, nil
}

// HasMagic returns true if the bytes begin with the container magic.
func HasMagic(b []byte) bool {
	return len(b) >= len(Magic) && string(b[:len(Magic)]) == Magic
}

// DecodeHeader parses and validates a container header from the first HeaderSize bytes.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < len(Magic) {
		return nil, v3d.CorruptDataf("container header needs %d bytes, got %d", HeaderSize, len(b))
	}
	if !HasMagic(b) {
		return nil, &v3d.FormatError{Reason: fmt.Sprintf("bad magic string %q", b[:len(Magic)])}
	}
	if len(b) < HeaderSize {
		return nil, v3d.CorruptDataf("container header needs %d bytes, got %d", HeaderSize, len(b))
	}
	h := &Header{
		Version:     semver.Version{Major: uint64(b[16]), Minor: uint64(b[17])},
		SampleType:  v3d.DataType(b[18]),
		StoredType:  v3d.DataType(b[19]),
		Compression: Compression(b[20]),
		Downscale:   Downscale(b[21]),
		Channels:    int32(binary.LittleEndian.Uint32(b[36:40])),
		Scale:       math.Float64frombits(binary.LittleEndian.Uint64(b[40:48])),
	}
	for dim := 0; dim < 3; dim++ {
		n := binary.LittleEndian.Uint32(b[24+4*dim : 28+4*dim])
		if n > math.MaxInt32 {
			return nil, v3d.CorruptDataf("dimension %d has impossible size %d", dim, n)
		}
		h.Size[dim] = int32(n)
	}
	if h.Version.Major != FormatVersion.Major {
		return nil, &v3d.FormatError{
			Reason: fmt.Sprintf("container version %d.%d is not compatible with %s", h.Version.Major, h.Version.Minor, FormatVersion),
		}
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validate() error {
	if !h.SampleType.Valid() {
		return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("sample type code %d", uint8(h.SampleType))}
	}
	if !h.StoredType.Valid() {
		return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("stored sample type code %d", uint8(h.StoredType))}
	}
	if h.Channels < 1 || h.Channels > v3d.MaxChannels {
		return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("channel count %d", h.Channels)}
	}
	if !h.Compression.Valid() {
		return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("compression tag %d", uint8(h.Compression))}
	}
	switch h.Downscale {
	case NoDownscale:
		if h.SampleType != h.StoredType {
			return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("stored %s for %s samples without downscale", h.StoredType, h.SampleType)}
		}
	case PrecisionPreserving, FastHalving:
		if h.SampleType != v3d.T_uint16 || h.StoredType != v3d.T_uint8 {
			return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("%s requires uint16 samples stored as uint8", h.Downscale)}
		}
		if h.Downscale == PrecisionPreserving && !(h.Scale >= 1) {
			return v3d.CorruptDataf("precision-preserving scale factor %g must be >= 1", h.Scale)
		}
	default:
		return &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("downscale tag %d", uint8(h.Downscale))}
	}
	for dim := 0; dim < 3; dim++ {
		if h.Size[dim] < 1 {
			return v3d.CorruptDataf("header size %s must be positive along every axis", h.Size)
		}
	}
	if _, ok := v3d.VolumeBytes(h.Size, h.Channels, h.SampleType); !ok {
		return v3d.CorruptDataf("header size %s x %d channel(s) of %s exceeds %d bytes", h.Size, h.Channels, h.SampleType, int64(v3d.MaxVolumeBytes))
	}
	return nil
}

// NumChunks returns the number of independently compressed (channel, plane) chunks.
func (h *Header) NumChunks() int64 {
	return int64(h.Size[2]) * int64(h.Channels)
}

// ChunkBytes returns the uncompressed size of one (channel, plane) chunk.
func (h *Header) ChunkBytes() int64 {
	return int64(h.Size[0]) * int64(h.Size[1]) * int64(h.StoredType.Bytes())
}

// StoredBytes returns the uncompressed size of the payload.
func (h *Header) StoredBytes() int64 {
	return h.NumChunks() * h.ChunkBytes()
}

// PayloadOffset returns where the payload (raw samples or first chunk) begins.
func (h *Header) PayloadOffset() int64 {
	if h.Compression == Uncompressed {
		return HeaderSize
	}
	return HeaderSize + 8*h.NumChunks()
}

func (h *Header) String() string {
	return fmt.Sprintf("container v%d.%d %s x %d channel(s) of %s stored as %s, %s, %s",
		h.Version.Major, h.Version.Minor, h.Size, h.Channels, h.SampleType, h.StoredType, h.Compression, h.Downscale)
}
