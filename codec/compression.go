package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/janelia-flyem/v3d/v3d"
)

// Compression is the method used for payload chunks.
type Compression uint8

const (
	Uncompressed Compression = 0
	RLE          Compression = 1
	Snappy       Compression = 2
	LZ4          Compression = 3
	Zstd         Compression = 4
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "none"
	case RLE:
		return "rle"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown compression %d", uint8(compress))
	}
}

// Valid returns true for a known compression tag.
func (compress Compression) Valid() bool {
	return compress <= Zstd
}

// ParseCompression accepts the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return Uncompressed, nil
	case "rle":
		return RLE, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return Uncompressed, fmt.Errorf("unknown compression %q", s)
	}
}

// The zstd encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	if zstdEncoder, err = zstd.NewWriter(nil); err != nil {
		panic(fmt.Sprintf("can't create zstd encoder: %v", err))
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("can't create zstd decoder: %v", err))
	}
}

// compressChunk compresses the samples of one chunk; width is bytes per sample.
func compressChunk(compress Compression, data []byte, width int) ([]byte, error) {
	switch compress {
	case RLE:
		return EncodeRLE(data, width)
	case Snappy:
		return snappy.Encode(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return nil, fmt.Errorf("illegal compression (%s) for chunk", compress)
	}
}

// maxInflated bounds the bytes a chunk of the given compressed length can hold.
func maxInflated(compress Compression, length int64, width int) int64 {
	switch compress {
	case RLE:
		// One control byte and one sample for a run of maxRun samples.
		return length / int64(1+width) * maxRun * int64(width)
	case Snappy:
		// A 3-byte copy emits at most 64 bytes.
		return length * 22
	case LZ4:
		// Each extra match length byte adds at most 255 bytes.
		return length * 256
	case Zstd:
		// A 4-byte RLE block emits at most 128 KiB.
		return length * 32768
	default:
		return length
	}
}

// decompressChunk inflates a chunk that must hold exactly expected bytes.
func decompressChunk(compress Compression, data []byte, width int, expected int64) ([]byte, error) {
	var out []byte
	var err error
	switch compress {
	case RLE:
		return DecodeRLE(data, width, expected/int64(width))
	case Snappy:
		var n int
		if n, err = snappy.DecodedLen(data); err != nil {
			return nil, &v3d.CorruptDataError{Reason: "bad snappy chunk", Err: err}
		}
		if int64(n) != expected {
			return nil, v3d.CorruptDataf("snappy chunk holds %d bytes, expected %d", n, expected)
		}
		out, err = snappy.Decode(nil, data)
	case LZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		out = make([]byte, expected)
		if _, err = io.ReadFull(zr, out); err == nil {
			var extra [1]byte
			if n, _ := zr.Read(extra[:]); n != 0 {
				return nil, v3d.CorruptDataf("lz4 chunk holds more than %d bytes", expected)
			}
		}
	case Zstd:
		out, err = zstdDecoder.DecodeAll(data, make([]byte, 0, expected))
	default:
		return nil, &v3d.UnsupportedFormatError{Reason: fmt.Sprintf("compression %s", compress)}
	}
	if err != nil {
		return nil, &v3d.CorruptDataError{Reason: fmt.Sprintf("can't inflate %s chunk", compress), Err: err}
	}
	if int64(len(out)) != expected {
		return nil, v3d.CorruptDataf("%s chunk holds %d bytes, expected %d", compress, len(out), expected)
	}
	return out, nil
}
