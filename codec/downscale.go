package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Downscale selects how 16-bit samples are reduced to 8 bits for storage.
type Downscale uint8

const (
	// NoDownscale stores samples losslessly.
	NoDownscale Downscale = 0

	// PrecisionPreserving scales by max/255 so the full 8-bit range is used.  The scale
	// factor is stored in the header.
	PrecisionPreserving Downscale = 1

	// FastHalving keeps only the high byte of every sample.
	FastHalving Downscale = 2
)

func (d Downscale) String() string {
	switch d {
	case NoDownscale:
		return "none"
	case PrecisionPreserving:
		return "precision"
	case FastHalving:
		return "fast"
	default:
		return fmt.Sprintf("unknown downscale %d", uint8(d))
	}
}

// ParseDownscale accepts the names returned by Downscale.String.
func ParseDownscale(s string) (Downscale, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return NoDownscale, nil
	case "precision", "precision-preserving":
		return PrecisionPreserving, nil
	case "fast", "halving":
		return FastHalving, nil
	default:
		return NoDownscale, fmt.Errorf("unknown downscale method %q", s)
	}
}

// PrecisionScale returns the factor used to map little-endian uint16 samples onto 8 bits.
func PrecisionScale(data []byte) float64 {
	var maxVal uint16
	for i := 0; i+1 < len(data); i += 2 {
		if v := binary.LittleEndian.Uint16(data[i:]); v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 255 {
		return 1
	}
	return float64(maxVal) / 255
}

// downscale16 reduces little-endian uint16 samples to one byte each.
func downscale16(method Downscale, data []byte, scale float64) []byte {
	out := make([]byte, len(data)/2)
	for i := range out {
		v := binary.LittleEndian.Uint16(data[2*i:])
		switch method {
		case FastHalving:
			out[i] = uint8(v >> 8)
		default:
			q := math.Round(float64(v) / scale)
			if q > 255 {
				q = 255
			}
			out[i] = uint8(q)
		}
	}
	return out
}

// upscale8 restores little-endian uint16 samples from stored bytes.
func upscale8(method Downscale, data []byte, scale float64) []byte {
	out := make([]byte, 2*len(data))
	for i, q := range data {
		var v uint16
		switch method {
		case FastHalving:
			v = uint16(q) << 8
		default:
			r := math.Round(float64(q) * scale)
			if r > math.MaxUint16 {
				r = math.MaxUint16
			}
			v = uint16(r)
		}
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}
