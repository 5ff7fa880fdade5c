package codec

import (
	"bytes"
	"fmt"

	"github.com/janelia-flyem/v3d/v3d"
)

// Run-length control bytes.  A control n < 128 is followed by n+1 literal samples.  A
// control n >= 128 is followed by a single sample repeated n-126 times.
const (
	maxLiteral = 128
	minRun     = 2
	maxRun     = 129
	runBase    = 126
)

// EncodeRLE compresses samples of the given byte width (1 or 2) with the escape code
// described above.  Output never exceeds the input by more than one control byte per
// maxLiteral samples plus one.
func EncodeRLE(data []byte, width int) ([]byte, error) {
	if width != 1 && width != 2 {
		return nil, fmt.Errorf("run-length sample width must be 1 or 2 bytes, not %d", width)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("run-length input of %d bytes is not a multiple of %d", len(data), width)
	}
	n := len(data) / width
	sample := func(i int) []byte { return data[i*width : (i+1)*width] }
	runLength := func(i int) int {
		r := 1
		for i+r < n && r < maxRun && bytes.Equal(sample(i), sample(i+r)) {
			r++
		}
		return r
	}

	out := make([]byte, 0, len(data)+len(data)/(maxLiteral*width)+1)
	for i := 0; i < n; {
		if r := runLength(i); r >= minRun {
			out = append(out, byte(r+runBase))
			out = append(out, sample(i)...)
			i += r
			continue
		}
		// Gather literals until a run of 3 or more begins.
		j := i + 1
		for j < n && j-i < maxLiteral {
			if runLength(j) >= 3 {
				break
			}
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, data[i*width:j*width]...)
		i = j
	}
	return out, nil
}

// DecodeRLE expands a run-length stream that must hold exactly numSamples samples.
func DecodeRLE(data []byte, width int, numSamples int64) ([]byte, error) {
	if width != 1 && width != 2 {
		return nil, fmt.Errorf("run-length sample width must be 1 or 2 bytes, not %d", width)
	}
	expected := numSamples * int64(width)
	out := make([]byte, 0, expected)
	pos := 0
	for pos < len(data) {
		control := int(data[pos])
		pos++
		if control < maxLiteral {
			nbytes := (control + 1) * width
			if pos+nbytes > len(data) {
				return nil, v3d.CorruptDataf("run-length literal of %d bytes truncated at byte %d", nbytes, pos)
			}
			if int64(len(out)+nbytes) > expected {
				return nil, v3d.CorruptDataf("run-length stream expands beyond %d bytes", expected)
			}
			out = append(out, data[pos:pos+nbytes]...)
			pos += nbytes
			continue
		}
		if pos+width > len(data) {
			return nil, v3d.CorruptDataf("run-length repeat truncated at byte %d", pos)
		}
		count := control - runBase
		if int64(len(out)+count*width) > expected {
			return nil, v3d.CorruptDataf("run-length stream expands beyond %d bytes", expected)
		}
		value := data[pos : pos+width]
		for k := 0; k < count; k++ {
			out = append(out, value...)
		}
		pos += width
	}
	if int64(len(out)) != expected {
		return nil, v3d.CorruptDataf("run-length stream holds %d bytes, expected %d", len(out), expected)
	}
	return out, nil
}
