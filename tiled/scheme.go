package tiled

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/v3d/v3d"
)

// FormatFile is the marker file naming the scheme of a pyramid directory.
const FormatFile = ".iim.format"

// Scheme is the closed set of directory layouts that can appear in a FormatFile.
type Scheme uint8

const (
	UnknownScheme Scheme = iota

	// Stacked is a grid of stacks, each a series of 2D files.
	Stacked

	// Tiled is a grid of 3D tile files.  It is the only scheme that can be opened.
	Tiled

	// TiledMultiChannel is a grid of 3D tiles with one file per channel.
	TiledMultiChannel

	// Simple is a single stack of 2D files.
	Simple

	// SimpleRaw is a single stack of 2D raw files.
	SimpleRaw

	// TimeSeries is a sequence of volumes.
	TimeSeries
)

var schemeMarkers = map[Scheme]string{
	Stacked:           "TiledXY|2Dseries",
	Tiled:             "TiledXY|3Dseries",
	TiledMultiChannel: "TiledCH|3Dseries",
	Simple:            "Simple|2Dseries",
	SimpleRaw:         "SimpleRaw|2Dseries",
	TimeSeries:        "TimeSeries",
}

// FallbackOrder is the priority in which schemes are attempted for a directory
// without a marker when fallback is explicitly requested.
var FallbackOrder = []Scheme{Tiled, TiledMultiChannel, Stacked, Simple, SimpleRaw, TimeSeries}

// String returns the marker text for the scheme.
func (s Scheme) String() string {
	if marker, found := schemeMarkers[s]; found {
		return marker
	}
	return fmt.Sprintf("unknown scheme %d", uint8(s))
}

// Supported returns true if pyramids of this scheme can be opened.
func (s Scheme) Supported() bool {
	return s == Tiled
}

// ParseScheme maps the first line of a marker file to a Scheme.  Unknown text is a
// FormatError.
func ParseScheme(marker string) (Scheme, error) {
	line := marker
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	for s, text := range schemeMarkers {
		if text == line {
			return s, nil
		}
	}
	return UnknownScheme, &v3d.FormatError{Reason: fmt.Sprintf("unrecognized scheme marker %q", line)}
}
