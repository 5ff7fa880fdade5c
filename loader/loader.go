/*
	Package loader opens any supported volume by path and hides whether it is a single
	file or a tiled pyramid.

	Single files are identified by their magic string: v3d containers and V3D Raw stacks.
	Directories are identified by their .iim.format scheme marker.  Only the Tiled scheme
	can be opened; other known schemes are reported as unsupported and nothing is ever
	silently substituted.  A single RES(HxWxD) level directory opens under the marker of
	its parent.  Any other directory without a marker is a format error unless
	Options.SchemeFallback asks for the schemes in tiled.FallbackOrder to be tried.
*/
package loader

import (
	"errors"
	"fmt"
	"os"

	"github.com/janelia-flyem/v3d/plane"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
	"github.com/janelia-flyem/v3d/view"
)

// Handle is an opened volume.
type Handle interface {
	// Dims returns the volume extents, for pyramids those of the selected level.
	Dims() (x, y, z, c int32)

	DataType() v3d.DataType

	// Extract returns the inclusive, 0-indexed box [x0,x1] x [y0,y1] x [z0,z1].
	Extract(x0, x1, y0, y1, z0, z1 int32) (*v3d.Volume, error)

	ExtractBox(box v3d.Extents3d) (*v3d.Volume, error)

	Close() error
}

// Options control how a path is opened.
type Options struct {
	// Level selects the resolution of a pyramid.
	Level int

	// Concurrency is the number of tiles decoded at once by pyramid extractions.
	Concurrency int

	// SchemeFallback tries every scheme in tiled.FallbackOrder when a directory has no
	// scheme marker.  Each failed attempt is logged and returned if none succeeds.
	SchemeFallback bool

	// Decoder reads plane-series tiles.  The zero value uses plane.ImageDecoder.
	Decoder plane.Decoder
}

// Open detects the format at a local path or gs:// or s3:// URL and opens it.
func Open(ref string, opts Options) (Handle, error) {
	store, key, err := storage.Locate(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &v3d.FormatError{Path: ref, Reason: "no such file or directory", Err: err}
		}
		return nil, err
	}
	var h Handle
	if key != "" {
		h, err = openFile(store, key)
	} else {
		h, err = openDirectory(store, ref, opts)
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	return h, nil
}

func openDirectory(store *storage.Store, ref string, opts Options) (Handle, error) {
	marker, err := store.ReadAll(tiled.FormatFile)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}
	if err != nil {
		if scheme, found := levelScheme(store, ref); found {
			return openScheme(store, ref, scheme, opts)
		}
		if !opts.SchemeFallback {
			return nil, &v3d.FormatError{Path: ref, Reason: fmt.Sprintf("directory has no %s scheme marker", tiled.FormatFile)}
		}
		return openFallback(store, ref, opts)
	}
	scheme, err := tiled.ParseScheme(string(marker))
	if err != nil {
		return nil, &v3d.FormatError{Path: ref, Reason: "can't identify directory scheme", Err: err}
	}
	return openScheme(store, ref, scheme, opts)
}

// levelScheme returns the scheme of the pyramid holding ref when ref is a single
// resolution level directory: it has a root descriptor and its parent has a marker.
func levelScheme(store *storage.Store, ref string) (tiled.Scheme, bool) {
	if exists, err := store.Exists(tiled.DescriptorFile); err != nil || !exists {
		return tiled.UnknownScheme, false
	}
	parent, err := storage.Open(storage.Parent(ref))
	if err != nil {
		return tiled.UnknownScheme, false
	}
	defer parent.Close()
	marker, err := parent.ReadAll(tiled.FormatFile)
	if err != nil {
		return tiled.UnknownScheme, false
	}
	scheme, err := tiled.ParseScheme(string(marker))
	if err != nil {
		return tiled.UnknownScheme, false
	}
	v3d.Debugf("Opening %q as a level of the %s pyramid in %q\n", ref, scheme, parent)
	return scheme, true
}

func openScheme(store *storage.Store, ref string, scheme tiled.Scheme, opts Options) (Handle, error) {
	if !scheme.Supported() {
		return nil, &v3d.UnsupportedFormatError{Path: ref, Reason: fmt.Sprintf("%s directories can't be opened", scheme)}
	}
	meta, err := tiled.Open(store, tiled.Options{Decoder: opts.Decoder})
	if err != nil {
		return nil, err
	}
	meta.Scheme = scheme
	return newPyramid(store, meta, opts)
}

// openFallback attempts each scheme in order, logging and collecting every failure.
func openFallback(store *storage.Store, ref string, opts Options) (Handle, error) {
	var errs []error
	for _, scheme := range tiled.FallbackOrder {
		h, err := openScheme(store, ref, scheme, opts)
		if err == nil {
			v3d.Warningf("Opened %q as %s although it has no %s marker\n", ref, scheme, tiled.FormatFile)
			return h, nil
		}
		v3d.Warningf("Fallback: unable to open %q as %s: %v\n", ref, scheme, err)
		errs = append(errs, fmt.Errorf("as %s: %w", scheme, err))
	}
	return nil, &v3d.FormatError{
		Path:   ref,
		Reason: fmt.Sprintf("no scheme could open directory without %s marker", tiled.FormatFile),
		Err:    errors.Join(errs...),
	}
}

// Pyramid is an opened tiled pyramid bound to one resolution level.
type Pyramid struct {
	store *storage.Store
	*view.View
}

func newPyramid(store *storage.Store, meta *tiled.Metadata, opts Options) (*Pyramid, error) {
	v, err := view.New(store, meta, view.Options{
		Level:       opts.Level,
		Concurrency: opts.Concurrency,
		Decoder:     opts.Decoder,
	})
	if err != nil {
		return nil, err
	}
	return &Pyramid{store: store, View: v}, nil
}

// Level returns a handle on another resolution level sharing the same store.  Closing
// either handle closes the store.
func (p *Pyramid) Level(n int) (*Pyramid, error) {
	v, err := p.View.Level(n)
	if err != nil {
		return nil, err
	}
	return &Pyramid{store: p.store, View: v}, nil
}

// Close releases the pyramid's store.
func (p *Pyramid) Close() error {
	return p.store.Close()
}
