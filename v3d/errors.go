package v3d

import (
	"errors"
	"fmt"
)

// Error kinds usable with errors.Is.  The typed errors below report their kind, so
// errors.Is(err, ErrRange) holds for any *RangeError in the chain.
var (
	ErrFormat       = errors.New("unrecognized format")
	ErrUnsupported  = errors.New("unsupported format")
	ErrCorruptData  = errors.New("corrupt data")
	ErrIndexCorrupt = errors.New("corrupt tile index")
	ErrRange        = errors.New("request out of range")
	ErrTileRead     = errors.New("tile read failure")
)

// FormatError means a file or directory is not a recognized container or scheme.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return withCause(pathPrefix("format error", e.Path)+e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// UnsupportedFormatError is a FormatError where the format, scheme, sample type or
// channel count is recognized but not handled.
type UnsupportedFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	return withCause(pathPrefix("unsupported format", e.Path)+e.Reason, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupported || target == ErrFormat
}

// CorruptDataError is returned for truncated streams or payloads whose size or content
// disagrees with their header.
type CorruptDataError struct {
	Reason string
	Err    error
}

func (e *CorruptDataError) Error() string {
	return withCause("corrupt data: "+e.Reason, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

func (e *CorruptDataError) Is(target error) bool { return target == ErrCorruptData }

// IndexCorruptError means pyramid metadata is inconsistent with itself or with the
// tiles on disk.
type IndexCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IndexCorruptError) Error() string {
	return withCause(pathPrefix("corrupt index", e.Path)+e.Reason, e.Err)
}

func (e *IndexCorruptError) Unwrap() error { return e.Err }

func (e *IndexCorruptError) Is(target error) bool { return target == ErrIndexCorrupt }

// RangeError is returned when a requested box is not within [0, Dims) on every axis.
type RangeError struct {
	Box  Extents3d
	Dims Point3d
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("requested box %s is not within volume of size %s", e.Box, e.Dims)
}

func (e *RangeError) Is(target error) bool { return target == ErrRange }

// TileReadError reports a failed read or decode of a specific tile during extraction.
type TileReadError struct {
	Tile string
	Err  error
}

func (e *TileReadError) Error() string {
	return withCause(fmt.Sprintf("unable to read tile %q", e.Tile), e.Err)
}

func (e *TileReadError) Unwrap() error { return e.Err }

func (e *TileReadError) Is(target error) bool { return target == ErrTileRead }

// Retryable returns true if the caller may correct the request or verify storage and
// retry: range errors and tile read failures.  Format, corrupt data and index errors
// require good source data before a retry can succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrRange) || errors.Is(err, ErrTileRead)
}

// CorruptDataf returns a CorruptDataError with a formatted reason.
func CorruptDataf(format string, args ...interface{}) error {
	return &CorruptDataError{Reason: fmt.Sprintf(format, args...)}
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}

func pathPrefix(kind, path string) string {
	if path == "" {
		return kind + ": "
	}
	return fmt.Sprintf("%s for %q: ", kind, path)
}
