package v3d

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// ConvertToAbsolute returns an absolute path for a path that may be relative to
// the given directory.
func ConvertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(filepath.Join(dir, path))
	if err != nil {
		return "", fmt.Errorf("can't make %q absolute relative to %q: %v", path, dir, err)
	}
	return abs, nil
}

// Bytes returns a human readable byte count, e.g., "83 MB".
func Bytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d bytes", n)
	}
	return humanize.Bytes(uint64(n))
}
