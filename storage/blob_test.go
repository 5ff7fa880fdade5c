package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/janelia-flyem/v3d/v3d"
)

func writeFile(t *testing.T, path string, data []byte) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".iim.format"), []byte("TiledXY|3Dseries\n"))
	writeFile(t, filepath.Join(dir, "RES(4x8x2)", "mdata.json"), []byte("{}"))
	writeFile(t, filepath.Join(dir, "RES(4x8x2)", "000", "tile.v3dvol"), []byte("0123456789"))

	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	data, err := store.ReadAll(".iim.format")
	require.NoError(t, err)
	assert.Equal(t, "TiledXY|3Dseries\n", string(data))

	part, err := store.ReadRange("RES(4x8x2)/000/tile.v3dvol", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(part))

	_, err = store.ReadRange("RES(4x8x2)/000/tile.v3dvol", 8, 4)
	assert.ErrorIs(t, err, v3d.ErrCorruptData)

	size, err := store.Size("RES(4x8x2)/000/tile.v3dvol")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	exists, err := store.Exists("RES(4x8x2)/mdata.json")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.Exists("RES(4x8x2)/missing.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.ReadAll("missing")
	assert.True(t, IsNotFound(err), "got %v", err)
	_, err = store.Object("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := store.List("")
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e.Key)
		}
	}
	assert.Equal(t, []string{"RES(4x8x2)/"}, dirs)
}

func TestObjectRangeReader(t *testing.T) {
	store := NewStore("mem", memblob.OpenBucket(nil))
	defer store.Close()
	require.NoError(t, store.WriteAll("a/b", []byte("abcdefgh")))

	obj, err := store.Object("a/b")
	require.NoError(t, err)
	var src v3d.RangeReader = obj
	size, err := src.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)

	data, err := src.ReadRange(2, 3)
	require.NoError(t, err)
	assert.Equal(t, "cde", string(data))

	_, err = src.ReadRange(6, 3)
	assert.ErrorIs(t, err, v3d.ErrCorruptData)
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "stack.v3draw")
	writeFile(t, file, []byte("raw"))

	store, key, err := Locate(file)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "stack.v3draw", key)
	assert.Equal(t, file, store.Path(key))

	dirStore, key, err := Locate(dir)
	require.NoError(t, err)
	defer dirStore.Close()
	assert.Equal(t, "", key)

	_, _, err = Locate(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}

func TestParent(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, Parent(filepath.Join(dir, "RES(10x20x5)")))
	assert.Equal(t, "gs://bucket/volumes", Parent("gs://bucket/volumes/brain1/"))
	assert.Equal(t, "s3://bucket?region=us-east-1", Parent("s3://bucket/brain1?region=us-east-1"))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("gs://bucket/prefix"))
	assert.True(t, IsURL("s3://bucket"))
	assert.False(t, IsURL("/data/gs:/x"))
	assert.False(t, IsURL("relative/dir"))
}
