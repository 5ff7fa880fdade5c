/*
	Package storage provides read access to the files of volumes and tiled pyramids,
	whether they live in a local directory or in a cloud bucket.

	A Store is rooted at a local directory (through gocloud's fileblob driver) or at a
	gs:// or s3:// URL with an optional key prefix.  Keys are always slash-separated and
	relative to the root.  Every read opens, consumes and closes its own reader, so a
	Store holds no per-object state and may be shared across goroutines.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/v3d/v3d"
)

// ErrNotFound is wrapped by errors for keys that do not exist.
var ErrNotFound = errors.New("object not found")

// IsNotFound returns true if the error is due to a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || gcerrors.Code(err) == gcerrors.NotFound
}

// IsURL returns true if the reference names a bucket rather than a local path.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "gs://") || strings.HasPrefix(ref, "s3://")
}

// Store is a bucket-backed collection of objects.
type Store struct {
	ref    string
	bucket *blob.Bucket
}

// NewStore wraps an already opened bucket.  The Store takes ownership of the bucket.
func NewStore(ref string, bucket *blob.Bucket) *Store {
	return &Store{ref: ref, bucket: bucket}
}

// Open returns a Store rooted at a local directory or a gs:// or s3:// URL.
// URLs may include a key prefix, e.g., gs://bucket/volumes/brain1.
func Open(ref string) (*Store, error) {
	if !IsURL(ref) {
		dir, err := filepath.Abs(ref)
		if err != nil {
			return nil, err
		}
		bucket, err := fileblob.OpenBucket(dir, nil)
		if err != nil {
			return nil, fmt.Errorf("can't open directory %q: %w", ref, err)
		}
		return NewStore(dir, bucket), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("bad bucket URL %q: %v", ref, err)
	}
	bucketURL := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	v3d.Infof("Opening bucket %q ...\n", bucketURL.String())
	bucket, err := blob.OpenBucket(context.Background(), bucketURL.String())
	if err != nil {
		return nil, fmt.Errorf("can't open bucket %q: %w", bucketURL.String(), err)
	}
	if prefix := strings.Trim(u.Path, "/"); prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix+"/")
	}
	return NewStore(ref, bucket), nil
}

// Locate opens the store that holds the referenced path.  If the reference names an
// existing object, the returned store is rooted at its parent and key is its name.
// Otherwise the store is rooted at the reference and key is empty.
func Locate(ref string) (store *Store, key string, err error) {
	if !IsURL(ref) {
		fi, err := os.Stat(ref)
		if err != nil {
			return nil, "", err
		}
		if fi.IsDir() {
			store, err = Open(ref)
			return store, "", err
		}
		store, err = Open(filepath.Dir(ref))
		return store, filepath.Base(ref), err
	}

	trimmed := strings.TrimRight(ref, "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, "", fmt.Errorf("bad bucket URL %q: %v", ref, err)
	}
	if dir, name := path.Split(u.Path); name != "" {
		u.Path = dir
		parent, err := Open(u.String())
		if err != nil {
			return nil, "", err
		}
		exists, err := parent.Exists(name)
		if err != nil {
			parent.Close()
			return nil, "", err
		}
		if exists {
			return parent, name, nil
		}
		parent.Close()
	}
	store, err = Open(trimmed)
	return store, "", err
}

// Parent returns the reference of the directory or prefix holding ref.
func Parent(ref string) string {
	if !IsURL(ref) {
		if abs, err := filepath.Abs(ref); err == nil {
			ref = abs
		}
		return filepath.Dir(ref)
	}
	u, err := url.Parse(strings.TrimRight(ref, "/"))
	if err != nil {
		return ref
	}
	u.Path = path.Dir(u.Path)
	if u.Path == "/" || u.Path == "." {
		u.Path = ""
	}
	return u.String()
}

func (s *Store) String() string {
	return s.ref
}

// Path returns a reference for a key that can be displayed or passed to Locate.
func (s *Store) Path(key string) string {
	if IsURL(s.ref) {
		return strings.TrimRight(s.ref, "/") + "/" + key
	}
	return filepath.Join(s.ref, filepath.FromSlash(key))
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) notFound(key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, s.Path(key))
	}
	return err
}

// ReadAll returns the complete contents of an object.
func (s *Store) ReadAll(key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(context.Background(), key)
	if err != nil {
		return nil, s.notFound(key, err)
	}
	return data, nil
}

// ReadRange returns exactly length bytes of an object starting at offset.
func (s *Store) ReadRange(key string, offset, length int64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	timedLog := v3d.NewTimeLog()
	r, err := s.bucket.NewRangeReader(context.Background(), key, offset, length, nil)
	if err != nil {
		return nil, s.notFound(key, err)
	}
	defer r.Close()
	buf := make([]byte, length)
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return nil, v3d.CorruptDataf("object %q has only %d bytes at offset %d, wanted %d", key, n, offset, length)
	}
	if err != nil {
		return nil, err
	}
	timedLog.Debugf("Range read of object %q, offset %d, size %s", key, offset, v3d.Bytes(length))
	return buf, nil
}

// WriteAll stores an object, replacing any existing one.
func (s *Store) WriteAll(key string, data []byte) error {
	return s.bucket.WriteAll(context.Background(), key, data, nil)
}

// Exists returns true if the key names an object.
func (s *Store) Exists(key string) (bool, error) {
	return s.bucket.Exists(context.Background(), key)
}

// Size returns the number of bytes in an object.
func (s *Store) Size(key string) (int64, error) {
	attrs, err := s.bucket.Attributes(context.Background(), key)
	if err != nil {
		return 0, s.notFound(key, err)
	}
	return attrs.Size, nil
}

// Entry is a listed object or, when IsDir is set, a key prefix ending in "/".
type Entry struct {
	Key   string
	IsDir bool
	Size  int64
}

// List returns the objects and sub-prefixes immediately under a prefix, which should
// be empty or end in "/".
func (s *Store) List(prefix string) ([]Entry, error) {
	ctx := context.Background()
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var entries []Entry
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: obj.Key, IsDir: obj.IsDir, Size: obj.Size})
	}
}

// Object returns a v3d.RangeReader for the key.  The object must exist.
func (s *Store) Object(key string) (*Object, error) {
	size, err := s.Size(key)
	if err != nil {
		return nil, err
	}
	return &Object{store: s, key: key, size: size}, nil
}

// Object is a single object in a Store.
type Object struct {
	store *Store
	key   string
	size  int64
}

func (obj *Object) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > obj.size {
		return nil, v3d.CorruptDataf("range [%d, %d) is beyond the %d bytes of %q", offset, offset+length, obj.size, obj.key)
	}
	return obj.store.ReadRange(obj.key, offset, length)
}

func (obj *Object) Size() (int64, error) {
	return obj.size, nil
}

// Key returns the object's key within its Store.
func (obj *Object) Key() string {
	return obj.key
}

func (obj *Object) String() string {
	return obj.store.Path(obj.key)
}
