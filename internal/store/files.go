package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// FileStore persists chat attachments on local disk. Files are named by a
// fresh ULID so ids never collide and are unguessable; the original filename
// survives only in the upload response the client keeps.
type FileStore struct {
	dir string
}

// StoredFile describes one saved attachment.
type StoredFile struct {
	ID   string
	Size int64
}

// NewFileStore creates a file store rooted at dir.
// If dir is empty, defaults to "./data/uploads"
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./data/uploads"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save writes an attachment and returns its id (ULID plus the sanitized
// extension of the uploaded name).
func (f *FileStore) Save(originalName string, r io.Reader) (*StoredFile, error) {
	id := ulid.Make().String() + sanitizeExt(originalName)
	path := filepath.Join(f.dir, id)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &StoredFile{ID: id, Size: size}, nil
}

// Open returns a stored attachment for streaming. Ids that this store could
// not have issued, and ids with no file behind them, return (nil, nil).
func (f *FileStore) Open(id string) (*os.File, error) {
	if !validFileID(id) {
		return nil, nil
	}
	file, err := os.Open(filepath.Join(f.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return file, nil
}

// validFileID accepts only the shape Save produces: a 26-char ULID plus an
// optional short lowercase alphanumeric extension. Everything else is
// rejected before touching the filesystem.
func validFileID(id string) bool {
	name := id
	if dot := strings.IndexByte(id, '.'); dot != -1 {
		name = id[:dot]
		ext := id[dot+1:]
		if len(ext) == 0 || len(ext) > 10 {
			return false
		}
		for _, r := range ext {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				return false
			}
		}
	}
	if len(name) != 26 {
		return false
	}
	for _, r := range name {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// sanitizeExt keeps a short lowercase alphanumeric extension, or nothing.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 11 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
