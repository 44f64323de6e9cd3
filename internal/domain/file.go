package domain

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"
)

// File is a selected file as the rest of the application sees it, whether
// it came from an upload or was rebuilt from a stored blob.
type File interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// BytesFile is an in-memory File.
type BytesFile struct {
	name        string
	contentType string
	data        []byte
	modTime     time.Time
}

// NewBytesFile wraps data as a File. The slice is not copied.
func NewBytesFile(name, contentType string, data []byte) *BytesFile {
	return &BytesFile{name: name, contentType: contentType, data: data, modTime: time.Now()}
}

func (f *BytesFile) Name() string        { return f.name }
func (f *BytesFile) ContentType() string { return f.contentType }
func (f *BytesFile) Size() int64         { return int64(len(f.data)) }
func (f *BytesFile) ModTime() time.Time  { return f.modTime }
func (f *BytesFile) Bytes() []byte       { return f.data }

func (f *BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// DiskFile is a File backed by a path on the local filesystem.
type DiskFile struct {
	path        string
	contentType string
	size        int64
}

// NewDiskFile stats path and returns a File that reads it lazily.
func NewDiskFile(path, contentType string) (*DiskFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &DiskFile{path: path, contentType: contentType, size: info.Size()}, nil
}

func (f *DiskFile) Name() string        { return filepath.Base(f.path) }
func (f *DiskFile) ContentType() string { return f.contentType }
func (f *DiskFile) Size() int64         { return f.size }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
