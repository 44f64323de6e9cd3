package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/msomdec/tagbatch/internal/domain"
	"github.com/msomdec/tagbatch/internal/repository/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// countingFile is an in-memory File that records how often it was read.
type countingFile struct {
	name  string
	data  []byte
	opens atomic.Int32
	fail  bool
}

func newCountingFile(name string, data []byte) *countingFile {
	return &countingFile{name: name, data: data}
}

func (f *countingFile) Name() string        { return f.name }
func (f *countingFile) ContentType() string { return "image/jpeg" }
func (f *countingFile) Size() int64         { return int64(len(f.data)) }

func (f *countingFile) Open() (io.ReadCloser, error) {
	f.opens.Add(1)
	if f.fail {
		return nil, errors.New("file handle revoked")
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// countingStore counts write transactions against the wrapped store. While
// fail is set every transaction fails before touching the store.
type countingStore struct {
	domain.Store
	writes atomic.Int32
	fail   atomic.Bool
}

func (s *countingStore) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	s.writes.Add(1)
	if s.fail.Load() {
		return errors.New("disk I/O error")
	}
	return s.Store.InTx(ctx, fn)
}

func testImage(id string, data []byte) domain.Image {
	return domain.Image{
		ID:       id,
		Filename: id + ".jpg",
		Slug:     id + ".jpg",
		Status:   domain.ImageStatusUploaded,
		File:     domain.NewBytesFile(id+".jpg", "image/jpeg", data),
	}
}

func imageIDs(groups []domain.Group) []string {
	var ids []string
	for _, g := range groups {
		for _, img := range g.Images {
			ids = append(ids, img.ID)
		}
	}
	return ids
}

func readAll(t *testing.T, f domain.File) []byte {
	t.Helper()
	if f == nil {
		t.Fatal("expected a file handle")
	}
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	return data
}
