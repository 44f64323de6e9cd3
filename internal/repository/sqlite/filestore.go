package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
)

// fileStore implements domain.BlobStore using SQLite BLOBs. The same type
// backs the primary blobs table and the original_files table.
type fileStore struct {
	db    dbtx
	table string
}

// Put stores a blob once. An existing blob for the same image is left
// untouched since uploaded bytes never change.
func (s *fileStore) Put(ctx context.Context, blob *domain.Blob) error {
	if blob.ImageID == "" {
		return fmt.Errorf("%w: blob image id is required", domain.ErrInvalidInput)
	}
	if blob.Checksum == nil {
		blob.Checksum = domain.Checksum(blob.Data)
	}
	blob.Size = int64(len(blob.Data))
	blob.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+s.table+` (image_id, content_type, size, checksum, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(image_id) DO NOTHING`,
		blob.ImageID, blob.ContentType, blob.Size, blob.Checksum, blob.Data, blob.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save %s row: %w", s.table, err)
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, imageID string) (*domain.Blob, error) {
	b := &domain.Blob{}
	err := s.db.QueryRowContext(ctx,
		"SELECT image_id, content_type, size, checksum, data, created_at FROM "+s.table+" WHERE image_id = ?", imageID,
	).Scan(&b.ImageID, &b.ContentType, &b.Size, &b.Checksum, &b.Data, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s row: %w", s.table, err)
	}
	return b, nil
}

func (s *fileStore) Exists(ctx context.Context, imageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table+" WHERE image_id = ?", imageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s row: %w", s.table, err)
	}
	return n > 0, nil
}

func (s *fileStore) Delete(ctx context.Context, imageID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE image_id = ?", imageID); err != nil {
		return fmt.Errorf("delete %s row: %w", s.table, err)
	}
	return nil
}
