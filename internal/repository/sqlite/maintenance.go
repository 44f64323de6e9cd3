package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/msomdec/tagbatch/internal/domain"
)

// clearTables lists tables in child-to-parent order.
var clearTables = []string{"original_files", "blobs", "images", "image_groups", "sessions"}

// ClearAll wipes every store. Used to recover from a corrupted local state.
func (d *DB) ClearAll(ctx context.Context) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range clearTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (d *DB) ClearSession(ctx context.Context, sessionID string) error {
	stmts := []struct {
		name  string
		query string
	}{
		{"original_files", "DELETE FROM original_files WHERE image_id IN (SELECT id FROM images WHERE session_id = ?)"},
		{"blobs", "DELETE FROM blobs WHERE image_id IN (SELECT id FROM images WHERE session_id = ?)"},
		{"images", "DELETE FROM images WHERE session_id = ?"},
		{"image_groups", "DELETE FROM image_groups WHERE session_id = ?"},
		{"sessions", "DELETE FROM sessions WHERE id = ?"},
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, sessionID); err != nil {
				return fmt.Errorf("clear session %s: %w", s.name, err)
			}
		}
		return nil
	})
}

func (d *DB) DeleteImage(ctx context.Context, imageID string) error {
	return d.InTx(ctx, func(s domain.Stores) error {
		return deleteImage(ctx, s, imageID)
	})
}

func (d *DB) DeleteGroup(ctx context.Context, groupID string) error {
	return d.InTx(ctx, func(s domain.Stores) error {
		images, err := s.Images().ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		for _, img := range images {
			if err := deleteImage(ctx, s, img.ID); err != nil {
				return err
			}
		}
		return s.Groups().Delete(ctx, groupID)
	})
}

// deleteImage removes the bytes before the metadata so a failure never
// leaves a blob without its image.
func deleteImage(ctx context.Context, s domain.Stores, imageID string) error {
	if err := s.Originals().Delete(ctx, imageID); err != nil {
		return err
	}
	if err := s.Blobs().Delete(ctx, imageID); err != nil {
		return err
	}
	return s.Images().Delete(ctx, imageID)
}

func (d *DB) Counts(ctx context.Context) (domain.StoreCounts, error) {
	var c domain.StoreCounts
	err := d.SqlDB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM sessions),
		(SELECT COUNT(*) FROM image_groups),
		(SELECT COUNT(*) FROM images),
		(SELECT COUNT(*) FROM blobs),
		(SELECT COUNT(*) FROM original_files),
		(SELECT COALESCE(SUM(size), 0) FROM blobs) + (SELECT COALESCE(SUM(size), 0) FROM original_files)`,
	).Scan(&c.Sessions, &c.Groups, &c.Images, &c.Blobs, &c.Originals, &c.BlobBytes)
	if err != nil {
		return c, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

func (d *DB) Usage(ctx context.Context) ([]domain.SessionUsage, error) {
	rows, err := d.SqlDB.QueryContext(ctx, `SELECT s.id, s.updated_at,
		(SELECT COALESCE(SUM(b.size), 0) FROM blobs b JOIN images i ON i.id = b.image_id WHERE i.session_id = s.id) +
		(SELECT COALESCE(SUM(o.size), 0) FROM original_files o JOIN images i ON i.id = o.image_id WHERE i.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list session usage: %w", err)
	}
	defer rows.Close()

	var usage []domain.SessionUsage
	for rows.Next() {
		var u domain.SessionUsage
		if err := rows.Scan(&u.SessionID, &u.UpdatedAt, &u.Bytes); err != nil {
			return nil, fmt.Errorf("scan session usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
