package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
)

// imageRepo implements domain.ImageRepository using SQLite.
type imageRepo struct {
	db dbtx
}

const imageColumns = `id, session_id, group_id, position, filename, slug, preview,
	ai_title, ai_tags, ai_confidence, user_title, user_tags, status, error_message, created_at, updated_at`

func (r *imageRepo) Get(ctx context.Context, id string) (*domain.ImageRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE id = ?", id)
	img, err := scanImage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// Put upserts in place, so reassigning GroupID never deletes the row or
// the blob that references it.
func (r *imageRepo) Put(ctx context.Context, img *domain.ImageRecord) error {
	if img.ID == "" || img.SessionID == "" || img.GroupID == "" {
		return fmt.Errorf("%w: image id, session id and group id are required", domain.ErrInvalidInput)
	}
	if img.Status == "" {
		img.Status = domain.ImageStatusUploaded
	}
	aiTags, err := encodeTags(img.AITags)
	if err != nil {
		return err
	}
	userTags, err := encodeTags(img.UserTags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO images (id, session_id, group_id, position, filename, slug, preview,
		 ai_title, ai_tags, ai_confidence, user_title, user_tags, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 session_id = excluded.session_id, group_id = excluded.group_id, position = excluded.position,
		 filename = excluded.filename, slug = excluded.slug, preview = excluded.preview,
		 ai_title = excluded.ai_title, ai_tags = excluded.ai_tags, ai_confidence = excluded.ai_confidence,
		 user_title = excluded.user_title, user_tags = excluded.user_tags,
		 status = excluded.status, error_message = excluded.error_message, updated_at = excluded.updated_at
		 RETURNING created_at`,
		img.ID, img.SessionID, img.GroupID, img.Position, img.Filename, img.Slug, img.Preview,
		img.AITitle, aiTags, img.AIConfidence, img.UserTitle, userTags,
		img.Status, img.Error, now, now,
	).Scan(&img.CreatedAt)
	if err != nil {
		return fmt.Errorf("put image: %w", err)
	}
	img.UpdatedAt = now
	return nil
}

// Delete removes the image row. Blobs and originals go with it through
// the ON DELETE CASCADE on their foreign keys.
func (r *imageRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func (r *imageRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.ImageRecord, error) {
	return r.list(ctx, "SELECT "+imageColumns+" FROM images WHERE session_id = ? ORDER BY group_id, position", sessionID)
}

func (r *imageRepo) ListByGroup(ctx context.Context, groupID string) ([]domain.ImageRecord, error) {
	return r.list(ctx, "SELECT "+imageColumns+" FROM images WHERE group_id = ? ORDER BY position", groupID)
}

func (r *imageRepo) list(ctx context.Context, query string, arg string) ([]domain.ImageRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []domain.ImageRecord
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

func scanImage(s scanner) (*domain.ImageRecord, error) {
	var img domain.ImageRecord
	var aiTags, userTags string
	if err := s.Scan(&img.ID, &img.SessionID, &img.GroupID, &img.Position, &img.Filename, &img.Slug,
		&img.Preview, &img.AITitle, &aiTags, &img.AIConfidence, &img.UserTitle, &userTags,
		&img.Status, &img.Error, &img.CreatedAt, &img.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if img.AITags, err = decodeTags(aiTags); err != nil {
		return nil, err
	}
	if img.UserTags, err = decodeTags(userTags); err != nil {
		return nil, err
	}
	return &img, nil
}
