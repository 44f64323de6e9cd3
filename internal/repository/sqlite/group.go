package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
)

// groupRepo implements domain.GroupRepository using SQLite.
type groupRepo struct {
	db dbtx
}

const groupColumns = "id, session_id, ordinal, title, description, tags, verified, created_at, updated_at"

func (r *groupRepo) Get(ctx context.Context, id string) (*domain.GroupRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM image_groups WHERE id = ?", id)
	g, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *groupRepo) Put(ctx context.Context, group *domain.GroupRecord) error {
	if group.ID == "" || group.SessionID == "" {
		return fmt.Errorf("%w: group id and session id are required", domain.ErrInvalidInput)
	}
	tags, err := encodeTags(group.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO image_groups (id, session_id, ordinal, title, description, tags, verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 session_id = excluded.session_id, ordinal = excluded.ordinal, title = excluded.title,
		 description = excluded.description, tags = excluded.tags, verified = excluded.verified,
		 updated_at = excluded.updated_at
		 RETURNING created_at`,
		group.ID, group.SessionID, group.Ordinal, group.Title, group.Description,
		tags, group.Verified, now, now,
	).Scan(&group.CreatedAt)
	if err != nil {
		return fmt.Errorf("put group: %w", err)
	}
	group.UpdatedAt = now
	return nil
}

func (r *groupRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM image_groups WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

func (r *groupRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.GroupRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+groupColumns+" FROM image_groups WHERE session_id = ? ORDER BY ordinal, created_at", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.GroupRecord
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(s scanner) (*domain.GroupRecord, error) {
	var g domain.GroupRecord
	var tags string
	if err := s.Scan(&g.ID, &g.SessionID, &g.Ordinal, &g.Title, &g.Description,
		&tags, &g.Verified, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if g.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &g, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
