package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
)

// sessionRepo implements domain.SessionRepository using SQLite.
type sessionRepo struct {
	db dbtx
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	s := &domain.Session{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, marketplace, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.Marketplace, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) Put(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if session.Marketplace == "" {
		session.Marketplace = domain.MarketplaceGeneric
	}

	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, marketplace, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET marketplace = excluded.marketplace, updated_at = excluded.updated_at
		 RETURNING created_at`,
		session.ID, session.Marketplace, now, now,
	).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	session.UpdatedAt = now
	return nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (r *sessionRepo) ListUpdatedBefore(ctx context.Context, before time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, marketplace, created_at, updated_at FROM sessions
		 WHERE updated_at < ? ORDER BY updated_at`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.Marketplace, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
