package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/msomdec/tagbatch/internal/domain"
	"github.com/msomdec/tagbatch/internal/repository/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same repositories
// serve plain calls and multi-store transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the on-device store. It is opened once per process and shared.
type DB struct {
	SqlDB *sql.DB
	stores
}

// New opens a SQLite database at the given path and configures it for use.
// Any failure here means local storage is unusable and is reported as
// domain.ErrStorageUnavailable.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", domain.ErrStorageUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(context.Background(), p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, p, err)
		}
	}

	// One writer; sync passes are serialized through this connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", domain.ErrStorageUnavailable, err)
	}

	return &DB{SqlDB: db, stores: stores{q: db}}, nil
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, d.SqlDB)
}

func (d *DB) Close() error {
	return d.SqlDB.Close()
}

// InTx runs fn with stores bound to one transaction, so everything written
// by a sync pass becomes visible together or not at all.
func (d *DB) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		return fn(stores{q: tx})
	})
}

func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.SqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// stores implements domain.Stores over a dbtx.
type stores struct {
	q dbtx
}

func (s stores) Sessions() domain.SessionRepository { return &sessionRepo{db: s.q} }
func (s stores) Groups() domain.GroupRepository     { return &groupRepo{db: s.q} }
func (s stores) Images() domain.ImageRepository     { return &imageRepo{db: s.q} }
func (s stores) Blobs() domain.BlobStore            { return &fileStore{db: s.q, table: "blobs"} }
func (s stores) Originals() domain.BlobStore        { return &fileStore{db: s.q, table: "original_files"} }
