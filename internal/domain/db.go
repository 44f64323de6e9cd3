package domain

import "context"

// Database defines lifecycle operations for the underlying database.
// Each implementation owns its own migration files, so the schema can
// grow new stores without touching existing data.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}

// Stores groups the keyed stores that make up one logical write batch.
type Stores interface {
	Sessions() SessionRepository
	Groups() GroupRepository
	Images() ImageRepository
	Blobs() BlobStore
	Originals() BlobStore
}

// StoreCounts reports the number of records held in each store.
type StoreCounts struct {
	Sessions  int   `json:"sessions"`
	Groups    int   `json:"groups"`
	Images    int   `json:"images"`
	Blobs     int   `json:"blobs"`
	Originals int   `json:"originals"`
	BlobBytes int64 `json:"blob_bytes"`
}

// Store is the durable local store mirrored by the sync engine.
type Store interface {
	Stores
	// InTx runs fn against stores bound to a single transaction. The
	// transaction commits only if fn returns nil.
	InTx(ctx context.Context, fn func(Stores) error) error
	ClearAll(ctx context.Context) error
	// ClearSession deletes the session and every group, image, blob and
	// original file scoped to it.
	ClearSession(ctx context.Context, sessionID string) error
	// DeleteImage removes an image together with its blob and original.
	DeleteImage(ctx context.Context, imageID string) error
	// DeleteGroup removes a group and all of its images and their bytes.
	DeleteGroup(ctx context.Context, groupID string) error
	Counts(ctx context.Context) (StoreCounts, error)
	// Usage lists every session with the bytes it holds, oldest first.
	Usage(ctx context.Context) ([]SessionUsage, error)
}
