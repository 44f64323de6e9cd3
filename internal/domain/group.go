package domain

import (
	"context"
	"time"
)

// UngroupedID is the reserved group id of the pool that holds freshly
// uploaded images before they are clustered.
const UngroupedID = "ungrouped"

// Group is the in-memory form of a cluster of images sharing metadata.
type Group struct {
	ID          string
	Title       string
	Description string
	Tags        []string
	Verified    bool
	Images      []Image
}

// GroupRecord is the durable form of a Group. Images are stored separately.
type GroupRecord struct {
	ID          string
	SessionID   string
	Ordinal     int
	Title       string
	Description string
	Tags        []string
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupRepository persists group records.
type GroupRepository interface {
	Get(ctx context.Context, id string) (*GroupRecord, error)
	Put(ctx context.Context, group *GroupRecord) error
	Delete(ctx context.Context, id string) error
	ListBySession(ctx context.Context, sessionID string) ([]GroupRecord, error)
}

// CountImages returns the total number of images across groups.
func CountImages(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Images)
	}
	return n
}

// Snapshot is the in-memory session as read from the state container.
type Snapshot struct {
	SessionID   string
	Marketplace Marketplace
	Groups      []Group
}
