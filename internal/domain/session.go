package domain

import (
	"context"
	"time"
)

// Marketplace is the target selling platform a batch is tagged for.
type Marketplace string

const (
	MarketplaceGeneric Marketplace = "generic"
	MarketplaceEtsy    Marketplace = "etsy"
	MarketplaceShopify Marketplace = "shopify"
	MarketplaceAmazon  Marketplace = "amazon"
	MarketplaceEbay    Marketplace = "ebay"
)

// Valid reports whether m is one of the known marketplaces.
func (m Marketplace) Valid() bool {
	switch m {
	case MarketplaceGeneric, MarketplaceEtsy, MarketplaceShopify, MarketplaceAmazon, MarketplaceEbay:
		return true
	}
	return false
}

// Session is the durable record of one editing batch.
type Session struct {
	ID          string
	Marketplace Marketplace
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionUsage summarises how much binary storage a session holds.
type SessionUsage struct {
	SessionID string
	UpdatedAt time.Time
	Bytes     int64
}

// SessionRepository persists session records.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Put inserts or updates by primary key. CreatedAt is preserved for
	// existing rows; UpdatedAt is always refreshed.
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	ListUpdatedBefore(ctx context.Context, before time.Time) ([]Session, error)
}
