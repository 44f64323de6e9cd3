package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
)

// EvictionResult lists the sessions removed by one Enforce call.
type EvictionResult struct {
	Expired    []string `json:"expired"`
	OverQuota  []string `json:"over_quota"`
	BytesFreed int64    `json:"bytes_freed"`
}

// Evictor bounds local storage. Sessions idle longer than ttl are removed,
// then whole sessions are removed oldest first while stored bytes exceed
// quota. A zero ttl or quota disables that rule.
type Evictor struct {
	store domain.Store
	ttl   time.Duration
	quota int64
	now   func() time.Time
}

// NewEvictor creates a new Evictor.
func NewEvictor(store domain.Store, ttl time.Duration, quota int64) *Evictor {
	return &Evictor{store: store, ttl: ttl, quota: quota, now: time.Now}
}

// Enforce applies the eviction rules. The session keep is never removed.
func (e *Evictor) Enforce(ctx context.Context, keep string) (EvictionResult, error) {
	var res EvictionResult

	usage, err := e.store.Usage(ctx)
	if err != nil {
		return res, fmt.Errorf("load usage: %w", err)
	}

	var total int64
	live := usage[:0:0]
	cutoff := e.now().Add(-e.ttl)
	for _, u := range usage {
		if e.ttl > 0 && u.SessionID != keep && u.UpdatedAt.Before(cutoff) {
			if err := e.store.ClearSession(ctx, u.SessionID); err != nil {
				return res, fmt.Errorf("evict expired session %s: %w", u.SessionID, err)
			}
			res.Expired = append(res.Expired, u.SessionID)
			res.BytesFreed += u.Bytes
			continue
		}
		live = append(live, u)
		total += u.Bytes
	}

	for _, u := range live {
		if e.quota <= 0 || total <= e.quota {
			break
		}
		if u.SessionID == keep {
			continue
		}
		if err := e.store.ClearSession(ctx, u.SessionID); err != nil {
			return res, fmt.Errorf("evict session %s: %w", u.SessionID, err)
		}
		res.OverQuota = append(res.OverQuota, u.SessionID)
		res.BytesFreed += u.Bytes
		total -= u.Bytes
	}

	if n := len(res.Expired) + len(res.OverQuota); n > 0 {
		slog.Info("local sessions evicted", "expired", len(res.Expired), "over_quota", len(res.OverQuota), "bytes_freed", res.BytesFreed)
	}
	return res, nil
}
