package service

import (
	"sync"

	"github.com/msomdec/tagbatch/internal/domain"
)

// WipeGuard stops a save from replacing a non-empty stored session with an
// empty one unless a clear was explicitly requested just before.
type WipeGuard struct {
	mu             sync.Mutex
	known          int  // last image count known to be stored
	unknown        bool // stored count could not be determined
	clearRequested bool
}

// Observe records the image count now known to be stored.
func (g *WipeGuard) Observe(count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.known = count
	g.unknown = false
}

// MarkUnknown makes the guard assume stored work exists. Used when
// hydration failed and the stored count is not known.
func (g *WipeGuard) MarkUnknown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unknown = true
}

// RequestClear authorises exactly one following empty save.
func (g *WipeGuard) RequestClear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearRequested = true
}

// CancelClear withdraws a clear request that no save has used yet.
func (g *WipeGuard) CancelClear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearRequested = false
}

// Reset forgets everything, as after the stored session was deleted.
func (g *WipeGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.known = 0
	g.unknown = false
	g.clearRequested = false
}

// Allow decides whether a save of proposed images may proceed. Every call
// consumes a pending clear request, so a request never outlives the save
// that follows it. Without one, an empty save over known work is refused
// with domain.ErrWipeBlocked. cleared reports that the pending request
// authorised this empty save; pass it to Done once the write has run.
func (g *WipeGuard) Allow(proposed int) (cleared bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	requested := g.clearRequested
	g.clearRequested = false

	switch {
	case proposed > 0:
		return false, nil
	case requested:
		return true, nil
	case g.known == 0 && !g.unknown:
		return false, nil
	}
	return false, domain.ErrWipeBlocked
}

// Done settles a save that Allow let through. On success the proposed count
// becomes the known stored count. A failed empty save that used a clear
// request gets the request back, so retrying the clear still works.
func (g *WipeGuard) Done(proposed int, cleared bool, saveErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if saveErr != nil {
		if cleared {
			g.clearRequested = true
		}
		return
	}
	g.known = proposed
	g.unknown = false
}

// Known returns the last observed count and whether it is trustworthy.
func (g *WipeGuard) Known() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.known, !g.unknown
}
