package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/msomdec/tagbatch/internal/domain"
)

// DefaultDebounce is the quiet period after the last change before a
// background sync runs.
const DefaultDebounce = 300 * time.Millisecond

// Container is the in-memory session the coordinator mirrors.
type Container interface {
	Snapshot() domain.Snapshot
	// Restored reports whether the container finished its own lightweight
	// restore (session id and preferences).
	Restored() bool
	OnRestored(fn func()) (cancel func())
	OnChange(fn func()) (unsubscribe func())
	// Load replaces the container's groups with hydrated ones.
	Load(marketplace domain.Marketplace, groups []domain.Group)
}

// State is a step of the coordinator's lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateWaitingForRestore
	StateHydrating
	StateError
	StateHydrated
	StateSyncActive
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateWaitingForRestore:
		return "waiting_for_restore"
	case StateHydrating:
		return "hydrating"
	case StateError:
		return "error"
	case StateHydrated:
		return "hydrated"
	case StateSyncActive:
		return "sync_active"
	}
	return "unknown"
}

// HydrationReport summarises the hydration run for the UI.
type HydrationReport struct {
	SessionID string `json:"session_id"`
	Found     bool   `json:"found"`
	Restored  int    `json:"restored"`
	Dropped   int    `json:"dropped"`
}

// CoordinatorConfig holds the coordinator's collaborators.
type CoordinatorConfig struct {
	Container Container
	Hydrator  *HydrationService
	Syncer    *SyncService
	Evictor   *Evictor      // optional
	Debounce  time.Duration // DefaultDebounce when zero
}

// Coordinator orders hydration before sync. It hydrates exactly once after
// the container has restored, then mirrors every later change into the
// local store through a debounced sync.
type Coordinator struct {
	container Container
	hydrator  *HydrationService
	syncer    *SyncService
	evictor   *Evictor
	guard     WipeGuard
	debounced func(func())

	mu            sync.Mutex
	state         State
	ctx           context.Context
	hydrateOnce   bool
	subscribeOnce bool
	pending       bool
	cancelRestore func()
	unsubscribe   func()
	report        HydrationReport
	err           error
	ready         chan struct{}

	// syncMu serializes write passes from the debounced and forced paths.
	syncMu sync.Mutex
}

// NewCoordinator creates a coordinator in StateNotStarted.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	wait := cfg.Debounce
	if wait <= 0 {
		wait = DefaultDebounce
	}
	return &Coordinator{
		container: cfg.Container,
		hydrator:  cfg.Hydrator,
		syncer:    cfg.Syncer,
		evictor:   cfg.Evictor,
		debounced: debounce.New(wait),
		ready:     make(chan struct{}),
	}
}

// Start begins the lifecycle. Hydration runs in the background once the
// container has restored; Ready is closed when sync is active. Calling
// Start again is a no-op. ctx is used for all later storage calls.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateNotStarted {
		c.mu.Unlock()
		return
	}
	c.ctx = ctx
	c.state = StateWaitingForRestore
	c.mu.Unlock()

	// Register before checking so a restore finishing in between is not missed.
	cancel := c.container.OnRestored(func() { go c.hydrate() })

	c.mu.Lock()
	if c.hydrateOnce {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancelRestore = cancel
	c.mu.Unlock()

	if c.container.Restored() {
		go c.hydrate()
	}
}

func (c *Coordinator) hydrate() {
	c.mu.Lock()
	if c.hydrateOnce {
		c.mu.Unlock()
		return
	}
	c.hydrateOnce = true
	c.state = StateHydrating
	ctx := c.ctx
	cancel := c.cancelRestore
	c.cancelRestore = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	snap := c.container.Snapshot()
	report := HydrationReport{SessionID: snap.SessionID}
	var hydrateErr error

	if snap.SessionID != "" {
		res, err := c.hydrator.Hydrate(ctx, snap.SessionID)
		switch {
		case err != nil:
			slog.Error("hydration failed", "session_id", snap.SessionID, "error", err)
			hydrateErr = fmt.Errorf("hydrate session: %w", err)
			c.guard.MarkUnknown()
			c.mu.Lock()
			c.state = StateError
			c.mu.Unlock()
		case res.Found:
			c.container.Load(res.Marketplace, res.Groups)
			c.guard.Observe(res.Restored)
			report.Found = true
			report.Restored = res.Restored
			report.Dropped = res.Dropped
			slog.Info("session hydrated", "session_id", snap.SessionID,
				"groups", len(res.Groups), "restored", res.Restored, "dropped", res.Dropped)
		}
	}

	if c.evictor != nil && hydrateErr == nil {
		if _, err := c.evictor.Enforce(ctx, snap.SessionID); err != nil {
			slog.Error("eviction failed", "error", err)
		}
	}

	// An error still ends in Hydrated so callers are never left waiting.
	c.mu.Lock()
	c.report = report
	c.err = hydrateErr
	c.state = StateHydrated
	c.mu.Unlock()

	// No clear request may carry over from before the stored work was loaded.
	c.guard.CancelClear()
	c.subscribe()
	close(c.ready)
}

func (c *Coordinator) subscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeOnce {
		return
	}
	c.subscribeOnce = true
	c.unsubscribe = c.container.OnChange(c.schedule)
	c.state = StateSyncActive
}

// schedule queues a sync for after the debounce window. Changes arriving
// within the window collapse into a single write of the latest state.
func (c *Coordinator) schedule() {
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()
	c.debounced(c.runPending)
}

func (c *Coordinator) runPending() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	ctx := c.ctx
	c.mu.Unlock()

	// Background sync errors are only logged; the next change retries.
	_, _ = c.sync(ctx, false)
}

// sync writes the current snapshot if the wipe guard allows it.
func (c *Coordinator) sync(ctx context.Context, atomic bool) (SyncResult, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	return c.syncLocked(ctx, atomic)
}

func (c *Coordinator) syncLocked(ctx context.Context, atomic bool) (SyncResult, error) {
	snap := c.container.Snapshot()
	if snap.SessionID == "" {
		return SyncResult{}, nil
	}

	proposed := domain.CountImages(snap.Groups)
	cleared, err := c.guard.Allow(proposed)
	if err != nil {
		known, _ := c.guard.Known()
		slog.Warn("sync aborted: refusing to store an empty session over saved work",
			"session_id", snap.SessionID, "known_images", known)
		return SyncResult{}, err
	}

	var res SyncResult
	if atomic {
		res, err = c.syncer.SaveSessionAtomic(ctx, snap.SessionID, snap.Marketplace, snap.Groups)
	} else {
		res, err = c.syncer.SaveBatch(ctx, snap.SessionID, snap.Marketplace, snap.Groups)
	}
	c.guard.Done(proposed, cleared, err)
	if err != nil {
		slog.Error("sync failed", "session_id", snap.SessionID, "atomic", atomic, "error", err)
		return res, err
	}

	slog.Debug("session synced", "session_id", snap.SessionID, "atomic", atomic,
		"groups", res.SavedGroups, "images", res.SavedImages, "blobs", res.BlobsWritten)
	return res, nil
}

// RequestClear authorises the next save to store an empty session. Call it
// right before the change that legitimately empties the session. The
// request is used up by the next save whatever it writes. Before sync is
// active it is refused with domain.ErrNotReady.
func (c *Coordinator) RequestClear() error {
	if !c.active() {
		return domain.ErrNotReady
	}
	c.guard.RequestClear()
	return nil
}

// NewBatch empties the session on purpose and saves that at once. The clear
// request, the reset and the save run under the sync lock, so no other
// write can use up the request in between.
func (c *Coordinator) NewBatch(ctx context.Context, reset func()) (SyncResult, error) {
	if !c.active() {
		return SyncResult{}, domain.ErrNotReady
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.guard.RequestClear()
	reset()
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
	return c.syncLocked(ctx, true)
}

// ForceSave writes the current state immediately as one atomic unit,
// dropping any pending debounced sync. Errors are returned to the caller.
func (c *Coordinator) ForceSave(ctx context.Context) (SyncResult, error) {
	if !c.active() {
		return SyncResult{}, domain.ErrNotReady
	}
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
	return c.sync(ctx, true)
}

// Flush runs a pending debounced sync now instead of waiting.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = false
	c.mu.Unlock()

	if !pending {
		return nil
	}
	_, err := c.sync(ctx, false)
	return err
}

// ClearSessionData deletes the stored copy of the current session.
func (c *Coordinator) ClearSessionData(ctx context.Context) error {
	snap := c.container.Snapshot()
	if snap.SessionID == "" {
		return nil
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if err := c.syncer.ClearSessionData(ctx, snap.SessionID); err != nil {
		return err
	}
	c.guard.Reset()
	return nil
}

// Close stops mirroring changes and writes anything still pending.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	cancel, unsubscribe := c.cancelRestore, c.unsubscribe
	c.cancelRestore, c.unsubscribe = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	err := c.Flush(ctx)
	if errors.Is(err, domain.ErrWipeBlocked) {
		return nil
	}
	return err
}

func (c *Coordinator) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSyncActive
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready is closed once hydration has finished and sync is active.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// Err returns the hydration error, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coordinator) HydrationReport() HydrationReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}
