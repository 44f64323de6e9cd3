// Package workspace holds the in-memory editing session: the groups and
// images the user is working on, with change notifications for anything
// that mirrors it.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/msomdec/tagbatch/internal/domain"
)

// prefs is the lightweight state restored before hydration.
type prefs struct {
	SessionID   string             `json:"session_id"`
	Marketplace domain.Marketplace `json:"marketplace"`
}

// Workspace is the in-memory session container. It is safe for
// concurrent use; listeners run outside the lock.
type Workspace struct {
	prefsPath string

	mu          sync.Mutex
	sessionID   string
	marketplace domain.Marketplace
	groups      []domain.Group
	restored    bool
	nextID      int
	onChange    map[int]func()
	onRestored  map[int]func()
}

// New creates an empty, not yet restored workspace. prefsPath is where the
// session id and marketplace are kept between runs; empty disables that.
func New(prefsPath string) *Workspace {
	return &Workspace{
		prefsPath:   prefsPath,
		marketplace: domain.MarketplaceGeneric,
		onChange:    make(map[int]func()),
		onRestored:  make(map[int]func()),
	}
}

// Restore loads the session id and marketplace from the prefs file,
// starting a new session if there is none, then signals OnRestored
// listeners. Only the first call has any effect.
func (w *Workspace) Restore() error {
	p, err := w.readPrefs()
	if err != nil {
		return err
	}
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	if !p.Marketplace.Valid() {
		p.Marketplace = domain.MarketplaceGeneric
	}
	return w.MarkRestored(p.SessionID, p.Marketplace)
}

// MarkRestored finishes the restore phase with the given values.
func (w *Workspace) MarkRestored(sessionID string, marketplace domain.Marketplace) error {
	w.mu.Lock()
	if w.restored {
		w.mu.Unlock()
		return nil
	}
	w.sessionID = sessionID
	w.marketplace = marketplace
	w.restored = true
	listeners := collect(w.onRestored)
	w.onRestored = make(map[int]func())
	w.mu.Unlock()

	if err := w.writePrefs(); err != nil {
		return err
	}
	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (w *Workspace) readPrefs() (prefs, error) {
	var p prefs
	if w.prefsPath == "" {
		return p, nil
	}
	data, err := os.ReadFile(w.prefsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("ignoring unreadable prefs file", "path", w.prefsPath, "error", err)
		return prefs{}, nil
	}
	return p, nil
}

func (w *Workspace) writePrefs() error {
	if w.prefsPath == "" {
		return nil
	}
	w.mu.Lock()
	p := prefs{SessionID: w.sessionID, Marketplace: w.marketplace}
	w.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.WriteFile(w.prefsPath, data, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func (w *Workspace) Restored() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restored
}

// OnRestored registers fn to run once when the restore phase finishes.
func (w *Workspace) OnRestored(fn func()) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.register(w.onRestored, fn)
	return func() { w.remove(w.onRestored, id) }
}

// OnChange registers fn to run after every mutation.
func (w *Workspace) OnChange(fn func()) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.register(w.onChange, fn)
	return func() { w.remove(w.onChange, id) }
}

func (w *Workspace) register(m map[int]func(), fn func()) int {
	w.nextID++
	m[w.nextID] = fn
	return w.nextID
}

func (w *Workspace) remove(m map[int]func(), id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(m, id)
}

func collect(m map[int]func()) []func() {
	fns := make([]func(), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

// Snapshot returns a copy of the current session safe to read while the
// workspace keeps changing.
func (w *Workspace) Snapshot() domain.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	groups := make([]domain.Group, len(w.groups))
	for i, g := range w.groups {
		g.Images = slices.Clone(g.Images)
		groups[i] = g
	}
	return domain.Snapshot{SessionID: w.sessionID, Marketplace: w.marketplace, Groups: groups}
}

// Load replaces the groups with ones rebuilt from storage.
func (w *Workspace) Load(marketplace domain.Marketplace, groups []domain.Group) {
	w.mutate(func() error {
		if marketplace.Valid() {
			w.marketplace = marketplace
		}
		w.groups = groups
		return nil
	})
}

// mutate applies fn under the lock and notifies listeners if it succeeded.
func (w *Workspace) mutate(fn func() error) error {
	w.mu.Lock()
	if err := fn(); err != nil {
		w.mu.Unlock()
		return err
	}
	listeners := collect(w.onChange)
	w.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	return nil
}

// AddFiles puts uploaded files into the ungrouped pool and returns the new
// image ids.
func (w *Workspace) AddFiles(files ...domain.File) ([]string, error) {
	images := make([]domain.Image, 0, len(files))
	for _, f := range files {
		img, err := newImage(f)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	err := w.mutate(func() error {
		i := w.groupIndex(domain.UngroupedID)
		if i < 0 {
			w.groups = append([]domain.Group{{ID: domain.UngroupedID, Title: "Ungrouped"}}, w.groups...)
			i = 0
		}
		w.groups[i].Images = append(w.groups[i].Images, images...)
		return nil
	})
	return ids, err
}

func newImage(f domain.File) (domain.Image, error) {
	rc, err := f.Open()
	if err != nil {
		return domain.Image{}, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return domain.Image{}, fmt.Errorf("read %s: %w", f.Name(), err)
	}

	preview, err := Preview(data, PreviewSize)
	if err != nil {
		slog.Debug("no preview for upload", "filename", f.Name(), "error", err)
	}
	return domain.Image{
		ID:       uuid.NewString(),
		Filename: f.Name(),
		Slug:     Slugify(f.Name()),
		Preview:  preview,
		Status:   domain.ImageStatusUploaded,
		File:     f,
	}, nil
}

// CreateGroup appends an empty group and returns its id.
func (w *Workspace) CreateGroup(title string) string {
	id := uuid.NewString()
	w.mutate(func() error {
		w.groups = append(w.groups, domain.Group{ID: id, Title: title})
		return nil
	})
	return id
}

// UpdateGroup edits the shared metadata of a group. fn must not touch
// the group's images.
func (w *Workspace) UpdateGroup(id string, fn func(g *domain.Group)) error {
	return w.mutate(func() error {
		i := w.groupIndex(id)
		if i < 0 {
			return fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
		}
		images := w.groups[i].Images
		fn(&w.groups[i])
		w.groups[i].Images = images
		return nil
	})
}

// MoveImage reassigns an image to another group, keeping all of its data.
func (w *Workspace) MoveImage(imageID, toGroupID string) error {
	return w.mutate(func() error {
		to := w.groupIndex(toGroupID)
		if to < 0 {
			return fmt.Errorf("group %s: %w", toGroupID, domain.ErrNotFound)
		}
		from, pos := w.imageIndex(imageID)
		if from < 0 {
			return fmt.Errorf("image %s: %w", imageID, domain.ErrNotFound)
		}
		if from == to {
			return nil
		}
		img := w.groups[from].Images[pos]
		w.groups[from].Images = slices.Delete(slices.Clone(w.groups[from].Images), pos, pos+1)
		w.groups[to].Images = append(slices.Clone(w.groups[to].Images), img)
		return nil
	})
}

// ReorderGroups puts groups in the given order. ids must name every group.
func (w *Workspace) ReorderGroups(ids []string) error {
	return w.mutate(func() error {
		if len(ids) != len(w.groups) {
			return fmt.Errorf("%w: expected %d group ids, got %d", domain.ErrInvalidInput, len(w.groups), len(ids))
		}
		ordered := make([]domain.Group, 0, len(ids))
		for _, id := range ids {
			i := w.groupIndex(id)
			if i < 0 {
				return fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
			}
			ordered = append(ordered, w.groups[i])
		}
		w.groups = ordered
		return nil
	})
}

func (w *Workspace) RemoveImage(imageID string) error {
	return w.mutate(func() error {
		g, pos := w.imageIndex(imageID)
		if g < 0 {
			return fmt.Errorf("image %s: %w", imageID, domain.ErrNotFound)
		}
		w.groups[g].Images = slices.Delete(slices.Clone(w.groups[g].Images), pos, pos+1)
		return nil
	})
}

// RemoveGroup drops a group along with its images.
func (w *Workspace) RemoveGroup(groupID string) error {
	return w.mutate(func() error {
		i := w.groupIndex(groupID)
		if i < 0 {
			return fmt.Errorf("group %s: %w", groupID, domain.ErrNotFound)
		}
		w.groups = slices.Delete(slices.Clone(w.groups), i, i+1)
		return nil
	})
}

// SetImageAnalysis stores AI-derived metadata for an image.
func (w *Workspace) SetImageAnalysis(imageID, title string, tags []string, confidence float64) error {
	return w.updateImage(imageID, func(img *domain.Image) {
		img.AITitle = title
		img.AITags = tags
		img.AIConfidence = confidence
		img.Status = domain.ImageStatusAnalyzed
		img.Error = ""
	})
}

// SetImageError marks analysis of an image as failed.
func (w *Workspace) SetImageError(imageID, message string) error {
	return w.updateImage(imageID, func(img *domain.Image) {
		img.Status = domain.ImageStatusError
		img.Error = message
	})
}

// SetImageEdits stores user overrides of the AI title and tags.
func (w *Workspace) SetImageEdits(imageID, title string, tags []string) error {
	return w.updateImage(imageID, func(img *domain.Image) {
		img.UserTitle = title
		img.UserTags = tags
	})
}

func (w *Workspace) updateImage(imageID string, fn func(img *domain.Image)) error {
	return w.mutate(func() error {
		g, pos := w.imageIndex(imageID)
		if g < 0 {
			return fmt.Errorf("image %s: %w", imageID, domain.ErrNotFound)
		}
		images := slices.Clone(w.groups[g].Images)
		fn(&images[pos])
		w.groups[g].Images = images
		return nil
	})
}

func (w *Workspace) SetMarketplace(m domain.Marketplace) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown marketplace %q", domain.ErrInvalidInput, m)
	}
	if err := w.mutate(func() error {
		w.marketplace = m
		return nil
	}); err != nil {
		return err
	}
	return w.writePrefs()
}

// Reset empties the session to start a new batch. The session id is kept.
func (w *Workspace) Reset() {
	w.mutate(func() error {
		w.groups = nil
		return nil
	})
}

func (w *Workspace) groupIndex(id string) int {
	for i, g := range w.groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (w *Workspace) imageIndex(imageID string) (group, pos int) {
	for i, g := range w.groups {
		for j, img := range g.Images {
			if img.ID == imageID {
				return i, j
			}
		}
	}
	return -1, -1
}
