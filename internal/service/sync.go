package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/msomdec/tagbatch/internal/domain"
)

// SyncResult reports what one write pass did.
type SyncResult struct {
	SavedGroups   int `json:"saved_groups"`
	SavedImages   int `json:"saved_images"`
	SkippedGroups int `json:"skipped_groups"`
	SkippedImages int `json:"skipped_images"`
	DeletedGroups int `json:"deleted_groups"`
	DeletedImages int `json:"deleted_images"`
	BlobsWritten  int `json:"blobs_written"`
}

// SyncService makes the local store match an in-memory session.
type SyncService struct {
	store domain.Store
}

// NewSyncService creates a new SyncService.
func NewSyncService(store domain.Store) *SyncService {
	return &SyncService{store: store}
}

// SyncGroups writes the current groups of a session, deleting stored
// groups and images that are no longer present. A failure on one record
// is logged and that record skipped; the rest of the pass still commits.
func (s *SyncService) SyncGroups(ctx context.Context, sessionID string, groups []domain.Group) (SyncResult, error) {
	if sessionID == "" {
		return SyncResult{}, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}

	var res SyncResult
	err := s.store.InTx(ctx, func(tx domain.Stores) error {
		// Groups must point at an existing session record.
		exists, err := tx.Sessions().Exists(ctx, sessionID)
		if err != nil {
			return err
		}
		if !exists {
			if err := tx.Sessions().Put(ctx, &domain.Session{ID: sessionID}); err != nil {
				return err
			}
		}
		res, err = syncPass(ctx, tx, sessionID, groups, false)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("sync groups: %w", err)
	}
	return res, nil
}

// SaveBatch is SyncGroups followed by a session record update, so that
// marketplace changes are mirrored too. Used by the debounced path.
func (s *SyncService) SaveBatch(ctx context.Context, sessionID string, marketplace domain.Marketplace, groups []domain.Group) (SyncResult, error) {
	return s.save(ctx, sessionID, marketplace, groups, false)
}

// SaveSessionAtomic writes the whole session as one unit. Unlike the
// incremental path, any storage failure rolls back the entire write and is
// returned to the caller.
func (s *SyncService) SaveSessionAtomic(ctx context.Context, sessionID string, marketplace domain.Marketplace, groups []domain.Group) (SyncResult, error) {
	return s.save(ctx, sessionID, marketplace, groups, true)
}

func (s *SyncService) save(ctx context.Context, sessionID string, marketplace domain.Marketplace, groups []domain.Group, strict bool) (SyncResult, error) {
	if sessionID == "" {
		return SyncResult{}, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if marketplace != "" && !marketplace.Valid() {
		return SyncResult{}, fmt.Errorf("%w: unknown marketplace %q", domain.ErrInvalidInput, marketplace)
	}

	var res SyncResult
	err := s.store.InTx(ctx, func(tx domain.Stores) error {
		var err error
		if res, err = syncPass(ctx, tx, sessionID, groups, strict); err != nil {
			return err
		}
		return tx.Sessions().Put(ctx, &domain.Session{ID: sessionID, Marketplace: marketplace})
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

// syncPass deletes stale records before upserting current ones, so an
// image that moved between groups never exists twice.
func syncPass(ctx context.Context, tx domain.Stores, sessionID string, groups []domain.Group, strict bool) (SyncResult, error) {
	var res SyncResult
	log := slog.With("session_id", sessionID)

	storedGroups, err := tx.Groups().ListBySession(ctx, sessionID)
	if err != nil {
		return res, err
	}
	storedImages, err := tx.Images().ListBySession(ctx, sessionID)
	if err != nil {
		return res, err
	}

	groupIDs := make(map[string]bool, len(groups))
	imageIDs := make(map[string]bool)
	for _, g := range groups {
		groupIDs[g.ID] = true
		for _, img := range g.Images {
			imageIDs[img.ID] = true
		}
	}

	// fail decides whether a per-record error aborts the pass.
	fail := func(err error, args ...any) error {
		if strict {
			return err
		}
		log.Error("sync record failed", append(args, "error", err)...)
		return nil
	}

	for _, img := range storedImages {
		if imageIDs[img.ID] {
			continue
		}
		if err := deleteImageRecords(ctx, tx, img.ID); err != nil {
			if err := fail(err, "image_id", img.ID, "op", "delete"); err != nil {
				return res, err
			}
			continue
		}
		res.DeletedImages++
	}
	for _, g := range storedGroups {
		if groupIDs[g.ID] {
			continue
		}
		if err := tx.Groups().Delete(ctx, g.ID); err != nil {
			if err := fail(err, "group_id", g.ID, "op", "delete"); err != nil {
				return res, err
			}
			continue
		}
		res.DeletedGroups++
	}

	for i, g := range groups {
		if g.ID == "" {
			log.Error("skipping group without id", "ordinal", i, "title", g.Title, "images", len(g.Images))
			res.SkippedGroups++
			res.SkippedImages += len(g.Images)
			continue
		}

		rec := &domain.GroupRecord{
			ID:          g.ID,
			SessionID:   sessionID,
			Ordinal:     i,
			Title:       g.Title,
			Description: g.Description,
			Tags:        g.Tags,
			Verified:    g.Verified,
		}
		if err := tx.Groups().Put(ctx, rec); err != nil {
			if err := fail(err, "group_id", g.ID, "op", "put"); err != nil {
				return res, err
			}
			res.SkippedGroups++
		} else {
			res.SavedGroups++
		}

		for j, img := range g.Images {
			if img.ID == "" {
				log.Error("skipping image without id", "group_id", g.ID, "position", j, "filename", img.Filename)
				res.SkippedImages++
				continue
			}
			written, err := syncImage(ctx, tx, sessionID, g.ID, j, img)
			if err != nil {
				if err := fail(err, "group_id", g.ID, "image_id", img.ID, "op", "put"); err != nil {
					return res, err
				}
				res.SkippedImages++
				continue
			}
			res.SavedImages++
			res.BlobsWritten += written
		}
	}

	return res, nil
}

// syncImage upserts one image record and stores its bytes the first time
// they are seen. It returns the number of blobs written.
func syncImage(ctx context.Context, tx domain.Stores, sessionID, groupID string, position int, img domain.Image) (int, error) {
	rec := &domain.ImageRecord{
		ID:           img.ID,
		SessionID:    sessionID,
		GroupID:      groupID,
		Position:     position,
		Filename:     img.Filename,
		Slug:         img.Slug,
		Preview:      img.Preview,
		AITitle:      img.AITitle,
		AITags:       img.AITags,
		AIConfidence: img.AIConfidence,
		UserTitle:    img.UserTitle,
		UserTags:     img.UserTags,
		Status:       img.Status,
		Error:        img.Error,
	}
	if err := tx.Images().Put(ctx, rec); err != nil {
		return 0, err
	}

	written := 0
	for _, target := range []struct {
		file  domain.File
		store domain.BlobStore
	}{
		{img.File, tx.Blobs()},
		{img.Original, tx.Originals()},
	} {
		ok, err := writeOnce(ctx, target.store, img.ID, target.file)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// writeOnce stores f under imageID unless a blob already exists.
func writeOnce(ctx context.Context, store domain.BlobStore, imageID string, f domain.File) (bool, error) {
	if f == nil {
		return false, nil
	}
	exists, err := store.Exists(ctx, imageID)
	if err != nil || exists {
		return false, err
	}

	data, contentType, err := readFile(f)
	if err != nil {
		return false, fmt.Errorf("read file %s: %w", f.Name(), err)
	}
	blob := &domain.Blob{
		ImageID:     imageID,
		ContentType: contentType,
		Data:        data,
	}
	if err := store.Put(ctx, blob); err != nil {
		return false, err
	}
	return true, nil
}

func readFile(f domain.File) ([]byte, string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	contentType := f.ContentType()
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return data, contentType, nil
}

func deleteImageRecords(ctx context.Context, tx domain.Stores, imageID string) error {
	if err := tx.Originals().Delete(ctx, imageID); err != nil {
		return err
	}
	if err := tx.Blobs().Delete(ctx, imageID); err != nil {
		return err
	}
	return tx.Images().Delete(ctx, imageID)
}

// ClearSessionData removes everything stored for one session.
func (s *SyncService) ClearSessionData(ctx context.Context, sessionID string) error {
	if err := s.store.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ClearAllData wipes the local store.
func (s *SyncService) ClearAllData(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}

// DeleteImage removes one image and its stored bytes.
func (s *SyncService) DeleteImage(ctx context.Context, imageID string) error {
	if _, err := s.store.Images().Get(ctx, imageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("get image: %w", err)
	}
	if err := s.store.DeleteImage(ctx, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// DeleteGroup removes one group with all of its images.
func (s *SyncService) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.store.Groups().Get(ctx, groupID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("get group: %w", err)
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// Counts returns the number of records in each store.
func (s *SyncService) Counts(ctx context.Context) (domain.StoreCounts, error) {
	return s.store.Counts(ctx)
}
