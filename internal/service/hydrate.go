package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/msomdec/tagbatch/internal/domain"
)

// HydrateResult is a session rebuilt from the local store. Found is false
// when there was nothing stored for the requested id.
type HydrateResult struct {
	Found       bool
	SessionID   string
	Marketplace domain.Marketplace
	Groups      []domain.Group
	Restored    int // images restored with usable bytes
	Dropped     int // images dropped because their blob was missing or damaged
}

// HydrationService rebuilds in-memory sessions from the local store.
type HydrationService struct {
	store domain.Store
}

// NewHydrationService creates a new HydrationService.
func NewHydrationService(store domain.Store) *HydrationService {
	return &HydrationService{store: store}
}

// SessionExists reports whether a session record is stored for id.
func (h *HydrationService) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return h.store.Sessions().Exists(ctx, sessionID)
}

// Hydrate joins session, groups and images and rebuilds a File for every
// image from its blob. Images whose blob is gone are left out and counted
// in Dropped; that is a degraded result, not an error. Any lookup failure
// aborts the whole hydration.
func (h *HydrationService) Hydrate(ctx context.Context, sessionID string) (*HydrateResult, error) {
	session, err := h.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &HydrateResult{SessionID: sessionID}, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	groupRecs, err := h.store.Groups().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	imageRecs, err := h.store.Images().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	byGroup := make(map[string][]domain.ImageRecord, len(groupRecs))
	var groupOrder []string // group ids in first-seen image order
	for _, img := range imageRecs {
		if _, seen := byGroup[img.GroupID]; !seen {
			groupOrder = append(groupOrder, img.GroupID)
		}
		byGroup[img.GroupID] = append(byGroup[img.GroupID], img)
	}

	res := &HydrateResult{
		Found:       true,
		SessionID:   sessionID,
		Marketplace: session.Marketplace,
		Groups:      make([]domain.Group, 0, len(groupRecs)),
	}

	for _, rec := range groupRecs {
		g := domain.Group{
			ID:          rec.ID,
			Title:       rec.Title,
			Description: rec.Description,
			Tags:        rec.Tags,
			Verified:    rec.Verified,
		}
		images, err := h.restoreImages(ctx, byGroup[rec.ID], res)
		if err != nil {
			return nil, err
		}
		g.Images = images
		res.Groups = append(res.Groups, g)
		delete(byGroup, rec.ID)
	}

	// Images whose group record is missing land in the ungrouped pool
	// rather than disappearing.
	if len(byGroup) > 0 {
		pool := ungroupedIndex(res)
		for _, groupID := range groupOrder {
			recs, ok := byGroup[groupID]
			if !ok {
				continue
			}
			slog.Warn("image group missing, moving images to ungrouped pool",
				"session_id", sessionID, "group_id", groupID, "images", len(recs))
			images, err := h.restoreImages(ctx, recs, res)
			if err != nil {
				return nil, err
			}
			res.Groups[pool].Images = append(res.Groups[pool].Images, images...)
		}
	}

	if res.Dropped > 0 {
		slog.Warn("session partially restored",
			"session_id", sessionID, "restored", res.Restored, "dropped", res.Dropped)
	}
	return res, nil
}

func (h *HydrationService) restoreImages(ctx context.Context, recs []domain.ImageRecord, res *HydrateResult) ([]domain.Image, error) {
	images := make([]domain.Image, 0, len(recs))
	for _, rec := range recs {
		blob, err := h.store.Blobs().Get(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				res.Dropped++
				continue
			}
			return nil, fmt.Errorf("get blob %s: %w", rec.ID, err)
		}
		if !blob.Intact() {
			slog.Warn("blob checksum mismatch", "image_id", rec.ID, "size", blob.Size)
			res.Dropped++
			continue
		}

		images = append(images, domain.Image{
			ID:           rec.ID,
			Filename:     rec.Filename,
			Slug:         rec.Slug,
			Preview:      rec.Preview,
			AITitle:      rec.AITitle,
			AITags:       rec.AITags,
			AIConfidence: rec.AIConfidence,
			UserTitle:    rec.UserTitle,
			UserTags:     rec.UserTags,
			Status:       rec.Status,
			Error:        rec.Error,
			File:         domain.NewBytesFile(rec.Filename, blob.ContentType, blob.Data),
		})
		res.Restored++
	}
	return images, nil
}

// ungroupedIndex returns the index of the ungrouped pool, adding it first
// if the session has none.
func ungroupedIndex(res *HydrateResult) int {
	for i, g := range res.Groups {
		if g.ID == domain.UngroupedID {
			return i
		}
	}
	res.Groups = append([]domain.Group{{ID: domain.UngroupedID}}, res.Groups...)
	return 0
}

// Original returns the full-resolution source kept for an image, for
// high-resolution export.
func (h *HydrationService) Original(ctx context.Context, imageID string) (domain.File, error) {
	rec, err := h.store.Images().Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	blob, err := h.store.Originals().Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if !blob.Intact() {
		return nil, fmt.Errorf("%w: original for %s is damaged", domain.ErrNotFound, imageID)
	}
	return domain.NewBytesFile(rec.Filename, blob.ContentType, blob.Data), nil
}
