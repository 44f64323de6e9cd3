package service_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/msomdec/tagbatch/internal/domain"
	"github.com/msomdec/tagbatch/internal/service"
)

func TestSyncService_SaveAndHydrateRoundTrip(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	hydrator := service.NewHydrationService(db)
	ctx := context.Background()

	img := testImage("img-1", []byte("jpeg bytes"))
	img.AITitle = "Blue mug"
	img.AITags = []string{"mug", "blue"}
	img.AIConfidence = 0.82
	img.UserTags = []string{"handmade"}
	img.Status = domain.ImageStatusAnalyzed
	groups := []domain.Group{
		{ID: "g1", Title: "Mugs", Description: "Stoneware", Tags: []string{"kitchen"}, Verified: true,
			Images: []domain.Image{img, testImage("img-2", []byte("more bytes"))}},
		{ID: "g2", Title: "Plates", Images: []domain.Image{testImage("img-3", []byte("plate"))}},
	}

	res, err := syncer.SaveBatch(ctx, "s1", domain.MarketplaceEtsy, groups)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.SavedGroups != 2 || res.SavedImages != 3 || res.BlobsWritten != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, err := hydrator.Hydrate(ctx, "s1")
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if !got.Found || got.Marketplace != domain.MarketplaceEtsy {
		t.Fatalf("unexpected hydrate result: %+v", got)
	}
	if got.Restored != 3 || got.Dropped != 0 {
		t.Fatalf("expected 3 restored 0 dropped, got %d/%d", got.Restored, got.Dropped)
	}
	if len(got.Groups) != 2 || got.Groups[0].ID != "g1" || got.Groups[1].ID != "g2" {
		t.Fatalf("expected groups in saved order, got %+v", got.Groups)
	}

	g1 := got.Groups[0]
	if g1.Title != "Mugs" || g1.Description != "Stoneware" || !g1.Verified || !slices.Equal(g1.Tags, []string{"kitchen"}) {
		t.Fatalf("group metadata not restored: %+v", g1)
	}
	if ids := imageIDs(got.Groups); !slices.Equal(ids, []string{"img-1", "img-2", "img-3"}) {
		t.Fatalf("unexpected image order %v", ids)
	}

	restored := g1.Images[0]
	if restored.AITitle != "Blue mug" || restored.AIConfidence != 0.82 || restored.Status != domain.ImageStatusAnalyzed {
		t.Fatalf("image metadata not restored: %+v", restored)
	}
	if !slices.Equal(restored.AITags, []string{"mug", "blue"}) || !slices.Equal(restored.UserTags, []string{"handmade"}) {
		t.Fatalf("image tags not restored: %+v", restored)
	}
	if data := readAll(t, restored.File); string(data) != "jpeg bytes" {
		t.Fatalf("expected original bytes, got %q", data)
	}
	if restored.File.ContentType() != "image/jpeg" {
		t.Fatalf("unexpected content type %q", restored.File.ContentType())
	}
}

func TestSyncService_BlobWrittenOnce(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	f := newCountingFile("a.jpg", []byte("bytes"))
	groups := []domain.Group{{ID: "g1", Images: []domain.Image{{ID: "img-1", Filename: "a.jpg", File: f}}}}

	if _, err := syncer.SaveBatch(ctx, "s1", domain.MarketplaceGeneric, groups); err != nil {
		t.Fatalf("first SaveBatch: %v", err)
	}
	first, err := db.Blobs().Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get blob: %v", err)
	}

	// Metadata edits resync the record but never rewrite the bytes.
	groups[0].Images[0].UserTitle = "Edited"
	res, err := syncer.SaveBatch(ctx, "s1", domain.MarketplaceGeneric, groups)
	if err != nil {
		t.Fatalf("second SaveBatch: %v", err)
	}
	if res.BlobsWritten != 0 {
		t.Fatalf("expected no blob writes, got %d", res.BlobsWritten)
	}
	if n := f.opens.Load(); n != 1 {
		t.Fatalf("expected file read once, got %d", n)
	}

	second, err := db.Blobs().Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get blob: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("blob rewritten: created_at %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	rec, err := db.Images().Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get image: %v", err)
	}
	if rec.UserTitle != "Edited" {
		t.Fatalf("expected metadata update, got %q", rec.UserTitle)
	}
}

func TestSyncService_RemovesStaleRecords(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	groups := []domain.Group{
		{ID: "g1", Images: []domain.Image{testImage("img-1", []byte("1")), testImage("img-2", []byte("2"))}},
		{ID: "g2", Images: []domain.Image{testImage("img-3", []byte("3"))}},
	}
	if _, err := syncer.SaveBatch(ctx, "s1", "", groups); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	// Drop g2 entirely and img-2 from g1.
	groups = []domain.Group{{ID: "g1", Images: groups[0].Images[:1]}}
	res, err := syncer.SaveBatch(ctx, "s1", "", groups)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.DeletedGroups != 1 || res.DeletedImages != 2 {
		t.Fatalf("expected 1 group and 2 images deleted, got %+v", res)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := domain.StoreCounts{Sessions: 1, Groups: 1, Images: 1, Blobs: 1, BlobBytes: 1}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
}

func TestSyncService_MoveKeepsSingleRecord(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	img := testImage("img-1", []byte("bytes"))
	groups := []domain.Group{
		{ID: "g1", Images: []domain.Image{img}},
		{ID: "g2"},
	}
	if _, err := syncer.SaveSessionAtomic(ctx, "s1", "", groups); err != nil {
		t.Fatalf("SaveSessionAtomic: %v", err)
	}

	groups[0].Images, groups[1].Images = nil, []domain.Image{img}
	if _, err := syncer.SaveSessionAtomic(ctx, "s1", "", groups); err != nil {
		t.Fatalf("SaveSessionAtomic after move: %v", err)
	}

	recs, err := db.Images().ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(recs) != 1 || recs[0].GroupID != "g2" {
		t.Fatalf("expected one record in g2, got %+v", recs)
	}
	if ok, _ := db.Blobs().Exists(ctx, "img-1"); !ok {
		t.Fatal("expected blob to survive the move")
	}
}

func TestSyncService_SkipsRecordsWithoutID(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	groups := []domain.Group{
		{ID: "", Images: []domain.Image{testImage("lost", []byte("x"))}},
		{ID: "g1", Images: []domain.Image{testImage("", []byte("y")), testImage("img-1", []byte("z"))}},
	}
	res, err := syncer.SyncGroups(ctx, "s1", groups)
	if err != nil {
		t.Fatalf("SyncGroups: %v", err)
	}
	if res.SavedGroups != 1 || res.SavedImages != 1 || res.SkippedGroups != 1 || res.SkippedImages != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ok, _ := db.Sessions().Exists(ctx, "s1"); !ok {
		t.Fatal("expected SyncGroups to create the session record")
	}
}

func TestSyncService_IncrementalSkipsFailedImage(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	broken := newCountingFile("broken.jpg", nil)
	broken.fail = true
	groups := []domain.Group{{ID: "g1", Images: []domain.Image{
		{ID: "bad", Filename: "broken.jpg", File: broken},
		testImage("good", []byte("ok")),
	}}}

	res, err := syncer.SaveBatch(ctx, "s1", "", groups)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.SavedImages != 1 || res.SkippedImages != 1 {
		t.Fatalf("expected 1 saved 1 skipped, got %+v", res)
	}
	if ok, _ := db.Blobs().Exists(ctx, "good"); !ok {
		t.Fatal("expected good image stored")
	}
}

func TestSyncService_AtomicSaveRollsBack(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	broken := newCountingFile("broken.jpg", nil)
	broken.fail = true
	groups := []domain.Group{{ID: "g1", Images: []domain.Image{
		testImage("good", []byte("ok")),
		{ID: "bad", Filename: "broken.jpg", File: broken},
	}}}

	if _, err := syncer.SaveSessionAtomic(ctx, "s1", "", groups); err == nil {
		t.Fatal("expected atomic save to fail")
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts != (domain.StoreCounts{}) {
		t.Fatalf("expected nothing stored after rollback, got %+v", counts)
	}
}

func TestSyncService_RejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	if _, err := syncer.SaveBatch(ctx, "", "", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty session id, got %v", err)
	}
	if _, err := syncer.SaveBatch(ctx, "s1", "myspace", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown marketplace, got %v", err)
	}
}

func TestSyncService_SniffsMissingContentType(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	img := domain.Image{ID: "img-1", Filename: "upload", File: domain.NewBytesFile("upload", "", png)}
	if _, err := syncer.SaveBatch(ctx, "s1", "", []domain.Group{{ID: "g1", Images: []domain.Image{img}}}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	blob, err := db.Blobs().Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get blob: %v", err)
	}
	if blob.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %q", blob.ContentType)
	}
}

func TestSyncService_StoresOriginals(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	hydrator := service.NewHydrationService(db)
	ctx := context.Background()

	img := testImage("img-1", []byte("small"))
	img.Original = domain.NewBytesFile("img-1.tiff", "image/tiff", []byte("full resolution"))
	res, err := syncer.SaveBatch(ctx, "s1", "", []domain.Group{{ID: "g1", Images: []domain.Image{img}}})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if res.BlobsWritten != 2 {
		t.Fatalf("expected blob and original written, got %d", res.BlobsWritten)
	}

	orig, err := hydrator.Original(ctx, "img-1")
	if err != nil {
		t.Fatalf("Original: %v", err)
	}
	if data := readAll(t, orig); string(data) != "full resolution" {
		t.Fatalf("unexpected original bytes %q", data)
	}
}

func TestSyncService_DeleteImageAndGroup(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	ctx := context.Background()

	groups := []domain.Group{
		{ID: "g1", Images: []domain.Image{testImage("img-1", []byte("1"))}},
		{ID: "g2", Images: []domain.Image{testImage("img-2", []byte("2")), testImage("img-3", []byte("3"))}},
	}
	if _, err := syncer.SaveBatch(ctx, "s1", "", groups); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	if err := syncer.DeleteImage(ctx, "img-1"); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if err := syncer.DeleteImage(ctx, "img-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := syncer.DeleteGroup(ctx, "g2"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if err := syncer.DeleteGroup(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing group, got %v", err)
	}

	counts, err := syncer.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Images != 0 || counts.Blobs != 0 || counts.Groups != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestSyncService_ClearSessionData(t *testing.T) {
	db := newTestDB(t)
	syncer := service.NewSyncService(db)
	hydrator := service.NewHydrationService(db)
	ctx := context.Background()

	groups := []domain.Group{{ID: "g1", Images: []domain.Image{testImage("img-1", []byte("1"))}}}
	if _, err := syncer.SaveBatch(ctx, "s1", "", groups); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := syncer.ClearSessionData(ctx, "s1"); err != nil {
		t.Fatalf("ClearSessionData: %v", err)
	}

	exists, err := hydrator.SessionExists(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionExists: %v", err)
	}
	if exists {
		t.Fatal("expected session gone")
	}
}
