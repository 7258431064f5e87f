package catalogue_test

import (
	"context"
	"errors"
	"testing"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/services"
	"grantfeed/internal/testsupport"
)

func TestOpenBootstrapsAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := catalogue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.InsertReleaseIfAbsent(context.Background(), "R1.tar", "https://example.test/R1.tar"); err != nil {
		t.Fatalf("InsertReleaseIfAbsent failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	release, err := reopened.ReleaseByName(context.Background(), "R1.tar")
	if err != nil {
		t.Fatalf("ReleaseByName failed: %v", err)
	}
	if release == nil || release.Status != catalogue.ReleaseDiscovered {
		t.Fatalf("expected discovered release after reopen, got %#v", release)
	}
	if reopened.Path() != cfg.CatalogueDBPath() {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestInsertReleaseIfAbsentIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	added, err := store.InsertReleaseIfAbsent(ctx, "R1.tar", "https://example.test/R1.tar")
	if err != nil || !added {
		t.Fatalf("first insert: added=%v err=%v", added, err)
	}
	release := testsupport.NewRelease(t, store, "R1.tar", "https://example.test/R1.tar")
	testsupport.AdvanceTo(t, store, release, catalogue.ReleaseDownloaded)

	added, err = store.InsertReleaseIfAbsent(ctx, "R1.tar", "https://mirror.test/R1.tar")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if added {
		t.Fatal("expected duplicate name to be ignored")
	}

	again, err := store.ReleaseByName(ctx, "R1.tar")
	if err != nil {
		t.Fatalf("ReleaseByName failed: %v", err)
	}
	if again.Status != catalogue.ReleaseDownloaded || again.URL != "https://example.test/R1.tar" {
		t.Fatalf("existing row was modified: %#v", again)
	}

	releases, err := store.ListReleases(ctx)
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected 1 release, got %d", len(releases))
	}
}

func TestAdvanceReleaseTransitions(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	release := testsupport.NewRelease(t, store, "R1.tar", "https://example.test/R1.tar")

	if _, err := store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseExtracted); !errors.Is(err, catalogue.ErrInvalidTransition) {
		t.Fatalf("expected skip to be rejected, got %v", err)
	}

	same, err := store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseDiscovered)
	if err != nil {
		t.Fatalf("same-state advance should be a no-op, got %v", err)
	}
	if same.Status != catalogue.ReleaseDiscovered {
		t.Fatalf("unexpected status %s", same.Status)
	}

	downloaded, err := store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseDownloaded)
	if err != nil {
		t.Fatalf("advance to downloaded: %v", err)
	}
	if !downloaded.Downloaded() || downloaded.Extracted() {
		t.Fatalf("unexpected helper results for %#v", downloaded)
	}

	if _, err := store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseDiscovered); !errors.Is(err, catalogue.ErrInvalidTransition) {
		t.Fatalf("expected backward move to be rejected, got %v", err)
	}

	extracted, err := store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseExtracted)
	if err != nil {
		t.Fatalf("advance to extracted: %v", err)
	}
	if !extracted.Downloaded() || !extracted.Extracted() {
		t.Fatalf("expected extracted release to report both flags, got %#v", extracted)
	}

	if _, err := store.AdvanceRelease(ctx, 9999, catalogue.ReleaseDownloaded); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown release, got %v", err)
	}
}

func TestListReleasesFiltersByStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.NewRelease(t, store, "ipg200107.tar", "https://example.test/a")
	testsupport.NewRelease(t, store, "ipg200114.tar", "https://example.test/b")
	testsupport.AdvanceTo(t, store, a, catalogue.ReleaseDownloaded)

	pending, err := store.ListReleases(ctx, catalogue.ReleaseDiscovered)
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "ipg200114.tar" {
		t.Fatalf("unexpected discovered releases: %#v", pending)
	}

	all, err := store.ListReleases(ctx, catalogue.ReleaseDiscovered, catalogue.ReleaseDownloaded)
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "ipg200107.tar" {
		t.Fatalf("expected name ordering, got %#v", all)
	}
}

func TestFindRelease(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRelease(t, store, "ipg200107.tar", "https://example.test/a")
	testsupport.NewRelease(t, store, "ipg200114.tar", "https://example.test/b")

	exact, err := store.FindRelease(ctx, "ipg200107.tar")
	if err != nil || exact == nil || exact.Name != "ipg200107.tar" {
		t.Fatalf("exact lookup: %#v, %v", exact, err)
	}

	partial, err := store.FindRelease(ctx, "IPG200114")
	if err != nil || partial == nil || partial.Name != "ipg200114.tar" {
		t.Fatalf("fragment lookup: %#v, %v", partial, err)
	}

	if _, err := store.FindRelease(ctx, "ipg2001"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ambiguous fragment to fail, got %v", err)
	}
	if _, err := store.FindRelease(ctx, "ipg1999"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected missing release to fail, got %v", err)
	}
}

func TestInsertPatentRecordsImages(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	release := testsupport.NewRelease(t, store, "R1.tar", "https://example.test/R1.tar")

	result, err := store.InsertPatent(ctx, catalogue.PatentRecord{
		Filename:  "P1",
		ReleaseID: release.ID,
		DocType:   "design",
		Title:     "Widget",
		Reference: "US29000001",
		Images:    []string{"P1-D00001.TIF", "P1-D00002.TIF"},
	})
	if err != nil {
		t.Fatalf("InsertPatent failed: %v", err)
	}
	if !result.Created || result.ImagesAdded != 2 || result.ImagesIgnored != 0 {
		t.Fatalf("unexpected insert result: %#v", result)
	}
	if result.Patent == nil || !result.Patent.Extracted || result.Patent.Title != "Widget" {
		t.Fatalf("unexpected patent row: %#v", result.Patent)
	}

	again, err := store.InsertPatent(ctx, catalogue.PatentRecord{Filename: "P1", ReleaseID: release.ID, Title: "Changed"})
	if err != nil {
		t.Fatalf("second InsertPatent failed: %v", err)
	}
	if again.Created || again.Patent.Title != "Widget" {
		t.Fatalf("expected existing patent to be left alone, got %#v", again)
	}

	shared, err := store.InsertPatent(ctx, catalogue.PatentRecord{
		Filename:  "P2",
		ReleaseID: release.ID,
		Images:    []string{"P1-D00001.TIF", "P2-D00001.TIF"},
	})
	if err != nil {
		t.Fatalf("InsertPatent P2 failed: %v", err)
	}
	if shared.ImagesAdded != 1 || shared.ImagesIgnored != 1 {
		t.Fatalf("expected one duplicate image to be ignored, got %#v", shared)
	}

	record, err := store.ImageWithPatent(ctx, "P1-D00001.TIF")
	if err != nil {
		t.Fatalf("ImageWithPatent failed: %v", err)
	}
	if record == nil || record.Patent.Filename != "P1" || record.Image.Status != catalogue.ImagePending {
		t.Fatalf("duplicate image changed owner: %#v", record)
	}

	exists, err := store.PatentExists(ctx, "P2")
	if err != nil || !exists {
		t.Fatalf("PatentExists: %v, %v", exists, err)
	}
	images, err := store.PatentImages(ctx, result.Patent.ID)
	if err != nil || len(images) != 2 {
		t.Fatalf("PatentImages: %#v, %v", images, err)
	}
}

func TestInsertPatentRequiresExistingRelease(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.InsertPatent(ctx, catalogue.PatentRecord{Filename: "P1", ReleaseID: 42}); err == nil {
		t.Fatal("expected foreign key failure for unknown release")
	}
	patent, err := store.PatentByFilename(ctx, "P1")
	if err != nil {
		t.Fatalf("PatentByFilename failed: %v", err)
	}
	if patent != nil {
		t.Fatalf("expected no patent row, got %#v", patent)
	}
}

func TestMarkImagePublishedOnlyOnce(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	release := testsupport.NewRelease(t, store, "R1.tar", "https://example.test/R1.tar")
	if _, err := store.InsertPatent(ctx, catalogue.PatentRecord{
		Filename: "P1", ReleaseID: release.ID, Images: []string{"a.TIF", "b.TIF"},
	}); err != nil {
		t.Fatalf("InsertPatent failed: %v", err)
	}

	ok, err := store.MarkImagePublished(ctx, "a.TIF", "109876")
	if err != nil || !ok {
		t.Fatalf("first mark: %v, %v", ok, err)
	}
	ok, err = store.MarkImagePublished(ctx, "a.TIF", "other")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if ok {
		t.Fatal("expected published image to stay claimed")
	}
	if ok, _ := store.MarkImagePublished(ctx, "missing.TIF", ""); ok {
		t.Fatal("expected unknown image to report false")
	}

	pending, err := store.PendingImageFilenames(ctx)
	if err != nil {
		t.Fatalf("PendingImageFilenames failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "b.TIF" {
		t.Fatalf("unexpected pending set %v", pending)
	}

	record, err := store.ImageWithPatent(ctx, "a.TIF")
	if err != nil {
		t.Fatalf("ImageWithPatent failed: %v", err)
	}
	if record.Image.PostID != "109876" || record.Image.PublishedAt == nil {
		t.Fatalf("expected post metadata, got %#v", record.Image)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Patents != 1 || stats.ImagesPending != 1 || stats.ImagesPublished != 1 || stats.Releases[catalogue.ReleaseDiscovered] != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	summaries, err := store.ReleaseSummaries(ctx)
	if err != nil {
		t.Fatalf("ReleaseSummaries failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Patents != 1 || summaries[0].Images != 2 || summaries[0].Published != 1 {
		t.Fatalf("unexpected summaries %#v", summaries)
	}
}

func TestUnavailableImagesLeaveTheDrawUntilRequeued(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	release := testsupport.NewRelease(t, store, "R1.tar", "https://example.test/R1.tar")
	if _, err := store.InsertPatent(ctx, catalogue.PatentRecord{
		Filename: "P1", ReleaseID: release.ID, Images: []string{"a.TIF", "b.TIF"},
	}); err != nil {
		t.Fatalf("InsertPatent failed: %v", err)
	}

	ok, err := store.MarkImageUnavailable(ctx, "a.TIF")
	if err != nil || !ok {
		t.Fatalf("mark unavailable: %v, %v", ok, err)
	}
	if ok, _ := store.MarkImageUnavailable(ctx, "a.TIF"); ok {
		t.Fatal("expected an image that is not pending to report false")
	}
	if ok, _ := store.MarkImagePublished(ctx, "a.TIF", "1"); ok {
		t.Fatal("expected an unavailable image not to be claimable")
	}

	pending, err := store.PendingImageFilenames(ctx)
	if err != nil {
		t.Fatalf("PendingImageFilenames failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "b.TIF" {
		t.Fatalf("unexpected pending set %v", pending)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ImagesPending != 1 || stats.ImagesUnavailable != 1 || stats.ImagesPublished != 0 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	n, err := store.RequeueUnavailableImages(ctx)
	if err != nil || n != 1 {
		t.Fatalf("requeue: %d, %v", n, err)
	}
	if pending, _ := store.PendingImageFilenames(ctx); len(pending) != 2 {
		t.Fatalf("expected both images pending after requeue, got %v", pending)
	}
}
