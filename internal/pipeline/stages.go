package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"grantfeed/internal/bdss"
	"grantfeed/internal/catalogue"
	"grantfeed/internal/logging"
	"grantfeed/internal/notifications"
	"grantfeed/internal/publish"
	"grantfeed/internal/services"
)

// ExtractReport summarises extraction and loading of one release.
type ExtractReport struct {
	Release  string `json:"release"`
	Records  int    `json:"records"`
	Loaded   int    `json:"loaded"`
	Existing int    `json:"existing"`
	Skipped  int    `json:"skipped"`
	Images   int    `json:"images"`
}

// ReconcileReport summarises a pass over leftover staged archives.
type ReconcileReport struct {
	Releases  int `json:"releases"`
	Staged    int `json:"staged"`
	Unpacked  int `json:"unpacked"`
	Loaded    int `json:"loaded"`
	Existing  int `json:"existing"`
	Skipped   int `json:"skipped"`
	Discarded int `json:"discarded"`
}

// RunSummary is the combined outcome of RunAll.
type RunSummary struct {
	Discover  bdss.DiscoverResult `json:"discover"`
	Fetched   []string            `json:"fetched"`
	Extracted []ExtractReport     `json:"extracted"`
	Published *publish.Outcome    `json:"published,omitempty"`
}

// Discover reconciles the remote listing into the catalogue.
func (r *Runner) Discover(ctx context.Context) (bdss.DiscoverResult, error) {
	var result bdss.DiscoverResult
	err := r.runStage(ctx, "discover", func(ctx context.Context) error {
		var err error
		result, err = r.directory.Discover(ctx)
		if err != nil {
			return err
		}
		r.notify(ctx, notifications.EventReleasesDiscovered, notifications.Payload{"count": result.Inserted})
		return nil
	})
	return result, err
}

// FetchPending downloads every discovered release in name order. The first
// failure stops the stage; releases fetched before it stay downloaded.
func (r *Runner) FetchPending(ctx context.Context) ([]*catalogue.Release, error) {
	var fetched []*catalogue.Release
	err := r.runStage(ctx, "fetch", func(ctx context.Context) error {
		pending, err := r.store.ListReleases(ctx, catalogue.ReleaseDiscovered)
		if err != nil {
			return err
		}
		for _, release := range pending {
			updated, err := r.fetchOne(ctx, release)
			if err != nil {
				return err
			}
			fetched = append(fetched, updated)
		}
		return nil
	})
	return fetched, err
}

// FetchNamed downloads the release matching name.
func (r *Runner) FetchNamed(ctx context.Context, name string) (*catalogue.Release, error) {
	var updated *catalogue.Release
	err := r.runStage(ctx, "fetch", func(ctx context.Context) error {
		release, err := r.store.FindRelease(ctx, name)
		if err != nil {
			return err
		}
		updated, err = r.fetchOne(ctx, release)
		return err
	})
	return updated, err
}

func (r *Runner) fetchOne(ctx context.Context, release *catalogue.Release) (*catalogue.Release, error) {
	if release.Downloaded() {
		return release, nil
	}
	updated, err := r.fetcher.Fetch(ctx, release)
	if err != nil {
		return nil, err
	}
	payload := notifications.Payload{"release": release.Name}
	if info, err := os.Stat(r.fetcher.CachePath(release.Name)); err == nil {
		r.metrics.AddFetchedBytes(info.Size())
		payload["size"] = humanize.IBytes(uint64(info.Size()))
	}
	r.notify(services.WithReleaseID(ctx, release.ID), notifications.EventReleaseFetched, payload)
	return updated, nil
}

// ExtractPending reconciles leftovers, then extracts and loads every downloaded release.
func (r *Runner) ExtractPending(ctx context.Context) ([]ExtractReport, error) {
	var reports []ExtractReport
	err := r.runStage(ctx, "extract", func(ctx context.Context) error {
		if _, err := r.reconcile(ctx); err != nil {
			return err
		}
		pending, err := r.store.ListReleases(ctx, catalogue.ReleaseDownloaded)
		if err != nil {
			return err
		}
		for _, release := range pending {
			report, err := r.extractOne(ctx, release)
			if err != nil {
				return err
			}
			reports = append(reports, report)
		}
		return nil
	})
	return reports, err
}

// ExtractNamed reconciles leftovers, then extracts and loads the release matching name.
func (r *Runner) ExtractNamed(ctx context.Context, name string) (ExtractReport, error) {
	var report ExtractReport
	err := r.runStage(ctx, "extract", func(ctx context.Context) error {
		if _, err := r.reconcile(ctx); err != nil {
			return err
		}
		release, err := r.store.FindRelease(ctx, name)
		if err != nil {
			return err
		}
		report, err = r.extractOne(ctx, release)
		return err
	})
	return report, err
}

func (r *Runner) extractOne(ctx context.Context, release *catalogue.Release) (ExtractReport, error) {
	report := ExtractReport{Release: release.Name}
	if release.Extracted() {
		return report, nil
	}
	result, err := r.extractor.Extract(ctx, release)
	if err != nil {
		return report, err
	}
	report.Records = len(result.Records)

	loaded, err := r.loader.Load(ctx, release.ID, result.Records)
	if err != nil {
		return report, err
	}
	report.Loaded, report.Existing, report.Skipped, report.Images = len(loaded.Loaded), len(loaded.Existing), len(loaded.Skipped), loaded.Images
	r.metrics.AddRecords(report.Loaded, report.Existing, report.Skipped)

	if _, err := r.discard(release, loaded.Settled()); err != nil {
		return report, err
	}
	r.notify(services.WithReleaseID(ctx, release.ID), notifications.EventReleaseExtracted, notifications.Payload{
		"release": release.Name,
		"loaded":  report.Loaded,
		"skipped": report.Skipped,
	})
	return report, nil
}

// Reconcile loads records whose staged archive survived an interrupted load.
func (r *Runner) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := r.runStage(ctx, "reconcile", func(ctx context.Context) error {
		var err error
		report, err = r.reconcile(ctx)
		return err
	})
	return report, err
}

func (r *Runner) reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	releases, err := r.store.ListReleases(ctx, catalogue.ReleaseExtracted)
	if err != nil {
		return report, err
	}
	for _, release := range releases {
		staged, err := r.extractor.StagedRecords(release)
		if err != nil {
			return report, services.Wrap(services.ErrTransientIO, "reconcile", "list staged archives", release.Name, err)
		}
		if len(staged) == 0 {
			continue
		}
		report.Releases++
		report.Staged += len(staged)
		releaseCtx := services.WithReleaseID(ctx, release.ID)

		// Unpacking skips files already present, so this only fills gaps left by an interrupted extract.
		for _, record := range staged {
			path, ok := r.extractor.StagedArchive(release, record)
			if !ok {
				continue
			}
			written, _, err := r.extractor.UnpackRecord(path, record)
			if err != nil {
				return report, services.Wrap(services.ErrTransientIO, "reconcile", "unpack record", record, err)
			}
			if written > 0 {
				report.Unpacked++
			}
		}

		loaded, err := r.loader.Load(releaseCtx, release.ID, staged)
		if err != nil {
			return report, err
		}
		report.Loaded += len(loaded.Loaded)
		report.Existing += len(loaded.Existing)
		report.Skipped += len(loaded.Skipped)
		r.metrics.AddRecords(len(loaded.Loaded), len(loaded.Existing), len(loaded.Skipped))

		discarded, err := r.discard(release, loaded.Settled())
		report.Discarded += discarded
		if err != nil {
			return report, err
		}
	}
	if report.Staged > 0 {
		logging.WithContext(ctx, r.logger).Info("staged archives reconciled",
			logging.String(logging.FieldEventType, "reconcile_summary"),
			logging.Int("staged", report.Staged),
			logging.Int("loaded", report.Loaded),
			logging.Int("skipped", report.Skipped),
			logging.Int("discarded", report.Discarded),
		)
	}
	return report, nil
}

func (r *Runner) discard(release *catalogue.Release, records []string) (int, error) {
	count := 0
	for _, record := range records {
		if err := r.extractor.Discard(release, record); err != nil {
			return count, services.Wrap(services.ErrTransientIO, "extract", "discard staged archive", record, err)
		}
		count++
	}
	return count, nil
}

// PublishOne posts one random pending image. services.ErrNothingToPublish is
// returned unchanged when the queue is empty.
func (r *Runner) PublishOne(ctx context.Context) (publish.Outcome, error) {
	var outcome publish.Outcome
	err := r.runStage(ctx, "publish", func(ctx context.Context) error {
		if r.selector == nil {
			return services.Wrap(services.ErrConfiguration, "publish", "select poster", "no publisher configured", nil)
		}
		var err error
		outcome, err = r.selector.PublishOne(ctx)
		switch {
		case errors.Is(err, services.ErrNothingToPublish):
			r.notify(ctx, notifications.EventQueueExhausted, nil)
			return err
		case err != nil:
			return err
		}
		r.metrics.IncPublished()
		r.notify(ctx, notifications.EventImagePublished, notifications.Payload{
			"title":     outcome.Title,
			"reference": outcome.Reference,
			"image":     outcome.Filename,
		})
		return nil
	})
	return outcome, err
}

// RunAll runs discover, fetch and extract in order, then publishes one image
// when publishOne is set. An empty publish queue is not a failure.
func (r *Runner) RunAll(ctx context.Context, publishOne bool) (RunSummary, error) {
	var summary RunSummary
	var err error

	if summary.Discover, err = r.Discover(ctx); err != nil {
		return summary, fmt.Errorf("discover: %w", err)
	}
	fetched, err := r.FetchPending(ctx)
	for _, release := range fetched {
		summary.Fetched = append(summary.Fetched, filepath.Base(release.Name))
	}
	if err != nil {
		return summary, fmt.Errorf("fetch: %w", err)
	}
	if summary.Extracted, err = r.ExtractPending(ctx); err != nil {
		return summary, fmt.Errorf("extract: %w", err)
	}
	if !publishOne {
		return summary, nil
	}
	outcome, err := r.PublishOne(ctx)
	switch {
	case errors.Is(err, services.ErrNothingToPublish):
		return summary, nil
	case err != nil:
		return summary, fmt.Errorf("publish: %w", err)
	}
	summary.Published = &outcome
	return summary, nil
}
