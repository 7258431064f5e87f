package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/logging"
	"grantfeed/internal/preflight"
	"grantfeed/internal/services"
)

const tempSuffix = ".tmp"

// Fetcher downloads release archives into the cache directory.
type Fetcher struct {
	store      *catalogue.Store
	cacheDir   string
	userAgent  string
	minFree    uint64
	progress   bool
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Fetcher. Transfers have no overall timeout; cancellation flows
// through the context.
func New(cfg *config.Config, store *catalogue.Store, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		store:      store,
		cacheDir:   cfg.CacheDir(),
		userAgent:  cfg.Download.UserAgent,
		minFree:    uint64(cfg.Download.MinFreeGiB) << 30,
		progress:   cfg.Download.Progress,
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(logger, "fetch"),
	}
}

// CachePath returns the cache location for an archive name. Only the base
// name is used so remote names cannot escape the cache directory.
func (f *Fetcher) CachePath(name string) string {
	return filepath.Join(f.cacheDir, filepath.Base(filepath.Clean("/"+name)))
}

// Fetch downloads the release archive unless it is already present and
// advances the release to downloaded. On error the status is unchanged.
func (f *Fetcher) Fetch(ctx context.Context, release *catalogue.Release) (*catalogue.Release, error) {
	if release == nil {
		return nil, errors.New("fetch: nil release")
	}
	if release.Downloaded() {
		return release, nil
	}
	ctx = services.WithStage(services.WithReleaseID(ctx, release.ID), "fetch")
	logger := logging.WithContext(ctx, f.logger)

	target := f.CachePath(release.Name)
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		logger.Info("archive already cached",
			logging.String(logging.FieldEventType, "fetch_cached"),
			logging.String("path", target),
			logging.Int64("size_bytes", info.Size()),
		)
	} else {
		started := time.Now()
		size, err := f.download(ctx, logger, release, target)
		if err != nil {
			return nil, err
		}
		logger.Info("archive downloaded",
			logging.String(logging.FieldEventType, "fetch_complete"),
			logging.String("path", target),
			logging.Int64("size_bytes", size),
			logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		)
	}

	updated, err := f.store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseDownloaded)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "fetch", "record download", release.Name, err)
	}
	return updated, nil
}

func (f *Fetcher) download(ctx context.Context, logger *slog.Logger, release *catalogue.Release, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, release.URL, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrTransientIO, "fetch", "build request", release.Name, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransientIO, "fetch", "request archive", release.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, services.Wrap(services.ErrTransientIO, "fetch", "request archive",
			fmt.Sprintf("%s returned %d: %s", release.URL, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	expected := resp.ContentLength
	if expected > 0 {
		if err := f.ensureSpace(uint64(expected)); err != nil {
			return 0, err
		}
	}
	logger.Info("downloading archive",
		logging.String(logging.FieldEventType, "fetch_start"),
		logging.String("url", release.URL),
		logging.Int64("expected_bytes", expected),
	)

	tmp := target + tempSuffix
	written, err := f.writeTemp(resp.Body, tmp, expected, release.Name, logger)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, services.Wrap(services.ErrTransientIO, "fetch", "write archive", release.Name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, services.Wrap(services.ErrTransientIO, "fetch", "finalize archive", release.Name, err)
	}
	return written, nil
}

func (f *Fetcher) writeTemp(body io.Reader, tmp string, expected int64, name string, logger *slog.Logger) (int64, error) {
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	bar := newBar(f.progress, expected, name)
	counter := &progressWriter{logger: logger, sampler: logging.NewProgressSampler(25), total: expected}
	written, err := io.Copy(sinks(file, counter, bar), body)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return written, err
	}
	if expected >= 0 && written != expected {
		return written, fmt.Errorf("short transfer: got %d of %d bytes", written, expected)
	}
	if err := file.Sync(); err != nil {
		return written, err
	}
	return written, file.Close()
}

func (f *Fetcher) ensureSpace(need uint64) error {
	if f.minFree == 0 {
		return nil
	}
	free, err := preflight.FreeBytes(f.cacheDir)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "fetch", "check free space", "", err)
	}
	if free < need+f.minFree {
		return services.Wrap(services.ErrTransientIO, "fetch", "check free space",
			fmt.Sprintf("%s free, need %s plus %s reserve", humanize.IBytes(free), humanize.IBytes(need), humanize.IBytes(f.minFree)), nil)
	}
	return nil
}
