package extract

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/logging"
	"grantfeed/internal/services"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Result lists what one extraction pass produced.
type Result struct {
	Records      []string `json:"records"`
	StagedFiles  int      `json:"staged_files"`
	WrittenFiles int      `json:"written_files"`
	SkippedFiles int      `json:"skipped_files"`
}

// Extractor unpacks cached release archives.
type Extractor struct {
	store  *catalogue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// New builds an Extractor.
func New(cfg *config.Config, store *catalogue.Store, logger *slog.Logger) *Extractor {
	return &Extractor{store: store, cfg: cfg, logger: logging.NewComponentLogger(logger, "extract")}
}

// Extract unpacks both layers of a downloaded release and advances it to
// extracted. An already extracted release is a no-op with an empty result.
func (e *Extractor) Extract(ctx context.Context, release *catalogue.Release) (Result, error) {
	if release == nil {
		return Result{}, errors.New("extract: nil release")
	}
	if release.Extracted() {
		return Result{}, nil
	}
	if !release.Downloaded() {
		return Result{}, services.Wrap(services.ErrDataIntegrity, "extract", "check release",
			fmt.Sprintf("%s is %s, not downloaded", release.Name, release.Status), nil)
	}
	ctx = services.WithStage(services.WithReleaseID(ctx, release.ID), "extract")
	logger := logging.WithContext(ctx, e.logger)

	archive := filepath.Join(e.cfg.CacheDir(), filepath.Base(release.Name))
	stagingDir := e.cfg.ReleaseStagingDir(release.ID)

	var result Result
	if err := e.unpackOuter(ctx, archive, stagingDir, &result); err != nil {
		return Result{}, services.Wrap(services.ErrTransientIO, "extract", "unpack release", release.Name, err)
	}
	logger.Info("release archive staged",
		logging.String(logging.FieldEventType, "extract_outer"),
		logging.Int("staged_files", result.StagedFiles),
		logging.String("staging_dir", stagingDir),
	)

	zips, err := listZips(stagingDir)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransientIO, "extract", "list staged archives", release.Name, err)
	}
	for _, name := range zips {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		record := recordName(name)
		written, skipped, err := e.UnpackRecord(filepath.Join(stagingDir, name), record)
		if err != nil {
			return Result{}, services.Wrap(services.ErrTransientIO, "extract", "unpack record", record, err)
		}
		result.WrittenFiles += written
		result.SkippedFiles += skipped
		result.Records = append(result.Records, record)
	}

	if _, err := e.store.AdvanceRelease(ctx, release.ID, catalogue.ReleaseExtracted); err != nil {
		return Result{}, services.Wrap(services.ErrTransientIO, "extract", "record extraction", release.Name, err)
	}
	logger.Info("release extracted",
		logging.String(logging.FieldEventType, "extract_complete"),
		logging.Int("records", len(result.Records)),
		logging.Int("written_files", result.WrittenFiles),
		logging.Int("skipped_files", result.SkippedFiles),
	)
	return result, nil
}

func (e *Extractor) unpackOuter(ctx context.Context, archive, stagingDir string, result *Result) error {
	file, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var stream io.Reader = reader
	if head, err := reader.Peek(len(gzipMagic)); err == nil && bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		stream = gz
	}

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		base, ok := safeBase(hdr.Name)
		if !ok {
			continue
		}
		wrote, err := writeAtomic(filepath.Join(stagingDir, base), tr)
		if err != nil {
			return fmt.Errorf("stage %s: %w", base, err)
		}
		if wrote {
			result.StagedFiles++
		}
	}
}

// UnpackRecord writes every regular entry of a record zip into
// patents/<record>/, skipping files already present.
func (e *Extractor) UnpackRecord(zipPath, record string) (written, skipped int, err error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	recordDir := filepath.Join(e.cfg.PatentsDir(), record)
	for _, entry := range zr.File {
		if !entry.Mode().IsRegular() {
			continue
		}
		base, ok := safeBase(entry.Name)
		if !ok {
			continue
		}
		wrote, err := writeZipEntry(entry, filepath.Join(recordDir, base))
		if err != nil {
			return written, skipped, fmt.Errorf("write %s: %w", base, err)
		}
		if wrote {
			written++
		} else {
			skipped++
		}
	}
	return written, skipped, nil
}

func writeZipEntry(entry *zip.File, target string) (bool, error) {
	exists, err := fileExists(target)
	if err != nil || exists {
		return false, err
	}
	rc, err := entry.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()
	return writeAtomic(target, rc)
}

// StagedRecords lists records whose inner archive is still staged for release.
func (e *Extractor) StagedRecords(release *catalogue.Release) ([]string, error) {
	zips, err := listZips(e.cfg.ReleaseStagingDir(release.ID))
	if err != nil {
		return nil, err
	}
	records := make([]string, 0, len(zips))
	for _, name := range zips {
		records = append(records, recordName(name))
	}
	return records, nil
}

// StagedArchive returns the staged inner archive path for record, if present.
func (e *Extractor) StagedArchive(release *catalogue.Release, record string) (string, bool) {
	dir := e.cfg.ReleaseStagingDir(release.ID)
	zips, err := listZips(dir)
	if err != nil {
		return "", false
	}
	for _, name := range zips {
		if recordName(name) == record {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// Discard removes the staged inner archive for record. A missing file is not an error.
func (e *Extractor) Discard(release *catalogue.Release, record string) error {
	path, ok := e.StagedArchive(release, record)
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s: %w", record, err)
	}
	return nil
}

func listZips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isZipName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
