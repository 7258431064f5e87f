package metadata

import (
	"context"
	"errors"
	"log/slog"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/logging"
	"grantfeed/internal/services"
)

// LoadResult partitions the records of one load pass.
type LoadResult struct {
	Loaded   []string `json:"loaded"`
	Existing []string `json:"existing"`
	Skipped  []string `json:"skipped"`
	Images   int      `json:"images"`
}

// Settled lists records whose patent row is committed, new or old.
func (r LoadResult) Settled() []string {
	out := make([]string, 0, len(r.Loaded)+len(r.Existing))
	out = append(out, r.Loaded...)
	return append(out, r.Existing...)
}

// Loader turns extracted record directories into catalogue rows.
type Loader struct {
	store      *catalogue.Store
	patentsDir string
	logger     *slog.Logger
}

// NewLoader builds a Loader.
func NewLoader(cfg *config.Config, store *catalogue.Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, patentsDir: cfg.PatentsDir(), logger: logging.NewComponentLogger(logger, "load")}
}

// Load parses and records each record for releaseID. Broken documents are
// logged and skipped; store failures abort the batch.
func (l *Loader) Load(ctx context.Context, releaseID int64, records []string) (LoadResult, error) {
	ctx = services.WithStage(services.WithReleaseID(ctx, releaseID), "load")
	logger := logging.WithContext(ctx, l.logger)

	var result LoadResult
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		exists, err := l.store.PatentExists(ctx, record)
		if err != nil {
			return result, err
		}
		if exists {
			result.Existing = append(result.Existing, record)
			continue
		}

		grant, err := l.parseRecord(record)
		if errors.Is(err, services.ErrDataIntegrity) {
			logging.WarnWithContext(logger, "skipping unreadable record", "record_skipped",
				logging.String("record", record),
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Classify(err)),
				logging.String(logging.FieldErrorHint, "inspect the record directory; the staged archive is kept for a later reconcile"),
				logging.String(logging.FieldImpact, "record images will not be published"),
			)
			result.Skipped = append(result.Skipped, record)
			continue
		}
		if err != nil {
			return result, err
		}

		inserted, err := l.store.InsertPatent(ctx, catalogue.PatentRecord{
			Filename:  record,
			ReleaseID: releaseID,
			DocType:   grant.DocType,
			Title:     grant.Title,
			Reference: grant.Reference(),
			Images:    grant.Images,
		})
		if err != nil {
			return result, services.Wrap(services.ErrTransientIO, "load", "record patent", record, err)
		}
		if !inserted.Created {
			result.Existing = append(result.Existing, record)
			continue
		}
		result.Loaded = append(result.Loaded, record)
		result.Images += inserted.ImagesAdded
		if inserted.ImagesIgnored > 0 {
			logger.Debug("duplicate image filenames ignored",
				logging.String("record", record),
				logging.Int("ignored", inserted.ImagesIgnored),
			)
		}
	}

	logger.Info("records loaded",
		logging.String(logging.FieldEventType, "load_summary"),
		logging.Int("loaded", len(result.Loaded)),
		logging.Int("existing", len(result.Existing)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("images", result.Images),
	)
	return result, nil
}

func (l *Loader) parseRecord(record string) (*Grant, error) {
	path, err := DocumentPath(l.patentsDir, record)
	if err != nil {
		return nil, err
	}
	return ParseFile(path)
}
