package bdss

import (
	"context"
	"log/slog"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/logging"
	"grantfeed/internal/services"
)

// Lister is satisfied by Client and by test doubles.
type Lister interface {
	List(ctx context.Context) ([]RemoteFile, error)
}

// DiscoverResult counts what a discovery pass saw.
type DiscoverResult struct {
	Listed   int      `json:"listed"`
	Inserted int      `json:"inserted"`
	Existing int      `json:"existing"`
	New      []string `json:"new,omitempty"`
}

// Directory reconciles remote listings into the catalogue.
type Directory struct {
	lister Lister
	store  *catalogue.Store
	logger *slog.Logger
}

// NewDirectory wires a lister to the catalogue.
func NewDirectory(lister Lister, store *catalogue.Store, logger *slog.Logger) *Directory {
	return &Directory{
		lister: lister,
		store:  store,
		logger: logging.NewComponentLogger(logger, "discover"),
	}
}

// Discover inserts a discovered release for every listed archive not yet
// catalogued. Existing rows are never modified.
func (d *Directory) Discover(ctx context.Context) (DiscoverResult, error) {
	ctx = services.WithStage(ctx, "discover")
	logger := logging.WithContext(ctx, d.logger)

	files, err := d.lister.List(ctx)
	if err != nil {
		return DiscoverResult{}, err
	}

	result := DiscoverResult{Listed: len(files)}
	for _, file := range files {
		inserted, err := d.store.InsertReleaseIfAbsent(ctx, file.Name, file.URL)
		if err != nil {
			return result, services.Wrap(services.ErrTransientIO, "discover", "record release", file.Name, err)
		}
		if inserted {
			result.Inserted++
			result.New = append(result.New, file.Name)
			logger.Info("release discovered",
				logging.String(logging.FieldEventType, "release_discovered"),
				logging.String("release", file.Name),
			)
			continue
		}
		result.Existing++
	}

	logger.Info("discovery complete",
		logging.String(logging.FieldEventType, "discover_summary"),
		logging.Int("listed", result.Listed),
		logging.Int("inserted", result.Inserted),
		logging.Int("existing", result.Existing),
	)
	return result, nil
}
