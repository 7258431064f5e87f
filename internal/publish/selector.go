package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/logging"
	"grantfeed/internal/services"
)

// Outcome describes one published image.
type Outcome struct {
	Filename  string `json:"filename"`
	Patent    string `json:"patent"`
	Title     string `json:"title"`
	Reference string `json:"reference"`
	Caption   string `json:"caption"`
	PostID    string `json:"post_id"`

	// Unavailable lists images set aside while drawing this one.
	Unavailable []string `json:"unavailable,omitempty"`
}

// Option customises a Selector.
type Option func(*Selector)

// WithRand draws from r instead of the shared source, so tests can seed the choice.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.intN = r.IntN
	}
}

// WithTempDir writes converted media under dir.
func WithTempDir(dir string) Option {
	return func(s *Selector) {
		s.tempDir = dir
	}
}

// Selector chooses and publishes one pending image per call.
type Selector struct {
	store        *catalogue.Store
	poster       Poster
	patentsDir   string
	captionLimit int
	tempDir      string
	intN         func(int) int
	logger       *slog.Logger
}

// NewSelector builds a Selector around poster.
func NewSelector(cfg *config.Config, store *catalogue.Store, poster Poster, logger *slog.Logger, opts ...Option) *Selector {
	s := &Selector{
		store:        store,
		poster:       poster,
		patentsDir:   cfg.PatentsDir(),
		captionLimit: cfg.Publish.CaptionLimit,
		intN:         rand.IntN,
		logger:       logging.NewComponentLogger(logger, "publish"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishOne posts a uniformly chosen pending image. An image whose file is
// missing or unreadable is marked unavailable and another is drawn. It returns
// services.ErrNothingToPublish when no pending image remains.
func (s *Selector) PublishOne(ctx context.Context) (Outcome, error) {
	ctx = services.WithStage(ctx, "publish")
	var setAside []string

	for {
		pending, err := s.store.PendingImageFilenames(ctx)
		if err != nil {
			return Outcome{Unavailable: setAside}, err
		}
		if len(pending) == 0 {
			return Outcome{Unavailable: setAside}, services.ErrNothingToPublish
		}
		filename := pending[s.intN(len(pending))]

		record, err := s.store.ImageWithPatent(ctx, filename)
		if err != nil {
			return Outcome{Unavailable: setAside}, err
		}
		if record == nil {
			return Outcome{Unavailable: setAside}, services.Wrap(services.ErrNotFound, "publish", "load image", filename, nil)
		}
		imageCtx := services.WithReleaseID(ctx, record.Patent.ReleaseID)

		media, cleanup, err := s.loadMedia(record)
		if errors.Is(err, services.ErrDataIntegrity) {
			if err := s.setAside(imageCtx, filename, err); err != nil {
				return Outcome{Unavailable: setAside}, err
			}
			setAside = append(setAside, filename)
			continue
		}
		if err != nil {
			return Outcome{Unavailable: setAside}, err
		}

		outcome, err := s.post(imageCtx, record, media, len(pending))
		cleanup()
		outcome.Unavailable = setAside
		return outcome, err
	}
}

func (s *Selector) loadMedia(record *catalogue.ImageRecord) (Media, func(), error) {
	path := filepath.Join(s.patentsDir, record.Patent.Filename, filepath.Base(record.Image.Filename))
	if _, err := os.Stat(path); err != nil {
		return Media{}, func() {}, services.Wrap(services.ErrDataIntegrity, "publish", "locate image", path, err)
	}
	return prepareMedia(path, s.tempDir)
}

func (s *Selector) setAside(ctx context.Context, filename string, cause error) error {
	if _, err := s.store.MarkImageUnavailable(ctx, filename); err != nil {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "image set aside", "publish_image_unavailable",
		logging.String("image", filename),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "restore the file, then run grantfeed requeue-images"),
		logging.String(logging.FieldImpact, "image is skipped until requeued"),
	)
	return nil
}

func (s *Selector) post(ctx context.Context, record *catalogue.ImageRecord, media Media, pendingCount int) (Outcome, error) {
	logger := logging.WithContext(ctx, s.logger)
	filename := record.Image.Filename

	outcome := Outcome{
		Filename:  filename,
		Patent:    record.Patent.Filename,
		Title:     record.Patent.Title,
		Reference: record.Patent.Reference,
		Caption:   Caption(record.Patent.Title, record.Patent.Reference, s.captionLimit),
	}
	logger.Info("posting image",
		logging.String(logging.FieldEventType, "publish_start"),
		logging.String("image", filename),
		logging.String("patent", outcome.Patent),
		logging.Int("pending_images", pendingCount),
	)

	postID, err := s.poster.Post(ctx, media, outcome.Caption)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrPublishFailure, "publish", "post image", filename, err)
	}
	outcome.PostID = postID

	claimed, err := s.store.MarkImagePublished(ctx, filename, postID)
	if err != nil {
		return outcome, fmt.Errorf("posted %s as %s but could not record it: %w", filename, postID, err)
	}
	if !claimed {
		logging.WarnWithContext(logger, "image was already marked published", "publish_duplicate",
			logging.String("image", filename),
			logging.String("post_id", postID),
			logging.String(logging.FieldErrorHint, "another publisher ran concurrently; remove the duplicate post if needed"),
			logging.String(logging.FieldImpact, "image may appear twice"),
		)
	}
	logger.Info("image published",
		logging.String(logging.FieldEventType, "publish_complete"),
		logging.String("image", filename),
		logging.String("post_id", postID),
	)
	return outcome, nil
}

// Caption renders the post text: the title, then the reference on its own
// line. The title is shortened so the whole caption fits in limit runes; a
// reference that alone exceeds limit is cut as well.
func Caption(title, reference string, limit int) string {
	title = strings.TrimSpace(title)
	reference = strings.TrimSpace(reference)
	if limit <= 0 {
		return joinCaption(title, reference)
	}

	budget := limit
	if reference != "" {
		budget -= utf8.RuneCountInString(reference) + 1
	}
	if budget <= 0 {
		return truncateRunes(reference, limit)
	}
	return joinCaption(truncateRunes(title, budget), reference)
}

func joinCaption(title, reference string) string {
	switch {
	case title == "":
		return reference
	case reference == "":
		return title
	default:
		return title + "\n" + reference
	}
}

// truncateRunes cuts s to at most limit runes, ending with an ellipsis when cut.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// IsNothingToPublish reports whether err signals an exhausted queue.
func IsNothingToPublish(err error) bool {
	return errors.Is(err, services.ErrNothingToPublish)
}
