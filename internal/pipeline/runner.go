package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"grantfeed/internal/bdss"
	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/extract"
	"grantfeed/internal/fetch"
	"grantfeed/internal/logging"
	"grantfeed/internal/metadata"
	"grantfeed/internal/metrics"
	"grantfeed/internal/notifications"
	"grantfeed/internal/publish"
	"grantfeed/internal/services"
)

// ErrLocked reports that another process is running a stage on the same data directory.
var ErrLocked = errors.New("another grantfeed run holds the lock")

// Option customises a Runner.
type Option func(*Runner)

// WithPoster enables PublishOne.
func WithPoster(poster publish.Poster) Option {
	return func(r *Runner) { r.poster = poster }
}

// WithLister replaces the listing client used by Discover.
func WithLister(lister bdss.Lister) Option {
	return func(r *Runner) { r.lister = lister }
}

// WithNotifier replaces the config-derived notification service.
func WithNotifier(svc notifications.Service) Option {
	return func(r *Runner) { r.notifier = svc }
}

// WithMetrics replaces the config-derived metrics recorder.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = rec }
}

// WithSelectorOptions forwards options to the publish selector.
func WithSelectorOptions(opts ...publish.Option) Option {
	return func(r *Runner) { r.selectorOpts = append(r.selectorOpts, opts...) }
}

// Runner owns the pipeline components for one invocation.
type Runner struct {
	cfg           *config.Config
	store         *catalogue.Store
	logger        *slog.Logger
	correlationID string

	lister       bdss.Lister
	poster       publish.Poster
	selectorOpts []publish.Option
	notifier     notifications.Service
	metrics      *metrics.Recorder

	directory *bdss.Directory
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	loader    *metadata.Loader
	selector  *publish.Selector

	lockMu sync.Mutex
	lock   *flock.Flock
	locked bool
}

// New wires every stage against store.
func New(cfg *config.Config, store *catalogue.Store, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		correlationID: uuid.NewString(),
		lock:          flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lister == nil {
		r.lister = bdss.NewClient(cfg)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(cfg.Metrics.TextfilePath)
	}

	r.directory = bdss.NewDirectory(r.lister, store, logger)
	r.fetcher = fetch.New(cfg, store, logger)
	r.extractor = extract.New(cfg, store, logger)
	r.loader = metadata.NewLoader(cfg, store, logger)
	if r.poster != nil {
		r.selector = publish.NewSelector(cfg, store, r.poster, logger, r.selectorOpts...)
	}
	return r
}

// CorrelationID identifies this invocation in logs.
func (r *Runner) CorrelationID() string {
	return r.correlationID
}

// Close refreshes catalogue gauges, flushes metrics and releases the lock.
func (r *Runner) Close() error {
	var errs []error
	if r.metrics.Enabled() {
		if stats, err := r.store.Stats(context.Background()); err == nil {
			r.metrics.SetCatalogue(stats)
		} else {
			errs = append(errs, err)
		}
		if err := r.metrics.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if r.locked {
		if err := r.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
		r.locked = false
	}
	return errors.Join(errs...)
}

func (r *Runner) acquire() error {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if r.locked {
		return nil
	}
	ok, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLocked, r.cfg.LockPath())
	}
	r.locked = true
	return nil
}

// runStage holds the lock, tags the context and records the outcome.
func (r *Runner) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	if err := r.acquire(); err != nil {
		return err
	}
	ctx = services.WithStage(services.WithRequestID(ctx, r.correlationID), stage)
	started := time.Now()
	err := fn(ctx)

	kind := services.Classify(err)
	if errors.Is(err, services.ErrNothingToPublish) {
		kind = ""
	}
	r.metrics.ObserveStage(stage, time.Since(started), kind)
	if kind != "" {
		r.reportFailure(ctx, stage, kind, err)
	}
	return err
}

func (r *Runner) reportFailure(ctx context.Context, stage, kind string, err error) {
	logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "stage failed", "stage_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, kind),
	)
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrConfiguration),
		errors.Is(err, context.Canceled), errors.Is(err, ErrLocked):
		return
	}
	r.notify(ctx, notifications.EventError, notifications.Payload{"stage": stage, "error": err})
}

func (r *Runner) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notify_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
