package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/logging"
	"grantfeed/internal/pipeline"
	"grantfeed/internal/publish"
	"grantfeed/internal/services"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withStore opens the catalogue for read-only commands.
func (c *commandContext) withStore(fn func(*config.Config, *catalogue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalogue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalogue: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// posterFactory picks the publisher once the logger exists.
type posterFactory func(cfg *config.Config, logger *slog.Logger) (publish.Poster, error)

func livePoster(dryRun bool) posterFactory {
	return func(cfg *config.Config, logger *slog.Logger) (publish.Poster, error) {
		if dryRun {
			return publish.NewDryRunPoster(logger), nil
		}
		if err := cfg.RequirePublisher(); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "publish", "select poster", "", err)
		}
		return publish.NewMastodonPoster(cfg), nil
	}
}

// withRunner builds a pipeline runner for stage commands. newPoster may be
// nil when the command never publishes.
func (c *commandContext) withRunner(cmd *cobra.Command, newPoster posterFactory, fn func(context.Context, *pipeline.Runner) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var opts []pipeline.Option
	if newPoster != nil {
		poster, err := newPoster(cfg, logger)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithPoster(poster))
	}

	store, err := catalogue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalogue: %w", err)
	}
	defer store.Close()

	runner := pipeline.New(cfg, store, logger, opts...)
	logger.Debug("invocation started",
		logging.String(logging.FieldEventType, "invocation_start"),
		logging.String(logging.FieldCorrelationID, runner.CorrelationID()),
		logging.String("command", cmd.CommandPath()),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runErr := fn(ctx, runner)
	if err := runner.Close(); err != nil {
		logging.WarnWithContext(logger, "runner cleanup failed", "runner_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "metrics textfile may be stale"),
		)
	}
	return runErr
}

// reportNotFound turns a name lookup miss into a message on stdout.
func reportNotFound(cmd *cobra.Command, name string, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No single release matches %q\n", name)
		return nil
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
