package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/pipeline"
	"grantfeed/internal/publish"
	"grantfeed/internal/services"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "discover",
		Aliases: []string{"update"},
		Short:   "Record releases listed upstream that are not yet catalogued",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, nil, func(c context.Context, runner *pipeline.Runner) error {
				result, err := runner.Discover(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Listed %d release(s): %d new, %d already catalogued\n", result.Listed, result.Inserted, result.Existing)
				for _, name := range result.New {
					fmt.Fprintf(out, "  + %s\n", name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "fetch [release]",
		Aliases: []string{"pull"},
		Short:   "Download one release, or every discovered release",
		Long: "Download release archives into the cache. With no argument every discovered\n" +
			"release is fetched in name order. A name argument matches exactly, or as a\n" +
			"case-insensitive fragment of a single release name.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, nil, func(c context.Context, runner *pipeline.Runner) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					release, err := runner.FetchNamed(c, args[0])
					if err != nil {
						return reportNotFound(cmd, args[0], err)
					}
					fmt.Fprintf(out, "Downloaded %s\n", release.Name)
					return nil
				}
				fetched, err := runner.FetchPending(c)
				printFetched(out, fetched)
				return err
			})
		},
	}
}

func printFetched(out io.Writer, fetched []*catalogue.Release) {
	if len(fetched) == 0 {
		fmt.Fprintln(out, "No releases waiting to download")
		return
	}
	for _, release := range fetched {
		fmt.Fprintf(out, "Downloaded %s\n", release.Name)
	}
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [release]",
		Short: "Unpack and catalogue one release, or every downloaded release",
		Long: "Unpack downloaded release archives into per-record directories and load\n" +
			"their bibliographic documents into the catalogue. Staged record archives\n" +
			"left by an interrupted load are reconciled first.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, nil, func(c context.Context, runner *pipeline.Runner) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					report, err := runner.ExtractNamed(c, args[0])
					if err != nil {
						return reportNotFound(cmd, args[0], err)
					}
					printExtractReports(out, []pipeline.ExtractReport{report})
					return nil
				}
				reports, err := runner.ExtractPending(c)
				printExtractReports(out, reports)
				return err
			})
		},
	}
}

func printExtractReports(out io.Writer, reports []pipeline.ExtractReport) {
	if len(reports) == 0 {
		fmt.Fprintln(out, "No releases waiting to extract")
		return
	}
	for _, r := range reports {
		fmt.Fprintf(out, "Extracted %s: %d record(s), %d loaded, %d existing, %d skipped, %d image(s)\n",
			r.Release, r.Records, r.Loaded, r.Existing, r.Skipped, r.Images)
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Load staged record archives left behind by an interrupted extract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, nil, func(c context.Context, runner *pipeline.Runner) error {
				report, err := runner.Reconcile(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if report.Staged == 0 {
					fmt.Fprintln(out, "No staged archives to reconcile")
					return nil
				}
				fmt.Fprintf(out, "Reconciled %d staged archive(s) across %d release(s): %d loaded, %d existing, %d skipped, %d discarded\n",
					report.Staged, report.Releases, report.Loaded, report.Existing, report.Skipped, report.Discarded)
				return nil
			})
		},
	}
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Post one random unpublished drawing",
		Long: "Pick one pending image at random, post it with its patent title and\n" +
			"reference, and mark it published.\n\n" +
			"With --dry-run nothing is posted, but the image is still marked published\n" +
			"with a synthetic post id. Use it to drain the queue without an account.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(cmd, livePoster(dryRun), func(c context.Context, runner *pipeline.Runner) error {
				outcome, err := runner.PublishOne(c)
				printSetAside(cmd.OutOrStdout(), outcome.Unavailable)
				if errors.Is(err, services.ErrNothingToPublish) {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to publish: no pending image remains")
					return nil
				}
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), outcome)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the post instead of sending it (the image is still marked published)")
	return cmd
}

func printOutcome(out io.Writer, outcome publish.Outcome) {
	fmt.Fprintf(out, "Published %s from %s (%s) as %s\n", outcome.Filename, outcome.Patent, outcome.Reference, outcome.PostID)
}

func printSetAside(out io.Writer, filenames []string) {
	for _, name := range filenames {
		fmt.Fprintf(out, "Set aside %s: file missing or unreadable\n", name)
	}
	if len(filenames) > 0 {
		fmt.Fprintln(out, "Restore the files, then run grantfeed requeue-images")
	}
}

func newRequeueImagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-images",
		Short: "Return set-aside images to the publish queue",
		Long: "Images whose files were missing or unreadable when drawn are marked\n" +
			"unavailable and skipped. Once the files are restored, requeue-images\n" +
			"makes them pending again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalogue.Store) error {
				count, err := store.RequeueUnavailableImages(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d image(s)\n", count)
				return nil
			})
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var publishOne bool
	var dryRun bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, fetch and extract in order, optionally publishing one image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var factory posterFactory
			if publishOne {
				factory = livePoster(dryRun)
			}
			return ctx.withRunner(cmd, factory, func(c context.Context, runner *pipeline.Runner) error {
				summary, err := runner.RunAll(c, publishOne)
				if asJSON {
					if jsonErr := writeJSON(cmd, summary); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Discovered %d new release(s)\n", summary.Discover.Inserted)
				for _, name := range summary.Fetched {
					fmt.Fprintf(out, "Downloaded %s\n", name)
				}
				for _, r := range summary.Extracted {
					fmt.Fprintf(out, "Extracted %s: %d loaded, %d skipped\n", r.Release, r.Loaded, r.Skipped)
				}
				switch {
				case summary.Published != nil:
					printOutcome(out, *summary.Published)
				case publishOne && err == nil:
					fmt.Fprintln(out, "Nothing to publish")
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&publishOne, "publish", false, "Publish one image after extraction")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --publish, log the post instead of sending it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
