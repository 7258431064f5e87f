package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
	"grantfeed/internal/preflight"
)

type statusReport struct {
	Catalogue     catalogue.Stats  `json:"catalogue"`
	DataDir       string           `json:"data_dir"`
	Publisher     preflight.Result `json:"publisher"`
	Notifications preflight.Result `json:"notifications"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalogue counts and publisher configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalogue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				report := statusReport{
					Catalogue:     stats,
					DataDir:       cfg.Paths.DataDir,
					Publisher:     preflight.CheckPublisherFromConfig(cmd.Context(), cfg),
					Notifications: preflight.CheckNotificationsFromConfig(cfg),
				}
				if asJSON {
					return writeJSON(cmd, report)
				}

				rows := [][]string{
					{"Data directory", report.DataDir},
				}
				for _, status := range catalogue.AllReleaseStatuses() {
					rows = append(rows, []string{"Releases " + string(status), strconv.Itoa(stats.Releases[status])})
				}
				rows = append(rows,
					[]string{"Patents", strconv.Itoa(stats.Patents)},
					[]string{"Images pending", strconv.Itoa(stats.ImagesPending)},
					[]string{"Images published", strconv.Itoa(stats.ImagesPublished)},
					[]string{"Images unavailable", strconv.Itoa(stats.ImagesUnavailable)},
					[]string{"Queue exhausted", yesNo(stats.Patents > 0 && stats.ImagesPending == 0)},
					[]string{report.Publisher.Name, report.Publisher.Detail},
					[]string{report.Notifications.Name, report.Notifications.Detail},
				)
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Item", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReleasesCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "releases",
		Short: "List catalogued releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wanted := make(map[catalogue.ReleaseStatus]struct{}, len(statusFilters))
			for _, raw := range statusFilters {
				status, err := catalogue.ParseReleaseStatus(raw)
				if err != nil {
					return err
				}
				wanted[status] = struct{}{}
			}

			return ctx.withStore(func(_ *config.Config, store *catalogue.Store) error {
				summaries, err := store.ReleaseSummaries(cmd.Context())
				if err != nil {
					return err
				}
				filtered := summaries[:0]
				for _, s := range summaries {
					if _, ok := wanted[s.Status]; len(wanted) == 0 || ok {
						filtered = append(filtered, s)
					}
				}
				if asJSON {
					if filtered == nil {
						filtered = []catalogue.ReleaseSummary{}
					}
					return writeJSON(cmd, filtered)
				}
				if len(filtered) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No releases")
					return nil
				}
				rows := make([][]string, 0, len(filtered))
				for _, s := range filtered {
					rows = append(rows, []string{
						s.Name,
						string(s.Status),
						strconv.Itoa(s.Patents),
						strconv.Itoa(s.Images),
						strconv.Itoa(s.Published),
						humanize.Time(s.UpdatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Release", "Status", "Patents", "Images", "Published", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (discovered, downloaded, extracted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"preflight"},
		Short:   "Check directories, free space and upstream reachability",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "ok"
					if !r.Passed {
						state = "FAIL"
					}
					rows = append(rows, []string{r.Name, state, r.Detail})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft}))
			}
			if !preflight.AllPassed(results) {
				var failed []string
				for _, r := range results {
					if !r.Passed {
						failed = append(failed, r.Name)
					}
				}
				return errors.New("checks failed: " + strings.Join(failed, ", "))
			}
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), "All checks passed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
