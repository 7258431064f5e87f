package preflight

import (
	"context"

	"grantfeed/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the checks that apply to the given config.
// Publisher checks run only when a Mastodon endpoint is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Cache directory", cfg.CacheDir()),
		CheckDirectoryAccess("Patents directory", cfg.PatentsDir()),
		CheckFreeSpace("Free space", cfg.CacheDir(), uint64(cfg.Download.MinFreeGiB)<<30),
		CheckListing(ctx, cfg.BDSS.BaseURL, cfg.Download.UserAgent),
	}

	if cfg.Publish.MastodonURL != "" {
		results = append(results, CheckMastodon(ctx, cfg.Publish.MastodonURL, cfg.Publish.AccessToken))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
