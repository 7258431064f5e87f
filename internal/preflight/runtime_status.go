package preflight

import (
	"context"
	"strings"

	"grantfeed/internal/config"
)

// CheckPublisherFromConfig evaluates the publisher configuration and, when
// complete, its connectivity. A missing endpoint is reported as dry-run only.
func CheckPublisherFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Publisher"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Publish.MastodonURL) == "" {
		return Result{Name: name, Detail: "Not configured (dry-run only)"}
	}
	if strings.TrimSpace(cfg.Publish.AccessToken) == "" {
		return Result{Name: name, Detail: "Missing access token"}
	}
	check := CheckMastodon(ctx, cfg.Publish.MastodonURL, cfg.Publish.AccessToken)
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}

// CheckNotificationsFromConfig reports whether ntfy delivery is enabled.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Notifications.NtfyTopic}
}
