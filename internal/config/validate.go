package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBDSS(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"bdss.request_timeout":          c.BDSS.RequestTimeout,
		"publish.request_timeout":       c.Publish.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBDSS() error {
	if _, err := url.ParseRequestURI(c.BDSS.BaseURL); err != nil {
		return fmt.Errorf("bdss.base_url is not a valid URL: %w", err)
	}
	var from, to time.Time
	var err error
	if c.BDSS.FromDate != "" {
		if from, err = time.Parse("2006-01", c.BDSS.FromDate); err != nil {
			return fmt.Errorf("bdss.from_date must use YYYY-MM, got %q", c.BDSS.FromDate)
		}
	}
	if c.BDSS.ToDate != "" {
		if to, err = time.Parse("2006-01", c.BDSS.ToDate); err != nil {
			return fmt.Errorf("bdss.to_date must use YYYY-MM, got %q", c.BDSS.ToDate)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return errors.New("bdss.to_date must not be before bdss.from_date")
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Visibility {
	case "public", "unlisted", "private", "direct":
	default:
		return fmt.Errorf("publish.visibility must be one of public, unlisted, private, direct (got %q)", c.Publish.Visibility)
	}
	if c.Publish.CaptionLimit <= 0 {
		return errors.New("publish.caption_limit must be positive")
	}
	if c.Publish.MastodonURL != "" {
		if _, err := url.ParseRequestURI(c.Publish.MastodonURL); err != nil {
			return fmt.Errorf("publish.mastodon_url is not a valid URL: %w", err)
		}
	}
	return nil
}

// RequirePublisher reports whether a live Mastodon account is configured.
func (c *Config) RequirePublisher() error {
	if c.Publish.MastodonURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/grantfeed/config.toml"
		}
		return fmt.Errorf("publish.mastodon_url is required. Edit %s (create with 'grantfeed config init') or pass --dry-run", defaultPath)
	}
	if c.Publish.AccessToken == "" {
		return errors.New("publish.access_token is required. Set GRANTFEED_ACCESS_TOKEN or edit the config file")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
