package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBDSS()
	c.normalizeDownload()
	c.normalizePublish()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBDSS() {
	c.BDSS.BaseURL = strings.TrimSpace(c.BDSS.BaseURL)
	if c.BDSS.BaseURL == "" {
		c.BDSS.BaseURL = defaultBDSSBaseURL
	}
	c.BDSS.Product = strings.TrimSpace(c.BDSS.Product)
	if c.BDSS.Product == "" {
		c.BDSS.Product = defaultBDSSProduct
	}
	c.BDSS.FromDate = strings.TrimSpace(c.BDSS.FromDate)
	c.BDSS.ToDate = strings.TrimSpace(c.BDSS.ToDate)
	if c.BDSS.RequestTimeout <= 0 {
		c.BDSS.RequestTimeout = defaultBDSSRequestTimeout
	}
}

func (c *Config) normalizeDownload() {
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultUserAgent
	}
	if c.Download.MinFreeGiB < 0 {
		c.Download.MinFreeGiB = 0
	}
}

func (c *Config) normalizePublish() {
	c.Publish.MastodonURL = strings.TrimRight(strings.TrimSpace(c.Publish.MastodonURL), "/")
	c.Publish.AccessToken = strings.TrimSpace(c.Publish.AccessToken)
	if c.Publish.AccessToken == "" {
		if value, ok := os.LookupEnv("GRANTFEED_ACCESS_TOKEN"); ok {
			c.Publish.AccessToken = strings.TrimSpace(value)
		}
	}
	c.Publish.Visibility = strings.ToLower(strings.TrimSpace(c.Publish.Visibility))
	if c.Publish.Visibility == "" {
		c.Publish.Visibility = defaultVisibility
	}
	if c.Publish.RequestTimeout <= 0 {
		c.Publish.RequestTimeout = defaultPublishRequestTimeout
	}
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
