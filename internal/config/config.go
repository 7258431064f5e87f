package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// BDSS contains configuration for the bulk-data listing service.
type BDSS struct {
	BaseURL        string `toml:"base_url"`
	Product        string `toml:"product"`
	FromDate       string `toml:"from_date"`
	ToDate         string `toml:"to_date"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Download contains configuration for release archive transfers.
type Download struct {
	UserAgent  string `toml:"user_agent"`
	Progress   bool   `toml:"progress"`
	MinFreeGiB int    `toml:"min_free_gib"`
}

// Publish contains configuration for the Mastodon account images are posted to.
type Publish struct {
	MastodonURL    string `toml:"mastodon_url"`
	AccessToken    string `toml:"access_token"`
	Visibility     string `toml:"visibility"`
	CaptionLimit   int    `toml:"caption_limit"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Fetch          bool   `toml:"fetch"`
	Extract        bool   `toml:"extract"`
	Publish        bool   `toml:"publish"`
	Errors         bool   `toml:"errors"`
}

// Metrics contains configuration for the node-exporter textfile written after each run.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for grantfeed.
//
// Configuration sections by subsystem:
//   - Paths: catalogue, cache, staging and record directories
//   - BDSS: release listing endpoint and query
//   - Download: archive transfer behaviour
//   - Publish: Mastodon account settings
//   - Notifications: ntfy push notification settings
//   - Metrics: optional Prometheus textfile output
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	BDSS          BDSS          `toml:"bdss"`
	Download      Download      `toml:"download"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/grantfeed/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("grantfeed.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data layout (cache, staging root, records) and the log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.CacheDir(), c.ReleasesDir(), c.PatentsDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogueDBPath returns the SQLite catalogue location.
func (c *Config) CatalogueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "catalogue.db")
}

// CacheDir holds downloaded release archives.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Paths.DataDir, "cache")
}

// ReleasesDir is the root of the per-release staging directories.
func (c *Config) ReleasesDir() string {
	return filepath.Join(c.Paths.DataDir, "releases")
}

// ReleaseStagingDir returns the staging directory owned by one release.
func (c *Config) ReleaseStagingDir(releaseID int64) string {
	return filepath.Join(c.ReleasesDir(), "release-"+strconv.FormatInt(releaseID, 10))
}

// PatentsDir holds the flat per-record directories.
func (c *Config) PatentsDir() string {
	return filepath.Join(c.Paths.DataDir, "patents")
}

// LockPath is the advisory lock file serializing mutating invocations.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "grantfeed.lock")
}

// LogFilePath is the file every invocation appends to, or "" when no log
// directory is configured.
func (c *Config) LogFilePath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "grantfeed.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
