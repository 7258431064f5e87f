package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"grantfeed/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "grantfeed")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.CatalogueDBPath() != filepath.Join(wantData, "catalogue.db") {
		t.Fatalf("unexpected catalogue path: %q", cfg.CatalogueDBPath())
	}
	if cfg.ReleaseStagingDir(7) != filepath.Join(wantData, "releases", "release-7") {
		t.Fatalf("unexpected staging dir: %q", cfg.ReleaseStagingDir(7))
	}
	if cfg.BDSS.Product != "PTGRDT" {
		t.Fatalf("unexpected product: %q", cfg.BDSS.Product)
	}
	if cfg.Publish.CaptionLimit != config.Default().Publish.CaptionLimit {
		t.Fatalf("unexpected caption limit: %d", cfg.Publish.CaptionLimit)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.CacheDir(), cfg.ReleasesDir(), cfg.PatentsDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "grantfeed.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		BDSS struct {
			FromDate string `toml:"from_date"`
			ToDate   string `toml:"to_date"`
		} `toml:"bdss"`
		Publish struct {
			MastodonURL string `toml:"mastodon_url"`
			Visibility  string `toml:"visibility"`
		} `toml:"publish"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.BDSS.FromDate = "2002-01"
	custom.BDSS.ToDate = "2018-02"
	custom.Publish.MastodonURL = "https://mastodon.example/"
	custom.Publish.Visibility = " Unlisted "
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.DataDir != custom.Paths.DataDir {
		t.Fatalf("expected data dir from file, got %q", cfg.Paths.DataDir)
	}
	if cfg.BDSS.FromDate != "2002-01" || cfg.BDSS.ToDate != "2018-02" {
		t.Fatalf("unexpected date window: %q..%q", cfg.BDSS.FromDate, cfg.BDSS.ToDate)
	}
	if cfg.Publish.MastodonURL != "https://mastodon.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Publish.MastodonURL)
	}
	if cfg.Publish.Visibility != "unlisted" {
		t.Fatalf("expected normalized visibility, got %q", cfg.Publish.Visibility)
	}
	if cfg.BDSS.BaseURL != config.Default().BDSS.BaseURL {
		t.Fatalf("expected default base url, got %q", cfg.BDSS.BaseURL)
	}
}

func TestAccessTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("GRANTFEED_ACCESS_TOKEN", "env-token")
	configPath := filepath.Join(t.TempDir(), "missing.toml")

	cfg, _, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Publish.AccessToken != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Publish.AccessToken)
	}
	cfg.Publish.MastodonURL = "https://mastodon.example"
	if err := cfg.RequirePublisher(); err != nil {
		t.Fatalf("RequirePublisher returned error: %v", err)
	}
}

func TestRequirePublisherNeedsURL(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.AccessToken = "token"
	err := cfg.RequirePublisher()
	if err == nil {
		t.Fatal("expected error without mastodon url")
	}
	if !strings.Contains(err.Error(), "--dry-run") {
		t.Fatalf("expected dry-run hint, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "grantfeed") {
		t.Fatalf("expected data dir to contain grantfeed, got %q", cfg.Paths.DataDir)
	}
	if cfg.BDSS.Product != "PTGRDT" {
		t.Fatalf("expected sample product PTGRDT, got %q", cfg.BDSS.Product)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.BDSS.RequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}

	cfg = config.Default()
	cfg.BDSS.FromDate = "2018"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed from_date")
	}

	cfg = config.Default()
	cfg.BDSS.FromDate = "2018-05"
	cfg.BDSS.ToDate = "2018-01"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when to_date precedes from_date")
	}

	cfg = config.Default()
	cfg.Publish.Visibility = "everyone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown visibility")
	}

	cfg = config.Default()
	cfg.Publish.CaptionLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero caption limit")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
