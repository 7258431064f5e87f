package testsupport

import (
	"path/filepath"
	"testing"

	"grantfeed/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Progress bars are disabled and the BDSS endpoint points nowhere until a
// test overrides it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.BDSS.BaseURL = "http://127.0.0.1:0"
	cfgVal.Download.Progress = false
	cfgVal.Download.MinFreeGiB = 0
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBDSSURL points discovery at a test server.
func WithBDSSURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.BDSS.BaseURL = url
	}
}

// WithMastodon configures the publisher endpoint and token.
func WithMastodon(url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.MastodonURL = url
		b.cfg.Publish.AccessToken = token
	}
}

// WithNtfyTopic enables notifications against the provided endpoint.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
		b.cfg.Notifications.RequestTimeout = 5
	}
}

// WithMetricsTextfile writes metrics to a file under the test temp dir.
func WithMetricsTextfile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, name)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
