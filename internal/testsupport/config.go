package testsupport

import (
	"path/filepath"
	"testing"

	"nonalt/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Account.Name = "test-account"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ArtistsPath = filepath.Join(base, "artists.yaml")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAccount sets the account name on the test config.
func WithAccount(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Account.Name = name
	}
}

// WithQuotaBytes overrides the storage quota on the test config.
func WithQuotaBytes(quota int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.QuotaBytes = quota
	}
}

// WithMatcherURL points the matcher client at the provided base URL,
// typically an httptest server.
func WithMatcherURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matcher.BaseURL = url
	}
}

// WithProxyURL points the image proxy client at the provided base URL.
func WithProxyURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Proxy.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
