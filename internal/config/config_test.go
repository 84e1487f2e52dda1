package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"nonalt/internal/config"
)

func TestDefaultValidatesWithAccount(t *testing.T) {
	cfg := config.Default()
	cfg.Account.Name = "example"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresAccount(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when account.name missing")
	}
}

func TestValidateRejectsBadAccountName(t *testing.T) {
	cfg := config.Default()
	cfg.Account.Name = "Bad Name!"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid account name")
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[account]
name = "example"

[matcher]
base_url = "http://localhost:9000/"

[workflow]
scan_slice_millis = 250
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config to resolve, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Account.Name != "example" {
		t.Fatalf("unexpected account name %q", cfg.Account.Name)
	}
	if cfg.Matcher.BaseURL != "http://localhost:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Matcher.BaseURL)
	}
	if cfg.Workflow.ScanSliceMillis != 250 {
		t.Fatalf("unexpected scan slice %d", cfg.Workflow.ScanSliceMillis)
	}
	if cfg.Workflow.ConfirmTimeoutSeconds != 60 {
		t.Fatalf("expected default confirm timeout, got %d", cfg.Workflow.ConfirmTimeoutSeconds)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected data dir expanded, got %q", cfg.Paths.DataDir)
	}
}

func TestBlogURL(t *testing.T) {
	cfg := config.Default()
	cfg.Account.Name = "example"
	if got := cfg.BlogURL(); got != "https://example.tumblr.com/" {
		t.Fatalf("unexpected blog URL %q", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("NONALT_ACCOUNT", "envblog")
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Account.Name != "envblog" {
		t.Fatalf("expected env fallback, got %q", cfg.Account.Name)
	}
}
