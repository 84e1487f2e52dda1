package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	ArtistsPath string `toml:"artists_path"`
}

// Account identifies the user's own blog so self-authored posts can be
// filtered out during the scan and repost confirmation can poll the right
// page.
type Account struct {
	Name string `toml:"name"`
}

// Matcher contains configuration for the local visual-similarity service.
type Matcher struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Proxy contains configuration for the referrer-spoofing image proxy used
// for pixiv media.
type Proxy struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Browser contains configuration for the DevTools browser driver.
type Browser struct {
	DevToolsURL            string `toml:"devtools_url"`
	PageLoadTimeoutSeconds int    `toml:"page_load_timeout_seconds"`
	PollIntervalMillis     int    `toml:"poll_interval_millis"`
}

// Storage contains configuration for the persistent stores.
type Storage struct {
	QuotaBytes int64 `toml:"quota_bytes"`
}

// Workflow contains scan-loop and reblog timing configuration.
type Workflow struct {
	ScanSliceMillis       int `toml:"scan_slice_millis"`
	ScanDeadlineMinutes   int `toml:"scan_deadline_minutes"`
	FeedPollSeconds       int `toml:"feed_poll_seconds"`
	ConfirmTimeoutSeconds int `toml:"confirm_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for nonalt.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and artist registry locations
//   - Account: the user's own blog name
//   - Matcher: local visual-similarity service endpoint
//   - Proxy: referrer-spoofing image proxy endpoint
//   - Browser: DevTools endpoint and page-load timing
//   - Storage: local store quota
//   - Workflow: scan slice, session deadline, and confirmation timing
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Account  Account  `toml:"account"`
	Matcher  Matcher  `toml:"matcher"`
	Proxy    Proxy    `toml:"proxy"`
	Browser  Browser  `toml:"browser"`
	Storage  Storage  `toml:"storage"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/nonalt/config.toml")
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

	projectPath, err := filepath.Abs("nonalt.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the Unix socket path used by the agent daemon.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "nonaltd.sock")
}

// LockPath returns the lock file path guarding against concurrent daemons.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "nonaltd.lock")
}

// BlogURL returns the base URL of the user's own blog.
func (c *Config) BlogURL() string {
	return fmt.Sprintf("https://%s.tumblr.com/", c.Account.Name)
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
