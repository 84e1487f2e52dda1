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
	c.normalizeAccount()
	c.normalizeEndpoints()
	c.normalizeTimings()
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
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtistsPath) == "" {
		c.Paths.ArtistsPath = defaultArtistsPath
	}
	if c.Paths.ArtistsPath, err = expandPath(c.Paths.ArtistsPath); err != nil {
		return fmt.Errorf("paths.artists_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAccount() {
	if c.Account.Name == "" {
		if value, ok := os.LookupEnv("NONALT_ACCOUNT"); ok {
			c.Account.Name = value
		}
	}
	c.Account.Name = strings.TrimSpace(c.Account.Name)
}

func (c *Config) normalizeEndpoints() {
	c.Matcher.BaseURL = strings.TrimRight(strings.TrimSpace(c.Matcher.BaseURL), "/")
	if c.Matcher.BaseURL == "" {
		c.Matcher.BaseURL = defaultMatcherBaseURL
	}
	c.Proxy.BaseURL = strings.TrimRight(strings.TrimSpace(c.Proxy.BaseURL), "/")
	if c.Proxy.BaseURL == "" {
		c.Proxy.BaseURL = defaultProxyBaseURL
	}
	c.Browser.DevToolsURL = strings.TrimSpace(c.Browser.DevToolsURL)
	if c.Browser.DevToolsURL == "" {
		c.Browser.DevToolsURL = defaultDevToolsURL
	}
}

func (c *Config) normalizeTimings() {
	if c.Matcher.TimeoutSeconds <= 0 {
		c.Matcher.TimeoutSeconds = defaultMatcherTimeoutSeconds
	}
	if c.Proxy.TimeoutSeconds <= 0 {
		c.Proxy.TimeoutSeconds = defaultProxyTimeoutSeconds
	}
	if c.Browser.PageLoadTimeoutSeconds <= 0 {
		c.Browser.PageLoadTimeoutSeconds = defaultPageLoadTimeout
	}
	if c.Browser.PollIntervalMillis <= 0 {
		c.Browser.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Storage.QuotaBytes <= 0 {
		c.Storage.QuotaBytes = defaultQuotaBytes
	}
	if c.Workflow.ScanSliceMillis <= 0 {
		c.Workflow.ScanSliceMillis = defaultScanSliceMillis
	}
	if c.Workflow.ScanDeadlineMinutes <= 0 {
		c.Workflow.ScanDeadlineMinutes = defaultScanDeadlineMinutes
	}
	if c.Workflow.FeedPollSeconds <= 0 {
		c.Workflow.FeedPollSeconds = defaultFeedPollSeconds
	}
	if c.Workflow.ConfirmTimeoutSeconds <= 0 {
		c.Workflow.ConfirmTimeoutSeconds = defaultConfirmTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
