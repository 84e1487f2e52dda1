package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var accountNamePattern = regexp.MustCompile(`^[0-9a-z-]+$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAccount(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAccount() error {
	if c.Account.Name == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/nonalt/config.toml"
		}
		return fmt.Errorf("account.name is required. Set NONALT_ACCOUNT env var or edit %s (create with 'nonalt config init')", defaultPath)
	}
	if !accountNamePattern.MatchString(c.Account.Name) {
		return fmt.Errorf("account.name %q is not a valid blog name", c.Account.Name)
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	for _, endpoint := range []struct {
		key   string
		value string
	}{
		{"matcher.base_url", c.Matcher.BaseURL},
		{"proxy.base_url", c.Proxy.BaseURL},
	} {
		parsed, err := url.Parse(endpoint.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s %q is not a valid URL", endpoint.key, endpoint.value)
		}
	}
	parsed, err := url.Parse(c.Browser.DevToolsURL)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss" && parsed.Scheme != "http") {
		return fmt.Errorf("browser.devtools_url %q is not a valid DevTools endpoint", c.Browser.DevToolsURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
