package config

const (
	defaultDataDir               = "~/.local/share/nonalt"
	defaultLogDir                = "~/.local/share/nonalt/logs"
	defaultArtistsPath           = "~/.config/nonalt/artists.yaml"
	defaultMatcherBaseURL        = "http://localhost:5000"
	defaultMatcherTimeoutSeconds = 30
	defaultProxyBaseURL          = "http://localhost:5000"
	defaultProxyTimeoutSeconds   = 30
	defaultDevToolsURL           = "ws://127.0.0.1:9222"
	defaultPageLoadTimeout       = 60
	defaultPollIntervalMillis    = 100
	// Matches the quota of the browser-local store this tool originally
	// persisted into.
	defaultQuotaBytes            = 10 * 1024 * 1024
	defaultScanSliceMillis       = 1000
	defaultScanDeadlineMinutes   = 60
	defaultFeedPollSeconds       = 1
	defaultConfirmTimeoutSeconds = 60
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			ArtistsPath: defaultArtistsPath,
		},
		Matcher: Matcher{
			BaseURL:        defaultMatcherBaseURL,
			TimeoutSeconds: defaultMatcherTimeoutSeconds,
		},
		Proxy: Proxy{
			BaseURL:        defaultProxyBaseURL,
			TimeoutSeconds: defaultProxyTimeoutSeconds,
		},
		Browser: Browser{
			DevToolsURL:            defaultDevToolsURL,
			PageLoadTimeoutSeconds: defaultPageLoadTimeout,
			PollIntervalMillis:     defaultPollIntervalMillis,
		},
		Storage: Storage{
			QuotaBytes: defaultQuotaBytes,
		},
		Workflow: Workflow{
			ScanSliceMillis:       defaultScanSliceMillis,
			ScanDeadlineMinutes:   defaultScanDeadlineMinutes,
			FeedPollSeconds:       defaultFeedPollSeconds,
			ConfirmTimeoutSeconds: defaultConfirmTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
