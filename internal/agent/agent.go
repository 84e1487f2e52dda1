package agent

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"nonalt/internal/browser"
	"nonalt/internal/config"
	"nonalt/internal/fetch"
	"nonalt/internal/gate"
	"nonalt/internal/logging"
	"nonalt/internal/match"
	"nonalt/internal/msg"
	"nonalt/internal/reblog"
	"nonalt/internal/resolve"
	"nonalt/internal/scan"
	"nonalt/internal/services"
	"nonalt/internal/storage"
)

const dashboardURL = "https://www.tumblr.com/dashboard"

// Agent owns the persistent stores and the preflight pipeline and serves
// the message protocol over the unix socket.
type Agent struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.Store
	registry *reblog.Registry

	browser   browser.Browser
	fetcher   *fetch.Fetcher
	matcher   *match.Client
	resolvers []resolve.Resolver
	gate      *gate.Gate
	executor  *reblog.Executor

	lock   *flock.Flock
	server *msg.Server

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	scanCancel context.CancelFunc
	scanDone   chan struct{}
}

// New composes the agent from configuration. The browser connection is
// established in Start, not here, so construction works while the browser
// is down.
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := reblog.LoadRegistry(cfg.Paths.ArtistsPath)
	if err != nil {
		store.Close()
		return nil, services.Wrap(services.ErrConfiguration, "agent", "new", "artists registry", err)
	}

	fetcher := fetch.NewFetcher(cfg.Proxy.BaseURL, seconds(cfg.Proxy.TimeoutSeconds, 60*time.Second),
		fetch.WithLogger(logging.NewComponentLogger(logger, "fetch")))
	matcher := match.NewClient(cfg.Matcher.BaseURL, seconds(cfg.Matcher.TimeoutSeconds, 30*time.Second),
		match.WithLogger(logging.NewComponentLogger(logger, "match")))

	return &Agent{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "agent"),
		store:    store,
		registry: registry,
		fetcher:  fetcher,
		matcher:  matcher,
		resolvers: []resolve.Resolver{
			resolve.NewPixiv(fetcher, logging.NewComponentLogger(logger, "pixiv")),
			resolve.NewTwitter(fetcher, logging.NewComponentLogger(logger, "twitter")),
		},
		gate: gate.New(store, logging.NewComponentLogger(logger, "gate")),
		lock: flock.New(cfg.LockPath()),
	}, nil
}

// Start acquires the single-instance lock, connects to the browser, and
// begins serving the protocol socket.
func (a *Agent) Start(ctx context.Context) error {
	ok, err := a.lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "agent", "start", "acquire lock", err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "agent", "start", "another agent instance is running", nil)
	}

	devtools, err := browser.Connect(ctx, a.cfg.Browser.DevToolsURL,
		browser.WithLogger(logging.NewComponentLogger(a.logger, "browser")),
		browser.WithPageLoadTimeout(seconds(a.cfg.Browser.PageLoadTimeoutSeconds, time.Minute)),
		browser.WithPollInterval(millis(a.cfg.Browser.PollIntervalMillis, 100*time.Millisecond)))
	if err != nil {
		a.lock.Unlock()
		return err
	}
	a.browser = devtools
	a.executor = reblog.NewExecutor(a.store, a.registry, a.browser, a.cfg.BlogURL(),
		reblog.WithLogger(logging.NewComponentLogger(a.logger, "reblog")),
		reblog.WithConfirmTimeout(seconds(a.cfg.Workflow.ConfirmTimeoutSeconds, time.Minute)))

	a.baseCtx, a.cancelBase = context.WithCancel(context.Background())

	server, err := msg.NewServer(a.cfg.SocketPath(), a, a.logger)
	if err != nil {
		a.cancelBase()
		a.lock.Unlock()
		return err
	}
	a.server = server
	go func() {
		if err := server.Serve(); err != nil {
			a.logger.Error("socket server stopped", logging.Error(err))
		}
	}()

	a.logger.Info("agent started",
		logging.String("socket", a.cfg.SocketPath()),
		logging.String("db", a.store.Path()))
	return nil
}

// Stop cancels any running scan, closes the socket, and releases the lock.
func (a *Agent) Stop() {
	a.stopScan()
	if a.cancelBase != nil {
		a.cancelBase()
	}
	if a.server != nil {
		if err := a.server.Close(); err != nil {
			a.logger.Warn("socket close failed", logging.Error(err))
		}
	}
	if err := a.lock.Unlock(); err != nil {
		a.logger.Warn("lock release failed", logging.Error(err))
	}
	a.logger.Info("agent stopped")
}

// Close releases the store. Call after Stop.
func (a *Agent) Close() error {
	return a.store.Close()
}

// scanning reports whether a scan session is active.
func (a *Agent) scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCancel != nil
}

// startScan launches the scan loop against the dashboard in its own
// goroutine. Only one session runs at a time.
func (a *Agent) startScan() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanCancel != nil {
		return false, "a scan session is already running"
	}

	ctx, cancel := context.WithCancel(a.baseCtx)
	done := make(chan struct{})
	a.scanCancel = cancel
	a.scanDone = done

	go func() {
		defer close(done)
		defer func() {
			a.mu.Lock()
			a.scanCancel = nil
			a.scanDone = nil
			a.mu.Unlock()
		}()

		tab, err := a.browser.OpenTab(ctx, dashboardURL)
		if err != nil {
			a.logger.Error("dashboard tab failed", logging.Error(err))
			return
		}
		defer tab.Close()

		feed := scan.NewDashboard(tab, scan.WithDashboardLogger(logging.NewComponentLogger(a.logger, "feed")))
		runner := scan.NewRunner(feed, localDispatcher{agent: a}, a.cfg.Account.Name,
			scan.WithLogger(logging.NewComponentLogger(a.logger, "scan")),
			scan.WithScanSlice(millis(a.cfg.Workflow.ScanSliceMillis, time.Second)),
			scan.WithDeadline(minutes(a.cfg.Workflow.ScanDeadlineMinutes, 4*time.Hour)),
			scan.WithFeedPoll(seconds(a.cfg.Workflow.FeedPollSeconds, 5*time.Second)))
		if _, err := runner.Run(ctx); err != nil {
			a.logger.Error("scan session failed", logging.Error(err))
		}
	}()
	return true, "scan session started"
}

// stopScan cancels the running session and waits for it to drain.
func (a *Agent) stopScan() bool {
	a.mu.Lock()
	cancel := a.scanCancel
	done := a.scanDone
	a.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// localDispatcher routes the scan runner's requests straight into the
// in-process preflight pipeline.
type localDispatcher struct {
	agent *Agent
}

func (d localDispatcher) PreflightOnPost(ctx context.Context, req msg.PreflightOnPostRequest) (msg.PreflightOnPostResponse, error) {
	var resp msg.PreflightOnPostResponse
	d.agent.preflight(ctx, req, &resp)
	return resp, nil
}

// PID returns the daemon process id for status reporting.
func (a *Agent) PID() int {
	return os.Getpid()
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func millis(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Millisecond
}

func minutes(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Minute
}
