package reblog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"nonalt/internal/browser"
	"nonalt/internal/logging"
	"nonalt/internal/services"
	"nonalt/internal/storage"
)

var postIDPattern = regexp.MustCompile(`(\d+)$`)

// HTTPDoer issues HTTP requests, usually an *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Outcome classifies what DrainOnce did with the queue head.
type Outcome int

const (
	// OutcomeEmpty means the queue had no entry.
	OutcomeEmpty Outcome = iota
	// OutcomeSkipped means every image was already in history, so the entry
	// was popped without reposting.
	OutcomeSkipped
	// OutcomeDropped means the entry was popped because its repost cannot be
	// prepared, typically after key extraction exhausted its retries.
	OutcomeDropped
	// OutcomeCommitted means the repost was issued and confirmed.
	OutcomeCommitted
)

// Executor drains the repost queue head by head: skip already-reposted
// entries, extract credentials, commit the repost, confirm it on the user's
// own blog page, then record history and pop the entry.
type Executor struct {
	store      *storage.Store
	registry   *Registry
	browser    browser.Browser
	committer  Committer
	client     HTTPDoer
	extractors []KeyExtractor
	logger     *slog.Logger

	blogURL        string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	retryAttempts  int
}

// ExecutorOption adjusts executor behavior.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCommitter replaces the browser-driven committer.
func WithCommitter(committer Committer) ExecutorOption {
	return func(e *Executor) {
		if committer != nil {
			e.committer = committer
		}
	}
}

// WithHTTPClient replaces the confirmation-poll HTTP client.
func WithHTTPClient(client HTTPDoer) ExecutorOption {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithKeyExtractors replaces the credential extraction strategy list.
func WithKeyExtractors(extractors ...KeyExtractor) ExecutorOption {
	return func(e *Executor) {
		if len(extractors) > 0 {
			e.extractors = extractors
		}
	}
}

// WithConfirmTimeout sets the repost confirmation deadline.
func WithConfirmTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.confirmTimeout = d
		}
	}
}

// WithPollInterval sets the confirmation polling interval.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithRetryAttempts bounds credential extraction retries.
func WithRetryAttempts(attempts int) ExecutorOption {
	return func(e *Executor) {
		if attempts > 0 {
			e.retryAttempts = attempts
		}
	}
}

// NewExecutor builds an executor. blogURL is the user's own blog page, which
// the confirmation poll reads.
func NewExecutor(store *storage.Store, registry *Registry, b browser.Browser, blogURL string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:          store,
		registry:       registry,
		browser:        b,
		client:         &http.Client{Timeout: 30 * time.Second},
		extractors:     []KeyExtractor{PageLinksExtractor{}, FrameExtractor{}},
		logger:         logging.NewNop(),
		blogURL:        blogURL,
		confirmTimeout: time.Minute,
		pollInterval:   2 * time.Second,
		retryAttempts:  services.DefaultRetryAttempts,
	}
	e.committer = NewTabCommitter(b)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drain processes queue entries until the queue is empty or an entry fails
// in a way that leaves its repost state unknown.
func (e *Executor) Drain(ctx context.Context) (committed, skipped int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return committed, skipped, err
		}
		outcome, _, err := e.DrainOnce(ctx)
		if err != nil {
			return committed, skipped, err
		}
		switch outcome {
		case OutcomeEmpty:
			return committed, skipped, nil
		case OutcomeCommitted:
			committed++
		case OutcomeSkipped, OutcomeDropped:
			skipped++
		}
	}
}

// DrainOnce handles the current queue head. A non-nil error means the entry
// was left in place because the repost may or may not have landed.
func (e *Executor) DrainOnce(ctx context.Context) (Outcome, *storage.QueueEntry, error) {
	entry, err := e.store.PeekQueue(ctx)
	if err != nil {
		return OutcomeEmpty, nil, err
	}
	if entry == nil {
		return OutcomeEmpty, nil, nil
	}
	logger := e.logger.With(logging.String("post_url", entry.PostURL))

	alreadyDone, err := e.allInHistory(ctx, entry.ImageURLs)
	if err != nil {
		return OutcomeEmpty, entry, err
	}
	if alreadyDone {
		logger.Info("already reposted, skipping")
		if _, err := e.store.DequeueHead(ctx); err != nil {
			return OutcomeEmpty, entry, err
		}
		return OutcomeSkipped, entry, nil
	}

	m := postIDPattern.FindStringSubmatch(entry.PostURL)
	if m == nil {
		logger.Error("post URL carries no numeric id, dropping entry")
		if _, err := e.store.DequeueHead(ctx); err != nil {
			return OutcomeEmpty, entry, err
		}
		return OutcomeDropped, entry, nil
	}
	postID := m[1]

	tags := e.registry.TagsFor(e.artistURLs(ctx, entry))

	creds, err := extractCredentials(ctx, e.browser, e.extractors, entry.PostURL, postID, e.retryAttempts, logger)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeEmpty, entry, err
		}
		logger.Error("key extraction exhausted retries, dropping entry", logging.Error(err))
		if _, err := e.store.DequeueHead(ctx); err != nil {
			return OutcomeEmpty, entry, err
		}
		return OutcomeDropped, entry, nil
	}

	if err := e.committer.Commit(ctx, CommitRequest{
		PostURL:     entry.PostURL,
		PostID:      postID,
		Credentials: creds,
		Tags:        tags,
	}); err != nil {
		return OutcomeEmpty, entry, services.Wrap(services.ErrTransient, "reblog", "commit", "repost not issued", err)
	}

	if err := e.confirm(ctx, entry.PostURL); err != nil {
		return OutcomeEmpty, entry, err
	}

	if err := e.store.RecordHistory(ctx, entry.ImageURLs, time.Now()); err != nil {
		return OutcomeEmpty, entry, err
	}
	if _, err := e.store.DequeueHead(ctx); err != nil {
		return OutcomeEmpty, entry, err
	}
	logger.Info("repost confirmed", logging.Int("images", len(entry.ImageURLs)))
	return OutcomeCommitted, entry, nil
}

func (e *Executor) allInHistory(ctx context.Context, imageURLs []string) (bool, error) {
	for _, imageURL := range imageURLs {
		ok, err := e.store.HistoryContains(ctx, imageURL)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// artistURLs collects the distinct artist URLs recorded for the post during
// preflight, in first-seen order.
func (e *Executor) artistURLs(ctx context.Context, entry *storage.QueueEntry) []string {
	images, err := e.store.PostImagesFor(ctx, entry.PostURL)
	if err != nil {
		e.logger.Warn("post images lookup failed", logging.Error(err))
		return nil
	}
	seen := make(map[string]struct{}, len(images))
	var urls []string
	for _, image := range images {
		if image.ArtistURL == "" {
			continue
		}
		if _, ok := seen[image.ArtistURL]; ok {
			continue
		}
		seen[image.ArtistURL] = struct{}{}
		urls = append(urls, image.ArtistURL)
	}
	return urls
}

// confirm polls the user's own blog page until the post URL shows up in its
// body, proving the repost landed.
func (e *Executor) confirm(ctx context.Context, postURL string) error {
	deadline := time.Now().Add(e.confirmTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := e.fetchBlogPage(ctx)
		if err != nil {
			e.logger.Warn("confirmation poll failed", logging.Error(err))
		} else if strings.Contains(body, postURL) {
			return nil
		}
		if time.Now().After(deadline) {
			return services.Wrap(services.ErrTimeout, "reblog", "confirm", "repost not observed on own blog", nil)
		}
		timer := time.NewTimer(e.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Executor) fetchBlogPage(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.blogURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reblog", "confirm", "build request", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "reblog", "confirm", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrTransient, "reblog", "confirm", resp.Status, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "reblog", "confirm", "read body", err)
	}
	return string(body), nil
}
