package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"nonalt/internal/browser"
	"nonalt/internal/fetch"
	"nonalt/internal/logging"
	"nonalt/internal/match"
	"nonalt/internal/services"
)

var (
	twitterWrappedStatusPattern = regexp.MustCompile(`^https://href\.li/\?(https://twitter\.com/[^/]+/status/\d+)`)
	twitterWrappedShortPattern  = regexp.MustCompile(`^https://href\.li/\?(https://t\.co/[0-9A-Za-z]+)`)
	twitterBareStatusPattern    = regexp.MustCompile(`https://twitter\.com/[^/]+/status/\d+`)
	twitterBareShortPattern     = regexp.MustCompile(`https://t\.co/[0-9A-Za-z]+`)
	twitterShortURLPattern      = regexp.MustCompile(`^https://t\.co/[0-9A-Za-z]+$`)
	twitterStatusInBodyPattern  = regexp.MustCompile(`(https://twitter\.com/[^/]+/status/\d+)`)
	twitterArtistPattern        = regexp.MustCompile(`^https://twitter\.com/[0-9A-Z_a-z]+`)
	twitterImagePattern         = regexp.MustCompile(`^(https://pbs\.twimg\.com/media/[^?]+\?format=[^&]+)&name=.+`)
)

// tweetNotFoundMarker appears in the page body when a status was deleted.
const tweetNotFoundMarker = "このページは存在しません。他のページを検索してみましょう。"

const documentInnerTextJS = `document.body.innerText`

const documentImagesJS = `Array.from(document.images).map((i) => i.currentSrc)`

// Twitter resolves status links, including redirector-wrapped and shortened
// forms, into original-resolution media images.
type Twitter struct {
	fetcher      *fetch.Fetcher
	client       fetch.HTTPDoer
	logger       *slog.Logger
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// TwitterOption customizes the resolver.
type TwitterOption func(*Twitter)

// WithShortURLClient overrides the HTTP backend used to follow t.co links.
func WithShortURLClient(client fetch.HTTPDoer) TwitterOption {
	return func(tw *Twitter) {
		if client != nil {
			tw.client = client
		}
	}
}

// WithTweetWait tunes the poll cadence and deadline for tweet rendering.
func WithTweetWait(interval, timeout time.Duration) TwitterOption {
	return func(tw *Twitter) {
		if interval > 0 {
			tw.pollInterval = interval
		}
		if timeout > 0 {
			tw.waitTimeout = timeout
		}
	}
}

// NewTwitter constructs the twitter resolver.
func NewTwitter(fetcher *fetch.Fetcher, logger *slog.Logger, opts ...TwitterOption) *Twitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	tw := &Twitter{
		fetcher:      fetcher,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logging.NewComponentLogger(logger, "resolve.twitter"),
		pollInterval: 100 * time.Millisecond,
		waitTimeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(tw)
	}
	return tw
}

func (tw *Twitter) Name() string { return "twitter" }

// Resolve collects status URLs from the outbound links and the raw text,
// following t.co shorteners, then extracts each tweet's original media.
func (tw *Twitter) Resolve(ctx context.Context, b browser.Browser, links []string, rawText string) ([]match.Candidate, error) {
	var sourceURLs []string
	for _, link := range links {
		if m := twitterWrappedStatusPattern.FindStringSubmatch(link); m != nil {
			sourceURLs = append(sourceURLs, m[1])
		}
	}
	for _, link := range links {
		m := twitterWrappedShortPattern.FindStringSubmatch(link)
		if m == nil {
			continue
		}
		resolved, err := tw.followShortURL(ctx, m[1])
		if err != nil {
			tw.logger.Warn("short URL resolution failed",
				logging.String(logging.FieldSourceURL, m[1]),
				logging.Error(err))
			continue
		}
		if resolved != "" {
			sourceURLs = append(sourceURLs, resolved)
		}
	}
	sourceURLs = append(sourceURLs, twitterBareStatusPattern.FindAllString(rawText, -1)...)
	for _, short := range twitterBareShortPattern.FindAllString(rawText, -1) {
		resolved, err := tw.followShortURL(ctx, short)
		if err != nil {
			tw.logger.Warn("short URL resolution failed",
				logging.String(logging.FieldSourceURL, short),
				logging.Error(err))
			continue
		}
		if resolved != "" {
			sourceURLs = append(sourceURLs, resolved)
		}
	}

	var candidates []match.Candidate
	for _, sourceURL := range uniqueStrings(sourceURLs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resolved, err := tw.resolveStatus(ctx, b, sourceURL)
		if err != nil {
			tw.logger.Warn("status resolution failed",
				logging.String(logging.FieldSourceURL, sourceURL),
				logging.Error(err))
			continue
		}
		candidates = append(candidates, resolved...)
	}
	return candidates, nil
}

// followShortURL fetches a t.co link and extracts the destination status
// URL from the interstitial body. An interstitial without a status URL is
// dropped, not an error.
func (tw *Twitter) followShortURL(ctx context.Context, shortURL string) (string, error) {
	if !twitterShortURLPattern.MatchString(shortURL) {
		return "", services.Wrap(services.ErrValidation, "resolve.twitter", "follow",
			fmt.Sprintf("invalid short URL %q", shortURL), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", fmt.Errorf("build short URL request: %w", err)
	}
	resp, err := tw.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "resolve.twitter", "follow", shortURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", services.Wrap(services.ErrTransient, "resolve.twitter", "follow",
			fmt.Sprintf("%s returned %d", shortURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "resolve.twitter", "follow", shortURL, err)
	}
	if m := twitterStatusInBodyPattern.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", nil
}

func (tw *Twitter) resolveStatus(ctx context.Context, b browser.Browser, sourceURL string) ([]match.Candidate, error) {
	artist := twitterArtistPattern.FindString(sourceURL)
	if artist == "" {
		return nil, services.Wrap(services.ErrValidation, "resolve.twitter", "resolve",
			fmt.Sprintf("invalid source URL %q", sourceURL), nil)
	}

	tab, err := b.OpenTab(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	if err := tw.waitForTweet(ctx, tab, sourceURL); err != nil {
		return nil, err
	}

	var srcs []string
	if err := tab.Eval(ctx, documentImagesJS, &srcs); err != nil {
		return nil, err
	}

	var imageURLs []string
	for _, src := range srcs {
		if m := twitterImagePattern.FindStringSubmatch(src); m != nil {
			imageURLs = append(imageURLs, m[1]+"&name=orig")
		}
	}
	imageURLs = uniqueStrings(imageURLs)
	if len(imageURLs) == 0 {
		tw.logger.Warn("no media on status page",
			logging.String(logging.FieldSourceURL, sourceURL))
		return nil, nil
	}

	reqs := make([]fetch.Request, 0, len(imageURLs))
	for _, imageURL := range imageURLs {
		reqs = append(reqs, fetch.Request{ImageURL: imageURL, Referrer: sourceURL})
	}
	refs, err := tw.fetcher.FetchAll(ctx, reqs)
	if err != nil {
		return nil, err
	}

	candidates := make([]match.Candidate, 0, len(refs))
	for _, ref := range refs {
		candidates = append(candidates, match.Candidate{ImageRef: ref, ArtistURL: artist})
	}
	return candidates, nil
}

// waitForTweet polls until the status page rendered its media, the deleted
// marker appeared, or the deadline passed. A timeout is not fatal; the
// caller works with whatever the DOM holds.
func (tw *Twitter) waitForTweet(ctx context.Context, tab browser.Tab, sourceURL string) error {
	deadline := time.Now().Add(tw.waitTimeout)
	for time.Now().Before(deadline) {
		var srcs []string
		if err := tab.Eval(ctx, documentImagesJS, &srcs); err != nil {
			return err
		}
		for _, src := range srcs {
			if twitterImagePattern.MatchString(src) {
				return nil
			}
		}

		var bodyText string
		if err := tab.Eval(ctx, documentInnerTextJS, &bodyText); err != nil {
			return err
		}
		if strings.Contains(bodyText, tweetNotFoundMarker) {
			tw.logger.Warn("status does not exist",
				logging.String(logging.FieldSourceURL, sourceURL))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tw.pollInterval):
		}
	}

	tw.logger.Warn("timed out waiting for status to render",
		logging.String(logging.FieldSourceURL, sourceURL))
	return tab.Eval(ctx, "window.stop()", nil)
}
