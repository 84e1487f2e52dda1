package reblog

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"nonalt/internal/browser"
	"nonalt/internal/logging"
	"nonalt/internal/services"
)

const (
	documentLinksJS = `Array.from(document.links).map((a) => a.href)`
	firstFrameJS    = `(() => {
  const frame = document.querySelector('iframe');
  return frame === null ? '' : frame.src;
})()`
)

// Credentials carry what the commit step needs to address a repost.
type Credentials struct {
	Account string
	Key     string
}

// KeyExtractor pulls repost credentials for a post out of a live page. The
// page structure this relies on shifts often, so extractors are tried in
// order with bounded retries around the whole sequence.
type KeyExtractor interface {
	Name() string
	Extract(ctx context.Context, b browser.Browser, postURL, postID string) (Credentials, error)
}

func reblogHrefPattern(postID string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^https://www\.tumblr\.com/reblog/([^/]+)/%s/(\w+)`, regexp.QuoteMeta(postID)))
}

func credentialsFromLinks(links []string, postID string) (Credentials, bool) {
	pattern := reblogHrefPattern(postID)
	for _, link := range links {
		if m := pattern.FindStringSubmatch(link); m != nil {
			return Credentials{Account: m[1], Key: m[2]}, true
		}
	}
	return Credentials{}, false
}

// PageLinksExtractor reads the repost link directly from the post page.
type PageLinksExtractor struct{}

func (PageLinksExtractor) Name() string { return "page links" }

func (PageLinksExtractor) Extract(ctx context.Context, b browser.Browser, postURL, postID string) (Credentials, error) {
	tab, err := b.OpenTab(ctx, postURL)
	if err != nil {
		return Credentials{}, err
	}
	defer tab.Close()

	var links []string
	if err := tab.Eval(ctx, documentLinksJS, &links); err != nil {
		return Credentials{}, err
	}
	creds, ok := credentialsFromLinks(links, postID)
	if !ok {
		return Credentials{}, services.Wrap(services.ErrTransient, "reblog", "extract key", "no repost link on post page", nil)
	}
	return creds, nil
}

// FrameExtractor falls back to the post page's embedded frame, whose own
// links carry the repost href on themes that hide it from the outer page.
type FrameExtractor struct{}

func (FrameExtractor) Name() string { return "embedded frame" }

func (FrameExtractor) Extract(ctx context.Context, b browser.Browser, postURL, postID string) (Credentials, error) {
	tab, err := b.OpenTab(ctx, postURL)
	if err != nil {
		return Credentials{}, err
	}
	var frameURL string
	evalErr := tab.Eval(ctx, firstFrameJS, &frameURL)
	tab.Close()
	if evalErr != nil {
		return Credentials{}, evalErr
	}
	if frameURL == "" {
		return Credentials{}, services.Wrap(services.ErrTransient, "reblog", "extract key", "post page has no frame", nil)
	}

	frameTab, err := b.OpenTab(ctx, frameURL)
	if err != nil {
		return Credentials{}, err
	}
	defer frameTab.Close()

	var links []string
	if err := frameTab.Eval(ctx, documentLinksJS, &links); err != nil {
		return Credentials{}, err
	}
	creds, ok := credentialsFromLinks(links, postID)
	if !ok {
		return Credentials{}, services.Wrap(services.ErrTransient, "reblog", "extract key", "no repost link in frame", nil)
	}
	return creds, nil
}

// extractCredentials tries each extractor in order, retrying the whole
// sequence up to the configured attempt count.
func extractCredentials(ctx context.Context, b browser.Browser, extractors []KeyExtractor, postURL, postID string, attempts int, logger *slog.Logger) (Credentials, error) {
	var creds Credentials
	err := services.Retry(ctx, attempts, 0, func(ctx context.Context) error {
		var lastErr error
		for _, extractor := range extractors {
			c, err := extractor.Extract(ctx, b, postURL, postID)
			if err == nil {
				creds = c
				return nil
			}
			lastErr = err
			logger.Debug("key extraction attempt failed",
				logging.String("strategy", extractor.Name()),
				logging.Error(err))
		}
		return lastErr
	})
	return creds, err
}
