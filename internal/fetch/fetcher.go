package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nonalt/internal/logging"
	"nonalt/internal/match"
	"nonalt/internal/services"
)

// maxImageBytes caps a single downloaded payload.
const maxImageBytes = 32 << 20

// Request names one image to download and the page it was found on. The
// referrer matters only for hosts that enforce origin checks.
type Request struct {
	ImageURL string
	Referrer string
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher downloads image payloads, routing pixiv-hosted files through the
// local origin-spoofing proxy and everything else through a plain GET.
type Fetcher struct {
	client        HTTPDoer
	proxyBaseURL  string
	retryAttempts int
	logger        *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(client HTTPDoer) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger attaches a logger for fetch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logging.NewComponentLogger(logger, "fetch")
		}
	}
}

// WithRetryAttempts overrides the transient-failure retry budget.
func WithRetryAttempts(attempts int) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.retryAttempts = attempts
		}
	}
}

// NewFetcher constructs a Fetcher using the given proxy base URL.
func NewFetcher(proxyBaseURL string, timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	f := &Fetcher{
		client:        &http.Client{Timeout: timeout},
		proxyBaseURL:  strings.TrimRight(proxyBaseURL, "/"),
		retryAttempts: services.DefaultRetryAttempts,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads one image and returns it as a base64 payload with its
// content type. Transient failures are retried up to the configured budget.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (match.ImageRef, error) {
	var ref match.ImageRef
	err := services.Retry(ctx, f.retryAttempts, time.Second, func(ctx context.Context) error {
		var fetchErr error
		ref, fetchErr = f.fetchOnce(ctx, req)
		return fetchErr
	})
	if err != nil {
		f.logger.Warn("image fetch failed",
			logging.String(logging.FieldImageURL, req.ImageURL),
			logging.Error(err))
		return match.ImageRef{}, err
	}
	return ref, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, req Request) (match.ImageRef, error) {
	parsed, err := url.Parse(req.ImageURL)
	if err != nil {
		return match.ImageRef{}, services.Wrap(services.ErrValidation, "fetch", "parse", req.ImageURL, err)
	}

	var httpReq *http.Request
	switch parsed.Host {
	case "i.pximg.net":
		httpReq, err = f.proxyRequest(ctx, req)
	case "64.media.tumblr.com", "pbs.twimg.com":
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, req.ImageURL, nil)
		if err == nil {
			httpReq.Header.Set("Accept", "image/*")
		}
	default:
		return match.ImageRef{}, services.Wrap(services.ErrValidation, "fetch", "route",
			fmt.Sprintf("unsupported image host %q", parsed.Host), nil)
	}
	if err != nil {
		return match.ImageRef{}, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return match.ImageRef{}, services.Wrap(services.ErrTransient, "fetch", "download", req.ImageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return match.ImageRef{}, services.Wrap(services.ErrTransient, "fetch", "download",
			fmt.Sprintf("%s returned %d", req.ImageURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return match.ImageRef{}, services.Wrap(services.ErrTransient, "fetch", "read", req.ImageURL, err)
	}
	if len(body) == 0 {
		return match.ImageRef{}, services.Wrap(services.ErrTransient, "fetch", "read",
			fmt.Sprintf("%s returned empty body", req.ImageURL), nil)
	}

	mime := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		return match.ImageRef{}, services.Wrap(services.ErrTransient, "fetch", "download",
			fmt.Sprintf("%s returned content type %q", req.ImageURL, mime), nil)
	}

	return match.ImageRef{
		ImageURL: req.ImageURL,
		MIME:     mime,
		Blob:     base64.StdEncoding.EncodeToString(body),
	}, nil
}

func (f *Fetcher) proxyRequest(ctx context.Context, req Request) (*http.Request, error) {
	payload, err := json.Marshal(map[string]string{
		"url":      req.ImageURL,
		"referrer": req.Referrer,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal proxy request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.proxyBaseURL+"/proxy-to-pixiv", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}
