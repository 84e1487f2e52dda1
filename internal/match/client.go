package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nonalt/internal/logging"
	"nonalt/internal/services"
)

// ScoreThreshold is the minimum similarity for a source image to count as
// matched. Every source must clear it or the whole post is rejected.
const ScoreThreshold = 0.99

// ImageRef carries one image payload to the matcher service.
type ImageRef struct {
	ImageURL string `json:"imageUrl"`
	MIME     string `json:"mime"`
	Blob     string `json:"blob"`
}

// Candidate is a source-platform image with the artist page it resolved
// from.
type Candidate struct {
	ImageRef
	ArtistURL string `json:"artistUrl"`
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls the local image-matching service.
type Client struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger attaches a logger for match diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "matcher")
		}
	}
}

// NewClient constructs a matcher client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type matchRequest struct {
	Sources []ImageRef  `json:"sources"`
	Targets []Candidate `json:"targets"`
}

type matchResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Match submits the feed post's images against the resolved candidates and
// returns one matched candidate per source, in source order. A nil slice
// with nil error means the post did not match; any contract violation by the
// service is a protocol error.
func (c *Client) Match(ctx context.Context, sources []ImageRef, targets []Candidate) ([]Candidate, error) {
	if len(sources) == 0 || len(targets) == 0 {
		return nil, nil
	}

	results, err := c.requestMatch(ctx, matchRequest{Sources: sources, Targets: targets})
	if err != nil {
		return nil, err
	}

	if len(results) != len(sources) {
		return nil, services.Wrap(services.ErrProtocol, "matcher", "match",
			fmt.Sprintf("expected %d results, got %d", len(sources), len(results)), nil)
	}
	for i, result := range results {
		if result.Index < 0 || result.Index >= len(targets) {
			return nil, services.Wrap(services.ErrProtocol, "matcher", "match",
				fmt.Sprintf("result %d index %d out of range", i, result.Index), nil)
		}
		if result.Score < 0 || result.Score > 1 {
			return nil, services.Wrap(services.ErrProtocol, "matcher", "match",
				fmt.Sprintf("result %d score %g out of range", i, result.Score), nil)
		}
	}

	matched := make([]Candidate, 0, len(results))
	for i, result := range results {
		if result.Score < ScoreThreshold {
			c.logger.Debug("source image below threshold",
				logging.String(logging.FieldImageURL, sources[i].ImageURL),
				logging.Float64(logging.FieldScore, result.Score))
			return nil, nil
		}
		matched = append(matched, targets[result.Index])
	}

	// Two sources matching the same candidate means the result set does not
	// cover the post. Reject the whole result rather than misfile it.
	seen := make(map[string]struct{}, len(matched))
	for _, candidate := range matched {
		seen[candidate.ImageURL] = struct{}{}
	}
	if len(seen) != len(sources) {
		c.logger.Warn("duplicate candidate across sources, rejecting match",
			logging.Int("sources", len(sources)),
			logging.Int("distinct_candidates", len(seen)))
		return nil, nil
	}

	return matched, nil
}

func (c *Client) requestMatch(ctx context.Context, payload matchRequest) ([]matchResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/match", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "matcher", "match", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrProtocol, "matcher", "match",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var results []matchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, services.Wrap(services.ErrProtocol, "matcher", "match", "malformed response", err)
	}
	return results, nil
}
