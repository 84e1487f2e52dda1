package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nonalt/internal/logging"
	"nonalt/internal/services"
)

// DevTools drives a running Chromium instance through its DevTools HTTP and
// WebSocket endpoints.
type DevTools struct {
	baseURL         string
	client          *http.Client
	pageLoadTimeout time.Duration
	pollInterval    time.Duration
	logger          *slog.Logger
}

// DevToolsOption customizes the driver.
type DevToolsOption func(*DevTools)

// WithLogger attaches a logger for driver diagnostics.
func WithLogger(logger *slog.Logger) DevToolsOption {
	return func(d *DevTools) {
		if logger != nil {
			d.logger = logging.NewComponentLogger(logger, "browser")
		}
	}
}

// WithPageLoadTimeout bounds how long Navigate waits before stopping
// resource loading.
func WithPageLoadTimeout(timeout time.Duration) DevToolsOption {
	return func(d *DevTools) {
		if timeout > 0 {
			d.pageLoadTimeout = timeout
		}
	}
}

// WithPollInterval sets the readiness polling cadence.
func WithPollInterval(interval time.Duration) DevToolsOption {
	return func(d *DevTools) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// Connect verifies the DevTools endpoint is reachable and returns a driver.
func Connect(ctx context.Context, devtoolsURL string, opts ...DevToolsOption) (*DevTools, error) {
	d := &DevTools{
		baseURL:         strings.TrimRight(devtoolsURL, "/"),
		client:          &http.Client{Timeout: 15 * time.Second},
		pageLoadTimeout: 60 * time.Second,
		pollInterval:    100 * time.Millisecond,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/json/version", nil)
	if err != nil {
		return nil, fmt.Errorf("build version request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "browser", "connect",
			fmt.Sprintf("devtools endpoint %s unreachable", d.baseURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrConfiguration, "browser", "connect",
			fmt.Sprintf("devtools endpoint returned %d", resp.StatusCode), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return d, nil
}

type targetInfo struct {
	ID                   string `json:"id"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// OpenTab creates a new browser target, attaches to it, and navigates to
// url when one is given.
func (d *DevTools) OpenTab(ctx context.Context, pageURL string) (Tab, error) {
	endpoint := d.baseURL + "/json/new?" + url.Values{"url": {"about:blank"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build new-target request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "browser", "open tab", "create target", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "browser", "open tab",
			fmt.Sprintf("create target returned %d", resp.StatusCode), nil)
	}

	var target targetInfo
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, services.Wrap(services.ErrProtocol, "browser", "open tab", "malformed target info", err)
	}
	if target.WebSocketDebuggerURL == "" {
		return nil, services.Wrap(services.ErrProtocol, "browser", "open tab", "target missing debugger URL", nil)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.WebSocketDebuggerURL, nil)
	if err != nil {
		d.closeTarget(target.ID)
		return nil, services.Wrap(services.ErrTransient, "browser", "open tab", "dial debugger", err)
	}

	tab := &cdpTab{
		driver:   d,
		conn:     conn,
		targetID: target.ID,
	}
	if pageURL != "" {
		if err := tab.Navigate(ctx, pageURL); err != nil {
			_ = tab.Close()
			return nil, err
		}
	}
	return tab, nil
}

func (d *DevTools) closeTarget(id string) {
	req, err := http.NewRequest(http.MethodGet, d.baseURL+"/json/close/"+id, nil)
	if err != nil {
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("close target failed", logging.String("target_id", id), logging.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

type cdpTab struct {
	driver   *DevTools
	targetID string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
	closed bool
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call issues one DevTools protocol command and waits for its response,
// skipping interleaved protocol events.
func (t *cdpTab) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("tab is closed")
	}

	t.nextID++
	id := t.nextID
	payload := map[string]any{"id": id, "method": method}
	if params != nil {
		payload["params"] = params
	}

	deadline := time.Now().Add(t.driver.pageLoadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "browser", method, "write command", err)
	}

	_ = t.conn.SetReadDeadline(deadline)
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "browser", method, "read response", err)
		}
		var resp cdpResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			return nil, services.Wrap(services.ErrProtocol, "browser", method, "malformed response", err)
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, services.Wrap(services.ErrProtocol, "browser", method, resp.Error.Message, nil)
		}
		return resp.Result, nil
	}
}

func (t *cdpTab) Navigate(ctx context.Context, pageURL string) error {
	if _, err := t.call(ctx, "Page.navigate", map[string]any{"url": pageURL}); err != nil {
		return err
	}

	deadline := time.Now().Add(t.driver.pageLoadTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var state string
		if err := t.Eval(ctx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.driver.pollInterval):
		}
	}

	// Slow resource loads can hold the page open far past usefulness. Stop
	// loading and work with the DOM that exists.
	t.driver.logger.Warn("page load timed out, stopping resource loading",
		logging.String("url", pageURL))
	return t.Eval(ctx, "window.stop()", nil)
}

func (t *cdpTab) Eval(ctx context.Context, expression string, out any) error {
	raw, err := t.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return err
	}

	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return services.Wrap(services.ErrProtocol, "browser", "evaluate", "malformed evaluate result", err)
	}
	if result.ExceptionDetails != nil {
		return services.Wrap(services.ErrProtocol, "browser", "evaluate", result.ExceptionDetails.Text, nil)
	}
	if out == nil || result.Result.Value == nil {
		return nil
	}
	if err := json.Unmarshal(result.Result.Value, out); err != nil {
		return services.Wrap(services.ErrProtocol, "browser", "evaluate", "decode value", err)
	}
	return nil
}

func (t *cdpTab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	err := conn.Close()
	t.driver.closeTarget(t.targetID)
	return err
}
