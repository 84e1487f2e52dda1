package reblog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nonalt/internal/browser"
	"nonalt/internal/logging"
	"nonalt/internal/services"
)

// CommitRequest addresses one repost.
type CommitRequest struct {
	PostURL     string
	PostID      string
	Credentials Credentials
	Tags        []string
}

// Committer performs the repost action itself. Success here only means the
// action was issued; the executor separately confirms the repost landed.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) error
}

// TabCommitter drives the repost form in a browser tab: it opens the repost
// page, waits for the form to render, types the tags, and presses the
// submit button.
type TabCommitter struct {
	browser     browser.Browser
	logger      *slog.Logger
	settleDelay time.Duration
}

// TabCommitterOption adjusts committer behavior.
type TabCommitterOption func(*TabCommitter)

// WithCommitLogger sets the committer logger.
func WithCommitLogger(logger *slog.Logger) TabCommitterOption {
	return func(c *TabCommitter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSettleDelay sets how long to wait for the repost form to render.
func WithSettleDelay(d time.Duration) TabCommitterOption {
	return func(c *TabCommitter) {
		if d >= 0 {
			c.settleDelay = d
		}
	}
}

// NewTabCommitter builds the browser-driven committer.
func NewTabCommitter(b browser.Browser, opts ...TabCommitterOption) *TabCommitter {
	c := &TabCommitter{
		browser:     b,
		logger:      logging.NewNop(),
		settleDelay: 6 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit opens the repost page and submits the form with the given tags.
func (c *TabCommitter) Commit(ctx context.Context, req CommitRequest) error {
	formURL := fmt.Sprintf("https://www.tumblr.com/reblog/%s/%s/%s", req.Credentials.Account, req.PostID, req.Credentials.Key)
	tab, err := c.browser.OpenTab(ctx, formURL)
	if err != nil {
		return err
	}
	defer tab.Close()

	// The form renders asynchronously after navigation settles.
	timer := time.NewTimer(c.settleDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	expr, err := submitFormJS(req)
	if err != nil {
		return err
	}
	var clicked bool
	if err := tab.Eval(ctx, expr, &clicked); err != nil {
		return err
	}
	if !clicked {
		return services.Wrap(services.ErrTransient, "reblog", "commit", "submit button not found", nil)
	}
	c.logger.Debug("repost form submitted", logging.String("post_url", req.PostURL))
	return nil
}

// submitFormJS builds the expression that types the tags into the tag editor
// and clicks the submit button whose form action matches the post and key.
func submitFormJS(req CommitRequest) (string, error) {
	tags, err := json.Marshal(req.Tags)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reblog", "commit", "encode tags", err)
	}
	postID, err := json.Marshal(req.PostID)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reblog", "commit", "encode post id", err)
	}
	key, err := json.Marshal(req.Credentials.Key)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reblog", "commit", "encode key", err)
	}
	return fmt.Sprintf(`((postId, reblogKey, tags) => {
  const editor = Array.from(document.querySelectorAll('div.post-form--tag-editor'))
    .find((div) => (div.textContent ?? '').indexOf('#tags') !== -1 && div.dataset.subview === 'tagEditor');
  if (editor !== undefined) {
    editor.click();
    const active = document.activeElement;
    for (const tag of tags) {
      active.insertAdjacentText('afterbegin', tag);
      active.dispatchEvent(new KeyboardEvent('keydown', {
        bubbles: true,
        cancelable: true,
        code: 'Enter',
        keyCode: 13
      }));
    }
  }
  const action = 'https://www.tumblr.com/neue_web/iframe/reblog/' + postId + '/' + reblogKey;
  const button = Array.from(document.querySelectorAll('button'))
    .find((b) => b.innerText === 'Reblog' && b.formAction === action);
  if (button === undefined) {
    return false;
  }
  button.click();
  return true;
})(%s, %s, %s)`, postID, key, tags), nil
}
