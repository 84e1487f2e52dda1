package scan

import (
	"context"
	"log/slog"
	"time"

	"nonalt/internal/logging"
	"nonalt/internal/msg"
	"nonalt/internal/services"
)

const (
	defaultScanSlice = time.Second
	defaultDeadline  = 4 * time.Hour
	defaultFeedPoll  = 5 * time.Second
)

// Dispatcher submits one extracted item for matching and dedup. Exactly one
// call is outstanding at any time.
type Dispatcher interface {
	PreflightOnPost(ctx context.Context, req msg.PreflightOnPostRequest) (msg.PreflightOnPostResponse, error)
}

// Runner drives a scan session: it interleaves short feed-walking slices
// with a single in-flight preflight request, preserving strict FIFO order
// between enqueue and response merge.
type Runner struct {
	feed       Feed
	dispatcher Dispatcher
	extractor  *Extractor
	logger     *slog.Logger

	scanSlice time.Duration
	deadline  time.Duration
	feedPoll  time.Duration
}

// Option adjusts runner behavior.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithScanSlice sets the wall-clock length of one feed-walking slice.
func WithScanSlice(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.scanSlice = d
		}
	}
}

// WithDeadline sets the overall session deadline.
func WithDeadline(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.deadline = d
		}
	}
}

// WithFeedPoll sets the idle polling interval after end of feed.
func WithFeedPoll(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.feedPoll = d
		}
	}
}

// NewRunner builds a runner for the given feed and dispatcher. accountName
// identifies the user's own blog for the self-authored filter.
func NewRunner(feed Feed, dispatcher Dispatcher, accountName string, opts ...Option) *Runner {
	r := &Runner{
		feed:       feed,
		dispatcher: dispatcher,
		extractor:  NewExtractor(accountName),
		logger:     logging.NewNop(),
		scanSlice:  defaultScanSlice,
		deadline:   defaultDeadline,
		feedPoll:   defaultFeedPoll,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type result struct {
	postURL string
	resp    msg.PreflightOnPostResponse
	err     error
}

// Run executes the scan loop until cancellation or the session deadline.
// Cancellation is cooperative: the in-flight request and the pending queue
// are drained before Run returns. A consistency violation aborts immediately
// without draining.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	session := NewSession()
	logger := r.logger.With(logging.String("session_id", session.ID()))
	logger.Info("scan session started")

	deadline := time.Now().Add(r.deadline)
	// Dispatched work survives cancellation so the drain can complete it.
	dispatchCtx := context.WithoutCancel(ctx)

	var pending []Item
	var inflight chan result

	for {
		if ctx.Err() != nil {
			logger.Info("scan cancelled, draining")
			break
		}
		if time.Now().After(deadline) {
			logger.Info("scan deadline reached, draining")
			break
		}

		sliceEnd := time.Now().Add(r.scanSlice)
		exhausted := r.walkSlice(ctx, session, sliceEnd, &pending, logger)

		if inflight == nil && len(pending) > 0 {
			inflight = r.dispatch(dispatchCtx, session, pending[0])
			pending = pending[1:]
		}

		if inflight != nil {
			wait := time.Until(sliceEnd)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case res := <-inflight:
				timer.Stop()
				inflight = nil
				if err := r.handleResult(session, res, logger); err != nil {
					return session.Report(), err
				}
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
			continue
		}

		if exhausted && len(pending) == 0 {
			timer := time.NewTimer(r.feedPoll)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	if inflight != nil {
		res := <-inflight
		if err := r.handleResult(session, res, logger); err != nil {
			return session.Report(), err
		}
	}
	for _, item := range pending {
		res := <-r.dispatch(dispatchCtx, session, item)
		if err := r.handleResult(session, res, logger); err != nil {
			return session.Report(), err
		}
	}

	report := session.Report()
	logger.Info("scan session finished",
		logging.String("elapsed", report.Elapsed.Round(time.Millisecond).String()),
		logging.Int("enqueued", report.Enqueued),
		logging.Int("accepted", report.Accepted))
	return report, nil
}

// walkSlice pulls elements until the slice budget runs out or the feed is
// momentarily exhausted. Elements are removed as soon as they are handled,
// independent of whether their request has completed.
func (r *Runner) walkSlice(ctx context.Context, session *Session, sliceEnd time.Time, pending *[]Item, logger *slog.Logger) bool {
	for time.Now().Before(sliceEnd) {
		if ctx.Err() != nil {
			return false
		}
		el, ok, err := r.feed.Next(ctx)
		if err != nil {
			logger.Warn("feed read failed", logging.Error(err))
			return true
		}
		if !ok {
			return true
		}

		item, reason := r.extractor.Extract(el, session)
		if reason != RejectNone {
			session.countRejection(reason)
			logger.Debug("element rejected", logging.String("reason", reason.String()))
		} else {
			*pending = append(*pending, item)
			session.enqueued++
			logger.Debug("element enqueued",
				logging.String("post_url", item.PostURL),
				logging.Int("images", len(item.ImageURLs)))
		}
		if err := el.Remove(ctx); err != nil {
			logger.Warn("element removal failed", logging.Error(err))
		}
	}
	return false
}

// dispatch issues one request, attaching the working set as of this moment
// rather than as of enqueue time.
func (r *Runner) dispatch(ctx context.Context, session *Session, item Item) chan result {
	req := msg.PreflightOnPostRequest{
		PostURL:       item.PostURL,
		PostImageURLs: item.ImageURLs,
		Links:         item.Links,
		RawText:       item.RawText,
		WorkingSet:    session.WorkingSetSnapshot(),
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := r.dispatcher.PreflightOnPost(ctx, req)
		ch <- result{postURL: item.PostURL, resp: resp, err: err}
	}()
	return ch
}

func (r *Runner) handleResult(session *Session, res result, logger *slog.Logger) error {
	logger = logger.With(logging.String("post_url", res.postURL))
	if res.err != nil {
		if services.IsFatal(res.err) {
			return res.err
		}
		logger.Warn("preflight request failed", logging.Error(res.err))
		return nil
	}
	if err := res.resp.Err(); err != nil {
		if res.resp.Fatal {
			logger.Error("preflight aborted session", logging.Error(err))
			return services.Wrap(services.ErrConsistency, "scan", "preflight", "session aborted", err)
		}
		logger.Warn("preflight rejected post", logging.Error(err))
		return nil
	}

	session.MergeWorkingSet(res.resp.WorkingSet)
	if len(res.resp.ImageURLs) > 0 {
		session.accepted++
		logger.Info("post accepted", logging.Int("images", len(res.resp.ImageURLs)))
	} else {
		logger.Info("post dropped as duplicate")
	}
	return nil
}
