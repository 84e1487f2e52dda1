package agent

import (
	"context"
	"fmt"

	"nonalt/internal/fetch"
	"nonalt/internal/gate"
	"nonalt/internal/logging"
	"nonalt/internal/msg"
	"nonalt/internal/resolve"
	"nonalt/internal/services"
)

// PreflightOnPost runs the full pipeline for one feed post: fetch the post's
// own images, resolve source candidates, match, and gate.
func (a *Agent) PreflightOnPost(req msg.PreflightOnPostRequest, resp *msg.PreflightOnPostResponse) error {
	a.preflight(a.baseCtx, req, resp)
	return nil
}

func (a *Agent) preflight(ctx context.Context, req msg.PreflightOnPostRequest, resp *msg.PreflightOnPostResponse) {
	if req.PostURL == "" {
		resp.SetError("postUrl must not be empty")
		return
	}
	if len(req.PostImageURLs) == 0 {
		resp.SetError("postImageUrls must not be empty")
		return
	}
	ctx = services.WithPostURL(ctx, req.PostURL)
	logger := a.logger.With(logging.String("post_url", req.PostURL))

	fetchReqs := make([]fetch.Request, len(req.PostImageURLs))
	for i, imageURL := range req.PostImageURLs {
		fetchReqs[i] = fetch.Request{ImageURL: imageURL}
	}
	sources, err := a.fetcher.FetchAll(ctx, fetchReqs)
	if err != nil {
		logger.Warn("post image fetch failed", logging.Error(err))
		resp.SetError(err.Error())
		return
	}

	candidates, err := resolve.FirstMatch(ctx, a.browser, a.resolvers, req.Links, req.RawText)
	if err != nil {
		logger.Warn("source resolution failed", logging.Error(err))
		resp.SetError(err.Error())
		return
	}
	resp.WorkingSet = req.WorkingSet
	if len(candidates) == 0 {
		logger.Info("no source candidates")
		return
	}

	matched, err := a.matcher.Match(ctx, sources, candidates)
	if err != nil {
		logger.Warn("match failed", logging.Error(err))
		resp.SetError(err.Error())
		return
	}
	if matched == nil {
		logger.Info("images did not match sources")
		return
	}

	ws := make(gate.WorkingSet, len(req.WorkingSet))
	for imageURL, postURL := range req.WorkingSet {
		ws[imageURL] = postURL
	}
	accepted, err := a.gate.Evaluate(ctx, req.PostURL, matched, ws)
	if err != nil {
		resp.SetError(err.Error())
		resp.Fatal = services.IsFatal(err)
		return
	}
	resp.WorkingSet = ws
	resp.ImageURLs = accepted

	if len(accepted) > 0 {
		if _, err := a.store.Enqueue(ctx, req.PostURL, accepted); err != nil {
			logger.Error("enqueue failed", logging.Error(err))
			resp.ImageURLs = nil
			resp.SetError(err.Error())
		}
	}
}

// QueueForReblogging appends a post to the pending repost queue.
func (a *Agent) QueueForReblogging(req msg.QueueForRebloggingRequest, resp *msg.QueueForRebloggingResponse) error {
	if req.PostURL == "" {
		resp.SetError("postUrl must not be empty")
		return nil
	}
	if len(req.ImageURLs) == 0 {
		resp.SetError("imageUrls must not be empty")
		return nil
	}
	if _, err := a.store.Enqueue(a.baseCtx, req.PostURL, req.ImageURLs); err != nil {
		resp.SetError(err.Error())
	}
	return nil
}

// DequeueForReblogging removes a specific entry, or the head when no post
// URL is given.
func (a *Agent) DequeueForReblogging(req msg.DequeueForRebloggingRequest, resp *msg.DequeueForRebloggingResponse) error {
	if req.PostURL == "" {
		entry, err := a.store.DequeueHead(a.baseCtx)
		if err != nil {
			resp.SetError(err.Error())
			return nil
		}
		resp.Removed = entry != nil
		return nil
	}
	removed, err := a.store.RemoveQueued(a.baseCtx, req.PostURL)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Removed = removed
	return nil
}

// QueueList returns pending entries in FIFO order.
func (a *Agent) QueueList(req msg.QueueListRequest, resp *msg.QueueListResponse) error {
	entries, err := a.store.ListQueue(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Entries = make([]msg.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, msg.QueueEntry{
			PostURL:    entry.PostURL,
			ImageURLs:  entry.ImageURLs,
			EnqueuedAt: entry.EnqueuedAt,
		})
	}
	return nil
}

// QueueClear removes every pending entry.
func (a *Agent) QueueClear(req msg.QueueClearRequest, resp *msg.QueueClearResponse) error {
	removed, err := a.store.ClearQueue(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Removed = removed
	return nil
}

// LoadPostImages returns the post-to-images map recorded during preflight.
func (a *Agent) LoadPostImages(req msg.LoadPostImagesRequest, resp *msg.LoadPostImagesResponse) error {
	posts, err := a.store.LoadPostImages(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Posts = make(map[string][]msg.PostImage, len(posts))
	for postURL, images := range posts {
		converted := make([]msg.PostImage, 0, len(images))
		for _, image := range images {
			converted = append(converted, msg.PostImage{
				ImageURL:  image.ImageURL,
				ArtistURL: image.ArtistURL,
			})
		}
		resp.Posts[postURL] = converted
	}
	return nil
}

// ClearPostImages drops the post-to-images map by explicit user action.
func (a *Agent) ClearPostImages(req msg.ClearPostImagesRequest, resp *msg.ClearPostImagesResponse) error {
	removed, err := a.store.ClearPostImages(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Removed = removed
	return nil
}

// HistoryList returns completed-repost history, newest first.
func (a *Agent) HistoryList(req msg.HistoryListRequest, resp *msg.HistoryListResponse) error {
	entries, err := a.store.ListHistory(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Entries = make([]msg.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, msg.HistoryEntry{
			ImageURL:   entry.ImageURL,
			RecordedAt: entry.RecordedAt,
		})
	}
	return nil
}

// ScanStart begins a scan session unless one is already running.
func (a *Agent) ScanStart(req msg.ScanStartRequest, resp *msg.ScanStartResponse) error {
	started, message := a.startScan()
	resp.Started = started
	resp.Message = message
	return nil
}

// ScanStop cancels and drains the running scan session.
func (a *Agent) ScanStop(req msg.ScanStopRequest, resp *msg.ScanStopResponse) error {
	resp.Stopped = a.stopScan()
	return nil
}

// Reblog drains the repost queue.
func (a *Agent) Reblog(req msg.ReblogRequest, resp *msg.ReblogResponse) error {
	if a.executor == nil {
		resp.SetError("agent is not connected to a browser")
		return nil
	}
	committed, skipped, err := a.executor.Drain(a.baseCtx)
	resp.Done = err == nil
	resp.Message = fmt.Sprintf("%d reposted, %d skipped", committed, skipped)
	if err != nil {
		resp.SetError(err.Error())
	}
	return nil
}

// Status reports combined agent and store state.
func (a *Agent) Status(req msg.StatusRequest, resp *msg.StatusResponse) error {
	summary, err := a.store.Summarize(a.baseCtx)
	if err != nil {
		resp.SetError(err.Error())
		return nil
	}
	resp.Running = true
	resp.Scanning = a.scanning()
	resp.QueueLength = summary.QueueLength
	resp.HistoryCount = summary.HistoryCount
	resp.PostMapCount = summary.PostMapCount
	resp.UsageBytes = summary.UsageBytes
	resp.QuotaBytes = summary.QuotaBytes
	resp.DBPath = a.store.Path()
	resp.SocketPath = a.cfg.SocketPath()
	resp.PID = a.PID()
	return nil
}
