package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nonalt/internal/browser"
	"nonalt/internal/fetch"
	"nonalt/internal/gate"
	"nonalt/internal/logging"
	"nonalt/internal/match"
	"nonalt/internal/msg"
	"nonalt/internal/resolve"
	"nonalt/internal/testsupport"
)

type stubDoer struct{}

func (stubDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       io.NopCloser(strings.NewReader("fake image bytes")),
	}, nil
}

type stubResolver struct {
	name       string
	candidates []match.Candidate
	calls      int
}

func (r *stubResolver) Name() string { return r.name }

func (r *stubResolver) Resolve(ctx context.Context, b browser.Browser, links []string, rawText string) ([]match.Candidate, error) {
	r.calls++
	return r.candidates, nil
}

func matcherServer(t *testing.T, results []map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/match" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(results)
	}))
	t.Cleanup(server.Close)
	return server
}

func candidate(imageURL, artistURL string) match.Candidate {
	return match.Candidate{
		ImageRef:  match.ImageRef{ImageURL: imageURL, MIME: "image/png", Blob: "Zg=="},
		ArtistURL: artistURL,
	}
}

func newTestAgent(t *testing.T, matcherURL string, resolvers ...resolve.Resolver) *Agent {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	return &Agent{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		fetcher:   fetch.NewFetcher("http://proxy.invalid", time.Second, fetch.WithHTTPClient(stubDoer{}), fetch.WithRetryAttempts(1)),
		matcher:   match.NewClient(matcherURL, time.Second),
		resolvers: resolvers,
		gate:      gate.New(store, logger),
		baseCtx:   context.Background(),
	}
}

func TestPreflightAcceptsAndQueues(t *testing.T) {
	sourceImage := "https://64.media.tumblr.com/p/s1280.png"
	candidateURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/42_p0.png"
	artistURL := "https://www.pixiv.net/users/42"
	postURL := "https://artblog.tumblr.com/post/42"

	resolver := &stubResolver{name: "pixiv", candidates: []match.Candidate{candidate(candidateURL, artistURL)}}
	server := matcherServer(t, []map[string]any{{"index": 0, "score": 0.995}})
	a := newTestAgent(t, server.URL, resolver)

	var resp msg.PreflightOnPostResponse
	if err := a.PreflightOnPost(msg.PreflightOnPostRequest{
		PostURL:       postURL,
		PostImageURLs: []string{sourceImage},
		Links:         []string{"https://href.li/?https://www.pixiv.net/artworks/42"},
		WorkingSet:    map[string]string{},
	}, &resp); err != nil {
		t.Fatalf("PreflightOnPost: %v", err)
	}
	if resp.Err() != nil {
		t.Fatalf("response error: %v", resp.Err())
	}
	if len(resp.ImageURLs) != 1 || resp.ImageURLs[0] != candidateURL {
		t.Fatalf("image URLs = %v", resp.ImageURLs)
	}
	if resp.WorkingSet[candidateURL] != postURL {
		t.Fatalf("working set = %v", resp.WorkingSet)
	}

	head, err := a.store.PeekQueue(a.baseCtx)
	if err != nil || head == nil {
		t.Fatalf("queue head missing (err=%v)", err)
	}
	if head.PostURL != postURL {
		t.Fatalf("queued post = %q", head.PostURL)
	}
	images, err := a.store.PostImagesFor(a.baseCtx, postURL)
	if err != nil || len(images) != 1 || images[0].ArtistURL != artistURL {
		t.Fatalf("post images = %+v (err=%v)", images, err)
	}
}

func TestPreflightDropsDuplicateInHistory(t *testing.T) {
	candidateURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/43_p0.png"
	resolver := &stubResolver{name: "pixiv", candidates: []match.Candidate{candidate(candidateURL, "https://www.pixiv.net/users/43")}}
	server := matcherServer(t, []map[string]any{{"index": 0, "score": 1.0}})
	a := newTestAgent(t, server.URL, resolver)

	if err := a.store.RecordHistory(a.baseCtx, []string{candidateURL}, time.Now()); err != nil {
		t.Fatalf("RecordHistory: %v", err)
	}

	var resp msg.PreflightOnPostResponse
	if err := a.PreflightOnPost(msg.PreflightOnPostRequest{
		PostURL:       "https://artblog.tumblr.com/post/43",
		PostImageURLs: []string{"https://64.media.tumblr.com/q/s1280.png"},
		WorkingSet:    map[string]string{},
	}, &resp); err != nil {
		t.Fatalf("PreflightOnPost: %v", err)
	}
	if resp.Err() != nil {
		t.Fatalf("response error: %v", resp.Err())
	}
	if len(resp.ImageURLs) != 0 {
		t.Fatalf("expected empty image URLs, got %v", resp.ImageURLs)
	}
	if head, _ := a.store.PeekQueue(a.baseCtx); head != nil {
		t.Fatalf("duplicate post must not be queued: %+v", head)
	}
}

func TestPreflightReportsConsistencyViolationAsFatal(t *testing.T) {
	candidateURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/44_p0.png"
	resolver := &stubResolver{name: "pixiv", candidates: []match.Candidate{candidate(candidateURL, "https://www.pixiv.net/users/44")}}
	server := matcherServer(t, []map[string]any{{"index": 0, "score": 0.999}})
	a := newTestAgent(t, server.URL, resolver)

	var resp msg.PreflightOnPostResponse
	if err := a.PreflightOnPost(msg.PreflightOnPostRequest{
		PostURL:       "https://artblog.tumblr.com/post/44",
		PostImageURLs: []string{"https://64.media.tumblr.com/r/s1280.png"},
		WorkingSet:    map[string]string{candidateURL: "https://other.tumblr.com/post/999"},
	}, &resp); err != nil {
		t.Fatalf("PreflightOnPost: %v", err)
	}
	if resp.Err() == nil || !resp.Fatal {
		t.Fatalf("expected fatal response, got %+v", resp)
	}
}

func TestPreflightValidatesRequest(t *testing.T) {
	a := newTestAgent(t, "http://matcher.invalid")

	var resp msg.PreflightOnPostResponse
	if err := a.PreflightOnPost(msg.PreflightOnPostRequest{PostImageURLs: []string{"x"}}, &resp); err != nil {
		t.Fatalf("PreflightOnPost: %v", err)
	}
	if resp.Err() == nil || resp.Fatal {
		t.Fatalf("expected validation error, got %+v", resp)
	}
}

func TestPreflightNoCandidatesReturnsEmpty(t *testing.T) {
	resolver := &stubResolver{name: "pixiv"}
	a := newTestAgent(t, "http://matcher.invalid", resolver)

	var resp msg.PreflightOnPostResponse
	if err := a.PreflightOnPost(msg.PreflightOnPostRequest{
		PostURL:       "https://artblog.tumblr.com/post/45",
		PostImageURLs: []string{"https://64.media.tumblr.com/s/s1280.png"},
		WorkingSet:    map[string]string{},
	}, &resp); err != nil {
		t.Fatalf("PreflightOnPost: %v", err)
	}
	if resp.Err() != nil || len(resp.ImageURLs) != 0 {
		t.Fatalf("expected empty accept-less response, got %+v", resp)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times", resolver.calls)
	}
}

func TestQueueHandlersRoundTrip(t *testing.T) {
	a := newTestAgent(t, "http://matcher.invalid")

	var queueResp msg.QueueForRebloggingResponse
	if err := a.QueueForReblogging(msg.QueueForRebloggingRequest{
		PostURL:   "https://artblog.tumblr.com/post/50",
		ImageURLs: []string{"https://i.pximg.net/img-original/img/2024/01/02/03/04/05/50_p0.png"},
	}, &queueResp); err != nil || queueResp.Err() != nil {
		t.Fatalf("QueueForReblogging: err=%v resp=%+v", err, queueResp)
	}

	var listResp msg.QueueListResponse
	if err := a.QueueList(msg.QueueListRequest{}, &listResp); err != nil || len(listResp.Entries) != 1 {
		t.Fatalf("QueueList: err=%v entries=%v", err, listResp.Entries)
	}

	var dequeueResp msg.DequeueForRebloggingResponse
	if err := a.DequeueForReblogging(msg.DequeueForRebloggingRequest{}, &dequeueResp); err != nil || !dequeueResp.Removed {
		t.Fatalf("DequeueForReblogging: err=%v resp=%+v", err, dequeueResp)
	}

	var statusResp msg.StatusResponse
	if err := a.Status(msg.StatusRequest{}, &statusResp); err != nil || statusResp.Err() != nil {
		t.Fatalf("Status: err=%v resp=%+v", err, statusResp)
	}
	if statusResp.QueueLength != 0 || !statusResp.Running {
		t.Fatalf("status = %+v", statusResp)
	}
}
