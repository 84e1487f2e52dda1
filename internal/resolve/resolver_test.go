package resolve_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"nonalt/internal/browser"
	"nonalt/internal/fetch"
	"nonalt/internal/resolve"
)

type fakeTab struct {
	eval   func(expression string) (any, error)
	closed bool
}

func (t *fakeTab) Navigate(ctx context.Context, url string) error { return nil }

func (t *fakeTab) Eval(ctx context.Context, expression string, out any) error {
	value, err := t.eval(expression)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *fakeTab) Close() error {
	t.closed = true
	return nil
}

type fakeBrowser struct {
	tabs   map[string]*fakeTab
	opened []string
}

func (b *fakeBrowser) OpenTab(ctx context.Context, url string) (browser.Tab, error) {
	b.opened = append(b.opened, url)
	tab, ok := b.tabs[url]
	if !ok {
		return nil, errors.New("no such page")
	}
	return tab, nil
}

type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) Do(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newImageServer(t *testing.T) (*httptest.Server, *rewriteTransport, *[]string) {
	t.Helper()
	var referrers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/proxy-to-pixiv" {
			var body struct {
				URL      string `json:"url"`
				Referrer string `json:"referrer"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			referrers = append(referrers, body.Referrer)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("imagedata"))
	}))
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return srv, &rewriteTransport{target: target}, &referrers
}

func newTestFetcher(t *testing.T) (*fetch.Fetcher, *rewriteTransport, *[]string) {
	t.Helper()
	srv, transport, referrers := newImageServer(t)
	f := fetch.NewFetcher(srv.URL, 0,
		fetch.WithHTTPClient(transport),
		fetch.WithRetryAttempts(1),
	)
	return f, transport, referrers
}

func pixivTab(artistURL string, links []string) *fakeTab {
	return &fakeTab{eval: func(expression string) (any, error) {
		switch {
		case strings.Contains(expression, "作品一覧を見る"):
			if artistURL == "" {
				return nil, nil
			}
			return artistURL, nil
		case strings.Contains(expression, "document.links"):
			return links, nil
		default:
			return nil, nil
		}
	}}
}

func TestPixivResolvesWrappedArtworkLinks(t *testing.T) {
	fetcher, _, referrers := newTestFetcher(t)
	imageURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/123_p0.png"
	tab := pixivTab("https://www.pixiv.net/users/42", []string{
		imageURL,
		"https://www.pixiv.net/tags/irrelevant",
		imageURL,
	})
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://www.pixiv.net/artworks/123": tab}}

	resolver := resolve.NewPixiv(fetcher, nil)
	candidates, err := resolver.Resolve(context.Background(), b,
		[]string{
			"https://href.li/?https://www.pixiv.net/artworks/123",
			"https://href.li/?https://www.pixiv.net/artworks/123",
		}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(b.opened) != 1 {
		t.Fatalf("duplicate source URLs must collapse, opened %v", b.opened)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	if candidates[0].ImageURL != imageURL {
		t.Fatalf("unexpected image URL %q", candidates[0].ImageURL)
	}
	if candidates[0].ArtistURL != "https://www.pixiv.net/users/42" {
		t.Fatalf("unexpected artist URL %q", candidates[0].ArtistURL)
	}
	if len(*referrers) != 1 || (*referrers)[0] != "https://www.pixiv.net/artworks/123" {
		t.Fatalf("proxy referrer must be the artwork URL, got %v", *referrers)
	}
	if !tab.closed {
		t.Fatal("artwork tab must be torn down")
	}
}

func TestPixivNormalizesLegacyLinks(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)
	tab := pixivTab("https://www.pixiv.net/users/7", nil)
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://www.pixiv.net/artworks/456": tab}}

	resolver := resolve.NewPixiv(fetcher, nil)
	_, err := resolver.Resolve(context.Background(), b,
		[]string{"https://href.li/?http://www.pixiv.net/member_illust.php?mode=medium&illust_id=456"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(b.opened) != 1 || b.opened[0] != "https://www.pixiv.net/artworks/456" {
		t.Fatalf("legacy link not normalized, opened %v", b.opened)
	}
}

func TestPixivFailsOpenPerArtwork(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)
	imageURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/99_p0.png"
	good := pixivTab("https://www.pixiv.net/users/9", []string{imageURL})
	b := &fakeBrowser{tabs: map[string]*fakeTab{
		// artworks/1 is missing, so its OpenTab fails.
		"https://www.pixiv.net/artworks/2": good,
	}}

	resolver := resolve.NewPixiv(fetcher, nil)
	candidates, err := resolver.Resolve(context.Background(), b,
		[]string{
			"https://href.li/?https://www.pixiv.net/artworks/1",
			"https://href.li/?https://www.pixiv.net/artworks/2",
		}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ImageURL != imageURL {
		t.Fatalf("surviving artwork should still resolve, got %v", candidates)
	}
}

func TestPixivSkipsArtworkWithoutArtist(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)
	tab := pixivTab("", []string{"https://i.pximg.net/img-original/img/2024/01/02/03/04/05/1_p0.png"})
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://www.pixiv.net/artworks/1": tab}}

	resolver := resolve.NewPixiv(fetcher, nil)
	candidates, err := resolver.Resolve(context.Background(), b,
		[]string{"https://href.li/?https://www.pixiv.net/artworks/1"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if candidates != nil {
		t.Fatalf("no artist URL means no candidates, got %v", candidates)
	}
}

func twitterTab(images []string) *fakeTab {
	return &fakeTab{eval: func(expression string) (any, error) {
		switch {
		case strings.Contains(expression, "document.images"):
			return images, nil
		case strings.Contains(expression, "innerText"):
			return "tweet body", nil
		default:
			return nil, nil
		}
	}}
}

func TestTwitterResolvesWrappedStatusLinks(t *testing.T) {
	fetcher, transport, _ := newTestFetcher(t)
	tab := twitterTab([]string{
		"https://pbs.twimg.com/media/ABC?format=jpg&name=small",
		"https://abs.twimg.com/sticky/chrome.png",
	})
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://twitter.com/artist_1/status/111": tab}}

	resolver := resolve.NewTwitter(fetcher, nil, resolve.WithShortURLClient(transport))
	candidates, err := resolver.Resolve(context.Background(), b,
		[]string{"https://href.li/?https://twitter.com/artist_1/status/111"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	if candidates[0].ImageURL != "https://pbs.twimg.com/media/ABC?format=jpg&name=orig" {
		t.Fatalf("media URL must be rewritten to name=orig, got %q", candidates[0].ImageURL)
	}
	if candidates[0].ArtistURL != "https://twitter.com/artist_1" {
		t.Fatalf("unexpected artist URL %q", candidates[0].ArtistURL)
	}
	if !tab.closed {
		t.Fatal("status tab must be torn down")
	}
}

func TestTwitterFollowsShortURLsFromRawText(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)

	shortSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<head><meta content="0;URL=https://twitter.com/artist_2/status/222"></head>`))
	}))
	t.Cleanup(shortSrv.Close)
	target, err := url.Parse(shortSrv.URL)
	if err != nil {
		t.Fatalf("parse short server URL: %v", err)
	}

	tab := twitterTab([]string{"https://pbs.twimg.com/media/DEF?format=png&name=large"})
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://twitter.com/artist_2/status/222": tab}}

	resolver := resolve.NewTwitter(fetcher, nil,
		resolve.WithShortURLClient(&rewriteTransport{target: target}))
	candidates, err := resolver.Resolve(context.Background(), b, nil,
		"check this out https://t.co/AbC123 so cool")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	if candidates[0].ArtistURL != "https://twitter.com/artist_2" {
		t.Fatalf("unexpected artist URL %q", candidates[0].ArtistURL)
	}
}

func TestFirstMatchShortCircuits(t *testing.T) {
	fetcher, _, _ := newTestFetcher(t)
	imageURL := "https://i.pximg.net/img-original/img/2024/01/02/03/04/05/5_p0.png"
	tab := pixivTab("https://www.pixiv.net/users/5", []string{imageURL})
	b := &fakeBrowser{tabs: map[string]*fakeTab{"https://www.pixiv.net/artworks/5": tab}}

	pixiv := resolve.NewPixiv(fetcher, nil)
	twitter := resolve.NewTwitter(fetcher, nil)
	candidates, err := resolve.FirstMatch(context.Background(), b,
		[]resolve.Resolver{pixiv, twitter},
		[]string{
			"https://href.li/?https://www.pixiv.net/artworks/5",
			"https://href.li/?https://twitter.com/artist_9/status/999",
		}, "")
	if err != nil {
		t.Fatalf("FirstMatch: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ImageURL != imageURL {
		t.Fatalf("expected pixiv result, got %v", candidates)
	}
	// The twitter status tab would fail to open, so reaching it would have
	// logged an open attempt.
	for _, opened := range b.opened {
		if strings.Contains(opened, "twitter.com") {
			t.Fatalf("twitter resolver must not run after pixiv produced images, opened %v", b.opened)
		}
	}
}
