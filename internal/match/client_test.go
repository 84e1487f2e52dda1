package match_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"nonalt/internal/match"
	"nonalt/internal/services"
)

func newMatcher(t *testing.T, handler http.HandlerFunc) *match.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return match.NewClient(srv.URL, 0)
}

func scoreServer(t *testing.T, scores ...map[string]float64) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/match" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Sources []match.ImageRef  `json:"sources"`
			Targets []match.Candidate `json:"targets"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		results := make([]map[string]any, 0, len(scores))
		for _, score := range scores {
			for k, v := range score {
				idx := 0
				for i, target := range req.Targets {
					if target.ImageURL == k {
						idx = i
					}
				}
				results = append(results, map[string]any{"index": idx, "score": v})
			}
		}
		_ = json.NewEncoder(w).Encode(results)
	}
}

func source(url string) match.ImageRef {
	return match.ImageRef{ImageURL: url, MIME: "image/png", Blob: "cGF5bG9hZA=="}
}

func candidate(url, artist string) match.Candidate {
	return match.Candidate{ImageRef: source(url), ArtistURL: artist}
}

func TestMatchAcceptsAtThreshold(t *testing.T) {
	client := newMatcher(t, scoreServer(t, map[string]float64{"https://i.pximg.net/c1.png": 0.99}))

	matched, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", "https://www.pixiv.net/users/1")},
	)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matched) != 1 || matched[0].ImageURL != "https://i.pximg.net/c1.png" {
		t.Fatalf("unexpected result %v", matched)
	}
	if matched[0].ArtistURL != "https://www.pixiv.net/users/1" {
		t.Fatalf("artist URL lost: %+v", matched[0])
	}
}

func TestMatchRejectsJustBelowThreshold(t *testing.T) {
	client := newMatcher(t, scoreServer(t, map[string]float64{"https://i.pximg.net/c1.png": 0.989999}))

	matched, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", "")},
	)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched != nil {
		t.Fatalf("expected no match, got %v", matched)
	}
}

func TestMatchAllOrNothing(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"index": 0, "score": 0.995},
			{"index": 1, "score": 0.5},
		})
	})

	matched, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg"), source("https://64.media.tumblr.com/s2.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", ""), candidate("https://i.pximg.net/c2.png", "")},
	)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched != nil {
		t.Fatalf("one weak score must reject the whole post, got %v", matched)
	}
}

func TestMatchRejectsDuplicateCandidate(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"index": 0, "score": 0.995},
			{"index": 0, "score": 0.999},
		})
	})

	matched, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg"), source("https://64.media.tumblr.com/s2.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", ""), candidate("https://i.pximg.net/c2.png", "")},
	)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched != nil {
		t.Fatalf("shared candidate must reject the result, got %v", matched)
	}
}

func TestMatchWrongLengthIsProtocolError(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"index": 0, "score": 0.995}})
	})

	_, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg"), source("https://64.media.tumblr.com/s2.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", ""), candidate("https://i.pximg.net/c2.png", "")},
	)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestMatchOutOfRangeIndexIsProtocolError(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"index": 5, "score": 0.995}})
	})

	_, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", "")},
	)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestMatchScoreOutOfRangeIsProtocolError(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"index": 0, "score": 1.5}})
	})

	_, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", "")},
	)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestMatchNon2xxIsProtocolError(t *testing.T) {
	client := newMatcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "matcher exploded", http.StatusInternalServerError)
	})

	_, err := client.Match(context.Background(),
		[]match.ImageRef{source("https://64.media.tumblr.com/s1.jpg")},
		[]match.Candidate{candidate("https://i.pximg.net/c1.png", "")},
	)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestMatchEmptyInputsShortCircuit(t *testing.T) {
	client := match.NewClient("http://127.0.0.1:0", 0)

	matched, err := client.Match(context.Background(), nil, nil)
	if err != nil || matched != nil {
		t.Fatalf("expected silent no-op, got %v %v", matched, err)
	}
}
