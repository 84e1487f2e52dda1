package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nonalt/internal/gate"
	"nonalt/internal/match"
	"nonalt/internal/services"
	"nonalt/internal/testsupport"
)

func candidate(imageURL, artistURL string) match.Candidate {
	return match.Candidate{
		ImageRef:  match.ImageRef{ImageURL: imageURL, MIME: "image/png", Blob: "cGF5bG9hZA=="},
		ArtistURL: artistURL,
	}
}

func TestEvaluateAcceptsNewImageAndPersistsMapping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	ws := gate.WorkingSet{}
	urls, err := g.Evaluate(ctx, "https://example.tumblr.com/post/1",
		[]match.Candidate{candidate("https://i.example/c1.png", "https://www.pixiv.net/users/1")}, ws)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://i.example/c1.png" {
		t.Fatalf("unexpected accepted URLs %v", urls)
	}

	images, err := store.PostImagesFor(ctx, "https://example.tumblr.com/post/1")
	if err != nil {
		t.Fatalf("PostImagesFor: %v", err)
	}
	if len(images) != 1 || images[0].ArtistURL != "https://www.pixiv.net/users/1" {
		t.Fatalf("mapping not persisted: %v", images)
	}
	if ws["https://i.example/c1.png"] != "https://example.tumblr.com/post/1" {
		t.Fatalf("working set not updated: %v", ws)
	}
}

func TestEvaluateSamePostResubmissionIsBenign(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	ws := gate.WorkingSet{}
	postURL := "https://example.tumblr.com/post/1"
	matched := []match.Candidate{candidate("https://i.example/c1.png", "")}

	if _, err := g.Evaluate(ctx, postURL, matched, ws); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	urls, err := g.Evaluate(ctx, postURL, matched, ws)
	if err != nil {
		t.Fatalf("second Evaluate must not be fatal: %v", err)
	}
	if urls != nil {
		t.Fatalf("resubmission should classify as duplicate, got %v", urls)
	}
}

func TestEvaluateCrossPostClaimIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	ws := gate.WorkingSet{}
	matched := []match.Candidate{candidate("https://i.example/c1.png", "")}

	if _, err := g.Evaluate(ctx, "https://example.tumblr.com/post/1", matched, ws); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	_, err := g.Evaluate(ctx, "https://example.tumblr.com/post/2", matched, ws)
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestEvaluateDuplicateInQueueDropsPost(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	testsupport.Enqueue(t, store, "https://example.tumblr.com/post/9", "https://i.example/c1.png")

	urls, err := g.Evaluate(ctx, "https://example.tumblr.com/post/1",
		[]match.Candidate{candidate("https://i.example/c1.png", "")}, gate.WorkingSet{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if urls != nil {
		t.Fatalf("queued image must classify as duplicate, got %v", urls)
	}
}

func TestEvaluateDuplicateInHistoryDropsPost(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	if err := store.RecordHistory(ctx, []string{"https://i.example/c1.png"}, time.Now()); err != nil {
		t.Fatalf("RecordHistory: %v", err)
	}

	urls, err := g.Evaluate(ctx, "https://example.tumblr.com/post/1",
		[]match.Candidate{candidate("https://i.example/c1.png", "")}, gate.WorkingSet{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if urls != nil {
		t.Fatalf("reblogged image must classify as duplicate, got %v", urls)
	}
}

func TestEvaluateAllOrNothingReturnsEveryImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)
	ctx := context.Background()

	// One image already in history, one new: the post is accepted and both
	// image URLs come back because the repost acts on the whole post.
	if err := store.RecordHistory(ctx, []string{"https://i.example/old.png"}, time.Now()); err != nil {
		t.Fatalf("RecordHistory: %v", err)
	}

	urls, err := g.Evaluate(ctx, "https://example.tumblr.com/post/1",
		[]match.Candidate{
			candidate("https://i.example/old.png", ""),
			candidate("https://i.example/new.png", ""),
		}, gate.WorkingSet{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected both images returned, got %v", urls)
	}
}

func TestEvaluateEmptyMatchIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	g := gate.New(store, nil)

	urls, err := g.Evaluate(context.Background(), "https://example.tumblr.com/post/1", nil, gate.WorkingSet{})
	if err != nil || urls != nil {
		t.Fatalf("expected no-op, got %v %v", urls, err)
	}
}
