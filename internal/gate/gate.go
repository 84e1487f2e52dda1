package gate

import (
	"context"
	"fmt"
	"log/slog"

	"nonalt/internal/logging"
	"nonalt/internal/match"
	"nonalt/internal/services"
	"nonalt/internal/storage"
)

// WorkingSet tracks which post each image URL was claimed by during the
// current scan session. It is owned by the session and mutated only through
// the gate, which runs under the pipeline's single-flight cap.
type WorkingSet map[string]string

// Gate decides whether matched candidate images are genuinely new, and
// records the post-to-images mapping for accepted posts.
type Gate struct {
	store  *storage.Store
	logger *slog.Logger
}

// New constructs a Gate over the persistence store.
func New(store *storage.Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{store: store, logger: logging.NewComponentLogger(logger, "gate")}
}

// Evaluate classifies each matched image against the session working set,
// the pending queue, and the repost history, in that order. Acceptance is
// all-or-nothing at the post level: when at least one image is new, every
// matched image URL is returned and the post's mapping is persisted; when
// all are duplicates, the post is dropped with an empty result.
//
// An image already claimed by a different post in this session is a fatal
// consistency error: two feed posts resolving to the identical source image
// means the pipeline misfiled something, so the scan must halt rather than
// silently mislabel history.
func (g *Gate) Evaluate(ctx context.Context, postURL string, matched []match.Candidate, ws WorkingSet) ([]string, error) {
	if len(matched) == 0 {
		return nil, nil
	}

	anyNew := false
	for _, candidate := range matched {
		imageURL := candidate.ImageURL

		if claimedBy, ok := ws[imageURL]; ok {
			if claimedBy != postURL {
				return nil, services.Wrap(services.ErrConsistency, "gate", "evaluate",
					fmt.Sprintf("image %s claimed by both %s and %s", imageURL, claimedBy, postURL), nil)
			}
			g.logger.Info("already seen this session",
				logging.String(logging.FieldImageURL, imageURL),
				logging.String(logging.FieldPostURL, postURL))
			continue
		}
		ws[imageURL] = postURL

		queued, err := g.store.QueueContainsImage(ctx, imageURL)
		if err != nil {
			return nil, err
		}
		if queued {
			g.logger.Info("already queued for reblogging",
				logging.String(logging.FieldImageURL, imageURL))
			continue
		}

		seen, err := g.store.HistoryContains(ctx, imageURL)
		if err != nil {
			return nil, err
		}
		if seen {
			g.logger.Info("already reblogged",
				logging.String(logging.FieldImageURL, imageURL))
			continue
		}

		anyNew = true
	}

	if !anyNew {
		g.logger.Info("post dropped, all images duplicated",
			logging.String(logging.FieldPostURL, postURL))
		return nil, nil
	}

	images := make([]storage.PostImage, 0, len(matched))
	urls := make([]string, 0, len(matched))
	for _, candidate := range matched {
		images = append(images, storage.PostImage{
			ImageURL:  candidate.ImageURL,
			ArtistURL: candidate.ArtistURL,
		})
		urls = append(urls, candidate.ImageURL)
	}
	if err := g.store.SetPostImages(ctx, postURL, images); err != nil {
		return nil, err
	}

	g.logger.Info("post accepted",
		logging.String(logging.FieldPostURL, postURL),
		logging.Int("images", len(urls)))
	return urls, nil
}
