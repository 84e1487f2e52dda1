package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"nonalt/internal/match"
)

// batchConcurrency bounds parallel downloads within one batch.
const batchConcurrency = 4

// FetchAll downloads every requested image and returns the payloads in
// request order. Any single failure fails the batch; the caller drops the
// affected unit of work.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) ([]match.ImageRef, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	refs := make([]match.ImageRef, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			ref, err := f.Fetch(gctx, req)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
