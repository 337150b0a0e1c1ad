package thumbnail

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultPrefetchConcurrency is used when Prefetch is given a non-positive limit.
const DefaultPrefetchConcurrency = 4

// Result is the outcome of warming one URL.
type Result struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Err    error  `json:"-"`
}

// Prefetch loads urls with at most concurrency downloads in flight and
// returns one Result per input URL, in input order. A failed URL does not
// stop the others; only context cancellation does.
func (c *Cache) Prefetch(ctx context.Context, urls []string, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultPrefetchConcurrency
	}
	results := make([]Result, len(urls))
	sem := semaphore.NewWeighted(int64(concurrency))
	var g errgroup.Group

	for i, u := range urls {
		results[i].URL = u
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			for j := i; j < len(urls); j++ {
				results[j] = Result{URL: urls[j], Err: err}
			}
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			img, err := c.Load(ctx, u)
			if err != nil {
				results[i].Err = err
				return nil
			}
			b := img.Bounds()
			results[i].Width, results[i].Height = b.Dx(), b.Dy()
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}
