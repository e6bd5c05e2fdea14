package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// runBatches calls fn for every item, size items at a time. Calls inside a
// batch run concurrently; the next batch starts only after the whole batch
// returned and delay elapsed. There is no delay after the last batch. A
// cancelled context stops before the next batch and returns the outcomes
// gathered so far.
func runBatches[T any](ctx context.Context, items []T, size int, delay time.Duration,
	sleep func(context.Context, time.Duration) error, fn func(context.Context, T) outcome) ([]outcome, error) {

	if size < 1 {
		size = 1
	}

	outcomes := make([]outcome, 0, len(items))
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		end := min(start+size, len(items))
		batch := items[start:end]
		results := make([]outcome, len(batch))

		var g errgroup.Group
		for i, item := range batch {
			g.Go(func() error {
				results[i] = fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
		outcomes = append(outcomes, results...)

		if end < len(items) && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return outcomes, err
			}
		}
	}

	return outcomes, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
