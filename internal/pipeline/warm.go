package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"thumbcache/internal/logging"
	"thumbcache/internal/workers"
)

// Warm pre-generates thumbnails for every (source, width) combination
// using derived heights, fanning the work out over a bounded worker
// pool. Individual failures are logged and counted, not fatal; the
// first context cancellation stops the run. Returns the number of
// thumbnails that were generated or already cached.
func (p *Pipeline) Warm(ctx context.Context, sources []string, widths []int) (int, error) {
	if len(sources) == 0 || len(widths) == 0 {
		return 0, nil
	}

	type job struct {
		source string
		width  int
	}

	jobs := make(chan job)
	var done, failed atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < workers.ForCPU(len(sources)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if _, err := p.Make(ctx, j.source, j.width, 0); err != nil {
					failed.Add(1)
					if !errors.Is(err, context.Canceled) {
						logging.Warn("Warm-up failed for %s@%d: %v", j.source, j.width, err)
					}
					continue
				}
				done.Add(1)
			}
		}()
	}

loop:
	for _, source := range sources {
		for _, width := range widths {
			select {
			case jobs <- job{source: source, width: width}:
			case <-ctx.Done():
				break loop
			}
		}
	}
	close(jobs)
	wg.Wait()

	logging.Info("Cache warm-up complete: %d generated, %d failed", done.Load(), failed.Load())
	return int(done.Load()), ctx.Err()
}
