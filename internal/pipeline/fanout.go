package pipeline

import (
	"context"
	"sync"
)

// fanoutLimit returns min(size*factor, ceiling), never less than one.
func fanoutLimit(size, factor, ceiling int) int {
	n := size * factor
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	if n < 1 {
		n = 1
	}
	return n
}

// fanOut runs fn over items with at most limit calls in flight. Every result
// is written to the slot of its input index, so the returned survivors keep
// input order. errs is index-aligned with items and nil where fn succeeded.
func fanOut[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) (R, error)) (out []R, errs []error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]R, len(items))
	errs = make([]error, len(items))

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, item := range items {
		if ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = fn(ctx, i, item)
		}(i, item)
	}
	wg.Wait()
	return compact(results, errs), errs
}

func compact[R any](results []R, errs []error) []R {
	out := make([]R, 0, len(results))
	for i, r := range results {
		if errs[i] == nil {
			out = append(out, r)
		}
	}
	return out
}
