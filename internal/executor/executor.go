// Package executor runs independent units of work with a cap on how many are
// in flight at once.
package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Run calls fn once for every item, in list order of admission, with at most
// limit calls outstanding. A limit below 1 is treated as 1, which makes the
// run strictly sequential.
//
// The first error stops admission: calls already started run to completion
// (their context is not cancelled), no further items are started, and Run
// returns that error once the in-flight calls have finished. Cancelling ctx
// also stops admission.
func Run[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if limit < 1 {
		limit = 1
	}

	var (
		sem      = semaphore.NewWeighted(int64(limit))
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}
		// Acquire may succeed on a done context when a slot is free.
		if err := ctx.Err(); err != nil {
			sem.Release(1)
			fail(err)
			break
		}
		if failed() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx, item); err != nil {
				fail(err)
			}
			// Released only after the failure is recorded, so the next
			// admission sees it.
			sem.Release(1)
		}()
	}

	wg.Wait()
	return firstErr
}
