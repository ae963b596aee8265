// Package pool provides the bounded-concurrency mapper and retry helpers the
// scheduler fans extraction work through.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is one output slot of Map. Exactly one of OK/Err is meaningful once a
// worker ran the slot; a zero Result means the slot was never processed (the
// documented concurrency <= 0 quirk).
type Result[T any] struct {
	Value T
	Err   error
	OK    bool
}

// Options tune a Map call.
type Options struct {
	// Concurrency is the fixed worker pool size. Zero or negative spawns no
	// workers and leaves every slot unprocessed.
	Concurrency int
	// MinDelay is the minimum spacing between the starts of consecutive
	// worker invocations, enforced process-wide across the pool.
	MinDelay time.Duration
}

// startGate spaces worker invocation starts. One gate is shared by the whole
// pool so the delay applies between any two starts, not per worker slot.
type startGate struct {
	mu        sync.Mutex
	minDelay  time.Duration
	lastStart time.Time
}

func (g *startGate) wait(ctx context.Context) error {
	if g.minDelay <= 0 {
		return nil
	}
	g.mu.Lock()
	elapsed := time.Since(g.lastStart)
	var sleep time.Duration
	if !g.lastStart.IsZero() && elapsed < g.minDelay {
		sleep = g.minDelay - elapsed
	}
	g.lastStart = time.Now().Add(sleep)
	g.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}

// Map runs worker over items with a fixed pool and returns one result slot per
// item, index-aligned with the input. Workers pull the next unprocessed index
// from a shared counter, so side-effect order is unspecified while output
// order is stable. A worker error is captured in its slot and never aborts the
// other slots.
func Map[T, R any](ctx context.Context, items []T, worker func(ctx context.Context, item T, index int) (R, error), opts Options) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 || opts.Concurrency <= 0 {
		return results
	}

	workers := opts.Concurrency
	if workers > len(items) {
		workers = len(items)
	}

	gate := &startGate{minDelay: opts.MinDelay}
	var next int64 = -1

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(items) {
					return nil
				}
				if err := gate.wait(gctx); err != nil {
					results[i] = Result[R]{Err: err}
					return nil
				}
				v, err := func() (v R, err error) {
					defer func() {
						if r := recover(); r != nil {
							err = fmt.Errorf("worker panic: %v", r)
						}
					}()
					return worker(gctx, items[i], i)
				}()
				if err != nil {
					results[i] = Result[R]{Err: err}
				} else {
					results[i] = Result[R]{Value: v, OK: true}
				}
			}
		})
	}
	g.Wait()

	return results
}
