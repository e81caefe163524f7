package stack

import (
	"context"
	"sync"
)

// schedule runs every name in names exactly once, respecting waitFor edges
// (name only starts once every entry in waitFor[name] has finished) with at
// most maxWorkers concurrent runFn calls. If any entry in waitFor[name]
// finished unsuccessfully, runFn is never called for name and skipFn runs
// instead. A bounded-goroutine/WaitGroup fan-out, with a semaphore channel
// to cap concurrency and per-node completion channels to encode the DAG.
func schedule(ctx context.Context, names []string, waitFor map[string][]string, maxWorkers int, runFn func(name string) bool, skipFn func(name string)) map[string]bool {
	done := make(map[string]chan struct{}, len(names))
	for _, n := range names {
		done[n] = make(chan struct{})
	}

	var mu sync.Mutex
	results := make(map[string]bool, len(names))
	sem := make(chan struct{}, maxWorkers)

	var wg sync.WaitGroup
	wg.Add(len(names))

	for _, n := range names {
		n := n
		go func() {
			defer wg.Done()
			defer close(done[n])

			depsOK := true
			for _, dep := range waitFor[n] {
				<-done[dep]
				mu.Lock()
				ok := results[dep]
				mu.Unlock()
				if !ok {
					depsOK = false
				}
			}

			if !depsOK {
				skipFn(n)
				mu.Lock()
				results[n] = false
				mu.Unlock()
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				skipFn(n)
				mu.Lock()
				results[n] = false
				mu.Unlock()
				return
			}
			ok := runFn(n)
			<-sem

			mu.Lock()
			results[n] = ok
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
