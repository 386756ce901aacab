// Package workers runs independent calls concurrently on a bounded pool.
// Calls share nothing except what their closures capture.
package workers

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Call is a named unit of work.
type Call struct {
	Name string
	Fn   func(ctx context.Context) (any, error)
}

// Result is the outcome of one Call.
type Result struct {
	Name  string
	Value any
	Err   error
}

// RunInThreads runs calls on at most threads goroutines and returns their
// results in the order the calls were given. threads <= 0 uses GOMAXPROCS.
// The returned error joins every failed call's error.
func RunInThreads(ctx context.Context, threads int, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	p := newPool(ctx, threads)
	for i, call := range calls {
		p.Go(func(ctx context.Context) error {
			value, err := invoke(ctx, call)
			results[i] = Result{Name: call.Name, Value: value, Err: err}
			return err
		})
	}
	return results, p.Wait()
}

// RunInProcesses runs calls on a pool sized to the available CPUs. Go
// schedules goroutines across OS threads, so CPU-bound calls get the same
// parallelism a process pool would give them.
func RunInProcesses(ctx context.Context, calls []Call) ([]Result, error) {
	return RunInThreads(ctx, runtime.GOMAXPROCS(0), calls)
}

// RunWithReturnQueue runs calls and delivers each result on the returned
// channel as soon as it finishes. The channel is closed after the last one.
func RunWithReturnQueue(ctx context.Context, threads int, calls []Call) <-chan Result {
	queue := make(chan Result, len(calls))
	p := newPool(ctx, threads)
	for _, call := range calls {
		p.Go(func(ctx context.Context) error {
			value, err := invoke(ctx, call)
			queue <- Result{Name: call.Name, Value: value, Err: err}
			return nil
		})
	}
	go func() {
		_ = p.Wait()
		close(queue)
	}()
	return queue
}

// Collect drains a result queue into a map keyed by call name.
func Collect(queue <-chan Result) map[string]Result {
	out := map[string]Result{}
	for result := range queue {
		out[result.Name] = result
	}
	return out
}

func newPool(ctx context.Context, threads int) *pool.ContextPool {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return pool.New().WithMaxGoroutines(threads).WithContext(ctx)
}

func invoke(ctx context.Context, call Call) (any, error) {
	if call.Fn == nil {
		return nil, fmt.Errorf("call %q has no function", call.Name)
	}
	value, err := call.Fn(ctx)
	if err != nil {
		return value, fmt.Errorf("%s: %w", call.Name, err)
	}
	return value, nil
}
