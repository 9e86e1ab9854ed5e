package fetch

import (
	"context"
	"sync"
)

// Result is the outcome of one settled task
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Task is a named unit of concurrent work
type Task[T any] func(ctx context.Context) (T, error)

// Settle runs every task concurrently and waits for all of them. It never
// short-circuits: each task's value or error lands in its own result slot.
func Settle[T any](ctx context.Context, tasks map[string]Task[T]) map[string]Result[T] {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	slots := make([]Result[T], len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			slots[i].Value, slots[i].Err = task(ctx)
		}(i, tasks[name])
	}
	wg.Wait()

	results := make(map[string]Result[T], len(names))
	for i, name := range names {
		results[name] = slots[i]
	}
	return results
}
