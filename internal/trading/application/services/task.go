package services

import "context"

// Task is a unit of work running in the background with a single result.
type Task[T any] struct {
	done   chan struct{}
	result T
}

func startTask[T any](fn func() T) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.result = fn()
	}()
	return t
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
