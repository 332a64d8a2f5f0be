package gateway

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/windfall/storyspeak/internal/errors"
)

// Result is the outcome of a Task: a value or a failure.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Task is a cancelable gateway call with a deadline. It runs in its own
// goroutine from Start until fn returns.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result[T]
}

// Start runs fn with a context derived from parent that expires after
// timeout. A zero timeout means no deadline.
func Start[T any](parent context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) *Task[T] {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	t := &Task[T]{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.result = Result[T]{Err: apperrors.Internal(fmt.Sprintf("gateway task panic: %v", r))}
			}
		}()

		v, err := fn(ctx)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			err = apperrors.AITimeout(err)
		}
		t.result = Result[T]{Value: v, Err: err}
	}()
	return t
}

// Cancel aborts the call. It is safe to call more than once.
func (t *Task[T]) Cancel() { t.cancel() }

// Done is closed when the task has a result.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends. When ctx ends first the
// task is canceled and ctx's error is returned.
func (t *Task[T]) Wait(ctx context.Context) Result[T] {
	select {
	case <-t.done:
		return t.result
	case <-ctx.Done():
		t.cancel()
		return Result[T]{Err: ctx.Err()}
	}
}

// Result returns the outcome if the task has finished.
func (t *Task[T]) Result() (Result[T], bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result[T]{}, false
	}
}
