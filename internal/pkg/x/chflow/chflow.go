// Package chflow provides context-aware helpers for sending to and receiving
// from channels, so producers and consumers stop promptly on cancellation.
package chflow

import "context"

// Receive waits for a value on ch or for ctx to be done.
// The boolean is false when ctx ended first or ch was closed.
func Receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var data T
	select {
	case <-ctx.Done():
		return data, false
	case data, ok := <-ch:
		return data, ok
	}
}

// Send delivers data on ch unless ctx is done first.
func Send[T any](ctx context.Context, ch chan<- T, data T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- data:
		return true
	}
}

// Drain receives from ch until it is closed or ctx is done, handing every
// value to fn. It reports whether ch was fully drained.
func Drain[T any](ctx context.Context, ch <-chan T, fn func(T)) bool {
	for {
		data, ok := Receive(ctx, ch)
		if !ok {
			return ctx.Err() == nil
		}

		fn(data)
	}
}
