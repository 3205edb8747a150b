package chflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Run("value available", func(t *testing.T) {
		ch := make(chan int, 1)
		ch <- 42

		value, ok := Receive(t.Context(), ch)

		assert.True(t, ok)
		assert.Equal(t, 42, value)
	})

	t.Run("closed channel", func(t *testing.T) {
		ch := make(chan int)
		close(ch)

		_, ok := Receive(t.Context(), ch)
		assert.False(t, ok)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		value, ok := Receive(ctx, make(chan int))

		assert.False(t, ok)
		assert.Zero(t, value)
	})
}

func TestSend(t *testing.T) {
	t.Run("buffered channel", func(t *testing.T) {
		ch := make(chan string, 1)

		assert.True(t, Send(t.Context(), ch, "sig"))
		assert.Equal(t, "sig", <-ch)
	})

	t.Run("canceled context with no receiver", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.False(t, Send(ctx, make(chan string), "sig"))
	})
}

func TestDrain(t *testing.T) {
	t.Run("consumes until close", func(t *testing.T) {
		ch := make(chan int, 3)
		ch <- 1
		ch <- 2
		ch <- 3
		close(ch)

		var got []int
		ok := Drain(t.Context(), ch, func(v int) { got = append(got, v) })

		assert.True(t, ok)
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		ok := Drain(ctx, make(chan int), func(int) { t.Fatal("unexpected value") })
		assert.False(t, ok)
	})
}
