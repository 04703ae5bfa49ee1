package rb

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_roundToPowerOf2(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint64(1), roundToPowerOf2(0))
	assert.Equal(uint64(1), roundToPowerOf2(1))
	assert.Equal(uint64(2), roundToPowerOf2(2))
	assert.Equal(uint64(4), roundToPowerOf2(3))
	assert.Equal(uint64(32), roundToPowerOf2(32))
	assert.Equal(uint64(64), roundToPowerOf2(33))
}

func Test_spscBuffer(t *testing.T) {
	assert := assert.New(t)

	buf := newSPSCBuffer[int](4)

	for i := range 4 {
		assert.True(buf.push(i))
	}
	assert.False(buf.push(4))
	assert.Equal(uint64(4), buf.len())

	for i := range 4 {
		val, ok := buf.pop()
		assert.True(ok)
		assert.Equal(i, val)
	}

	_, ok := buf.pop()
	assert.False(ok)
	assert.Zero(buf.len())
}

func Test_RingBuffer_order(t *testing.T) {
	const (
		capacity   = 16
		totalItems = 200_000
	)

	assert := assert.New(t)

	rb := NewRingBuffer[int](capacity)

	go func() {
		defer rb.Close()

		for i := range totalItems {
			if err := rb.Write(t.Context(), i); err != nil {
				return
			}
		}
	}()

	expected := 0
	for {
		item, err := rb.Read(t.Context())
		if err != nil {
			assert.ErrorIs(err, ErrClosed)
			break
		}

		if item != expected {
			assert.Equal(expected, item)
			return
		}
		expected++
	}

	assert.Equal(totalItems, expected)
}

func Test_RingBuffer_drainAfterClose(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[string](4)

	assert.NoError(rb.Write(t.Context(), "a"))
	assert.NoError(rb.Write(t.Context(), "b"))
	rb.Close()
	rb.Close()

	assert.ErrorIs(rb.Write(t.Context(), "c"), ErrClosed)

	item, err := rb.Read(t.Context())
	assert.NoError(err)
	assert.Equal("a", item)

	item, err = rb.Read(t.Context())
	assert.NoError(err)
	assert.Equal("b", item)

	_, err = rb.Read(t.Context())
	assert.ErrorIs(err, ErrClosed)

	// Closed and empty is stable
	_, err = rb.Read(t.Context())
	assert.ErrorIs(err, ErrClosed)
}

func Test_RingBuffer_abandon(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](2)
	assert.NoError(rb.Write(t.Context(), 1))
	assert.NoError(rb.Write(t.Context(), 2))

	errCh := make(chan error, 1)
	go func() {
		// Blocks because the buffer is full
		errCh <- rb.Write(t.Context(), 3)
	}()

	time.Sleep(20 * time.Millisecond)
	rb.Abandon()

	select {
	case err := <-errCh:
		assert.ErrorIs(err, ErrAbandoned)
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}

	assert.ErrorIs(rb.Write(t.Context(), 4), ErrAbandoned)
}

func Test_RingBuffer_contextCancel(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](1)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := rb.Read(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)

	require.NoError(t, rb.Write(t.Context(), 1))

	ctx, cancel = context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(rb.Write(ctx, 2), context.DeadlineExceeded)
}

func Test_RingBuffer_blockedReaderWakesOnClose(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](8)

	wg := &sync.WaitGroup{}
	wg.Add(1)

	var readErr error
	go func() {
		defer wg.Done()
		_, readErr = rb.Read(t.Context())
	}()

	time.Sleep(20 * time.Millisecond)
	rb.Close()
	wg.Wait()

	assert.ErrorIs(readErr, ErrClosed)
}

func Benchmark_RingBuffer(b *testing.B) {
	b.ReportAllocs()

	capacities := []uint64{16, 256, 4096}
	for _, capacity := range capacities {
		b.Run("WriteReadSteady-"+strconv.FormatUint(capacity, 10), func(b *testing.B) {
			rb := NewRingBuffer[int](capacity)

			val := 0
			for b.Loop() {
				if err := rb.Write(b.Context(), val); err != nil {
					b.Fatal(err)
				}

				if _, err := rb.Read(b.Context()); err != nil {
					b.Fatal(err)
				}

				val++
			}
		})

		b.Run("Concurrent-"+strconv.FormatUint(capacity, 10), func(b *testing.B) {
			rb := NewRingBuffer[int](capacity)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					if _, err := rb.Read(b.Context()); err != nil {
						return
					}
				}
			}()

			val := 0
			for b.Loop() {
				if err := rb.Write(b.Context(), val); err != nil {
					b.Fatal(err)
				}
				val++
			}

			rb.Close()
			<-done
		})
	}
}
