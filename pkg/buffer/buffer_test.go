package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActivateIdempotent(t *testing.T) {
	b := New[int](0, false)
	require.Equal(t, Inactive, b.State())
	require.NoError(t, b.Activate())
	require.NoError(t, b.Activate())
	require.Equal(t, Supplying, b.State())
}

func TestEnqueueTakeFIFO(t *testing.T) {
	b := New[int](0, false)
	require.NoError(t, b.Activate())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Enqueue(ctx, i))
	}
	for i := 0; i < 5; i++ {
		v, ok, err := b.Take(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestTakeOnDrainingEmptyReturnsNilOnce(t *testing.T) {
	b := New[int](0, false)
	require.NoError(t, b.Activate())

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- b.Shutdown(ctx) }()

	_, ok, err := b.Take(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, <-done)
	require.Equal(t, Closed, b.State())

	_, _, err = b.Take(ctx)
	require.Error(t, err)
}

func TestBackpressureBlocksUntilSpace(t *testing.T) {
	b := New[int](2, true)
	require.NoError(t, b.Activate())
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, 1))
	require.NoError(t, b.Enqueue(ctx, 2))

	blocked := make(chan struct{})
	go func() {
		close(blocked)
		require.NoError(t, b.Enqueue(ctx, 3))
	}()

	<-blocked
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2, b.Len())

	_, ok, err := b.Take(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool { return b.Len() == 2 }, time.Second, time.Millisecond)
}

func TestEnqueueFailsOnceDraining(t *testing.T) {
	b := New[int](0, true)
	require.NoError(t, b.Activate())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Shutdown(ctx)
	}()
	wg.Wait()

	err := b.Enqueue(ctx, 99)
	require.Error(t, err)
}

func TestEnqueueRespectsCancellation(t *testing.T) {
	b := New[int](1, true)
	require.NoError(t, b.Activate())
	require.NoError(t, b.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Enqueue(ctx, 2)
	require.Error(t, err)
}

func TestPollTimeoutElapses(t *testing.T) {
	b := New[int](0, false)
	require.NoError(t, b.Activate())

	_, ok, err := b.PollTimeout(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPollTimeoutNegativeIsConfigurationError(t *testing.T) {
	b := New[int](0, false)
	require.NoError(t, b.Activate())

	_, _, err := b.PollTimeout(context.Background(), -1*time.Millisecond)
	require.Error(t, err)
}

func TestCloseWithErrorSurfacedOnTake(t *testing.T) {
	b := New[int](0, false)
	require.NoError(t, b.Activate())
	b.CloseWithError(errBoom)

	_, _, err := b.Take(context.Background())
	require.ErrorIs(t, err, errBoom)
}

var errBoom = &boom{}

type boom struct{}

func (*boom) Error() string { return "boom" }
