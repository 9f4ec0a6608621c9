// Package buffer implements the bounded, single-producer/multi-consumer
// (usable multi-producer) message buffer shared by the ingestion and query
// pipelines: a FIFO with optional backpressure and a four-state lifecycle.
//
// Backpressure is implemented with a sync.Cond rather than a busy loop, per
// the module's concurrency design notes.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
)

// State is one of the four lifecycle states a Buffer moves through.
type State int

const (
	// Inactive is the state a freshly constructed Buffer starts in:
	// enqueue and take both fail.
	Inactive State = iota
	// Supplying accepts enqueue and permits take.
	Supplying
	// Draining rejects new enqueues but continues to serve take until empty.
	Draining
	// Closed rejects both enqueue and take.
	Closed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Supplying:
		return "supplying"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultCapacity is used when a caller passes capacity 0 with
// backpressure enabled ("0 means default", spec.md §4.1).
const DefaultCapacity = 256

// Buffer is a bounded FIFO of T with the lifecycle described in spec.md
// §4.1 (component C3).
type Buffer[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	items []T

	capacity     int
	backpressure bool

	state State
	err   error // terminal error set by CloseWithError, surfaced by Take/Poll
}

// New constructs a Buffer in the Inactive state. capacity == 0 means
// "default capacity" when backpressure is enabled; capacity is ignored
// (the buffer grows unbounded) when backpressure is disabled.
func New[T any](capacity int, backpressure bool) *Buffer[T] {
	if backpressure && capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer[T]{capacity: capacity, backpressure: backpressure, state: Inactive}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Activate transitions Inactive -> Supplying. It is an idempotent no-op if
// already Supplying, and fails if the buffer is Draining or Closed.
func (b *Buffer[T]) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Inactive:
		b.state = Supplying
		b.cond.Broadcast()
		return nil
	case Supplying:
		return nil
	default:
		return dperrors.Statef("buffer: cannot activate from state %s", b.state)
	}
}

// State returns the buffer's current lifecycle state.
func (b *Buffer[T]) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsSupplying reports whether the buffer currently accepts enqueues.
func (b *Buffer[T]) IsSupplying() bool {
	return b.State() == Supplying
}

// Len reports the number of items currently queued.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Enqueue appends item to the buffer. It fails immediately with a
// KindClosed error if the buffer is Draining or Closed. If backpressure is
// enabled and the buffer is at capacity, Enqueue blocks until space frees
// up, the buffer starts Draining (in which case it fails), or ctx is
// cancelled (KindInterrupted).
func (b *Buffer[T]) Enqueue(ctx context.Context, item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		switch b.state {
		case Supplying:
			if b.backpressure && len(b.items) >= b.capacity {
				if done := b.waitLocked(ctx); done != nil {
					return done
				}
				continue
			}
			b.items = append(b.items, item)
			b.cond.Broadcast()
			return nil
		case Draining, Closed:
			return dperrors.ClosedMsg("buffer: enqueue on a non-supplying buffer")
		default:
			return dperrors.Statef("buffer: enqueue called in state %s", b.state)
		}
	}
}

// EnqueueAll enqueues each item in order, stopping at the first failure.
func (b *Buffer[T]) EnqueueAll(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := b.Enqueue(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Take blocks while the buffer is Supplying and empty, returning the next
// item once one is available. Once the buffer has moved to Draining and
// drained to empty, Take returns the zero value and ok=false exactly once;
// every call thereafter fails with a KindClosed error.
func (b *Buffer[T]) Take(ctx context.Context) (item T, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if len(b.items) > 0 {
			item = b.items[0]
			var zero T
			b.items[0] = zero
			b.items = b.items[1:]
			b.cond.Broadcast()
			return item, true, nil
		}

		switch b.state {
		case Closed:
			if b.err != nil {
				return item, false, b.err
			}
			return item, false, dperrors.ClosedMsg("buffer: take on closed buffer")
		case Draining:
			b.state = Closed
			b.cond.Broadcast()
			return item, false, b.err
		case Supplying:
			if done := b.waitLocked(ctx); done != nil {
				return item, false, done
			}
		default:
			return item, false, dperrors.Statef("buffer: take called in state %s", b.state)
		}
	}
}

// Poll is the non-blocking form of Take: it returns ok=false immediately
// if no item is ready, without changing state.
func (b *Buffer[T]) Poll() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return item, false
	}
	item = b.items[0]
	var zero T
	b.items[0] = zero
	b.items = b.items[1:]
	b.cond.Broadcast()
	return item, true
}

// PollTimeout blocks up to timeout waiting for an item. timeout == 0
// behaves like Poll (non-blocking); timeout < 0 is a configuration error.
// A timeout elapsing returns ok=false, err=nil, distinguishing it from a
// cancelled context (KindInterrupted) or a closed buffer (KindClosed).
func (b *Buffer[T]) PollTimeout(ctx context.Context, timeout time.Duration) (item T, ok bool, err error) {
	if timeout < 0 {
		return item, false, dperrors.Configuration("buffer: negative poll timeout")
	}
	if timeout == 0 {
		item, ok = b.Poll()
		return item, ok, nil
	}

	deadlineCtx, cancel := context.WithTimeout(orBackground(ctx), timeout)
	defer cancel()

	item, ok, err = b.Take(deadlineCtx)
	if err != nil && deadlineCtx.Err() == context.DeadlineExceeded {
		return item, false, nil
	}
	return item, ok, err
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// waitLocked blocks on b.cond until woken, honoring ctx cancellation. It
// must be called with b.mu held and returns a non-nil error only when the
// caller should stop looping and propagate it.
func (b *Buffer[T]) waitLocked(ctx context.Context) error {
	if ctx == nil {
		b.cond.Wait()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return dperrors.Interrupted(err)
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		close(done)
		b.cond.Broadcast()
	})
	defer stop()

	b.cond.Wait()

	select {
	case <-done:
		return dperrors.Interrupted(ctx.Err())
	default:
		return nil
	}
}

// Shutdown transitions Supplying -> Draining, then blocks the caller until
// the queue drains to empty, at which point the state becomes Closed.
func (b *Buffer[T]) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case Supplying:
		b.state = Draining
		b.cond.Broadcast()
	case Draining, Closed:
		// already shutting down or shut down
	default:
		b.mu.Unlock()
		return dperrors.Statef("buffer: shutdown called in state %s", b.state)
	}
	for len(b.items) > 0 && b.state != Closed {
		if err := b.waitLocked(ctx); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	if b.state == Draining {
		b.state = Closed
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	return nil
}

// ShutdownNow discards any queued items and transitions directly to Closed.
func (b *Buffer[T]) ShutdownNow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.state = Closed
	b.cond.Broadcast()
}

// CloseWithError records a terminal error and transitions directly to
// Closed; the next Take/Poll observes err. Used by the Frame Processor
// (pkg/ingest) to surface a per-frame conversion failure to anything
// blocked on the output buffer.
func (b *Buffer[T]) CloseWithError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.err = err
	b.state = Closed
	b.cond.Broadcast()
}

// AwaitEmpty blocks until the queue has no items queued (regardless of
// state), or ctx is cancelled.
func (b *Buffer[T]) AwaitEmpty(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) > 0 {
		if err := b.waitLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AwaitReady blocks until the buffer has at least one item queued or has
// left the Supplying state, or ctx is cancelled.
func (b *Buffer[T]) AwaitReady(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 && b.state == Supplying {
		if err := b.waitLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}
