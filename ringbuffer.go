package screenrec

import (
	"context"
	"sync"
	"sync/atomic"
)

// OverflowPolicy decides what Push does on a full RingBuffer.
type OverflowPolicy int

const (
	OverflowBlock      OverflowPolicy = iota // Producer waits for space
	OverflowDropOldest                       // Oldest entry is evicted
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// RingBuffer is a bounded single-producer/single-consumer FIFO.
type RingBuffer[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	closed bool

	policy  OverflowPolicy
	onEvict func(T)

	readable chan struct{} // signalled after a push
	writable chan struct{} // signalled after a pop
	done     chan struct{} // closed by Close

	dropped atomic.Uint64
	pushed  atomic.Uint64
}

// NewRingBuffer creates a queue holding at most capacity entries. onEvict,
// if set, receives entries evicted under OverflowDropOldest and entries
// discarded by Drain.
func NewRingBuffer[T any](capacity int, policy OverflowPolicy, onEvict func(T)) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		buf:      make([]T, capacity),
		policy:   policy,
		onEvict:  onEvict,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Push appends v. Under OverflowBlock it waits for space; under
// OverflowDropOldest it never waits. Returns ErrQueueClosed after Close.
func (r *RingBuffer[T]) Push(ctx context.Context, v T) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrQueueClosed
		}
		if r.size < len(r.buf) {
			r.insertLocked(v)
			r.mu.Unlock()
			signal(r.readable)
			return nil
		}
		if r.policy == OverflowDropOldest {
			evicted := r.takeLocked()
			r.insertLocked(v)
			r.mu.Unlock()
			r.dropped.Add(1)
			if r.onEvict != nil {
				r.onEvict(evicted)
			}
			signal(r.readable)
			return nil
		}
		r.mu.Unlock()

		select {
		case <-r.writable:
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes the oldest entry, waiting until one is available. After Close
// the remaining entries are still returned; once empty it reports
// ErrQueueClosed.
func (r *RingBuffer[T]) Pop(ctx context.Context) (T, error) {
	for {
		v, ok, err := r.TryPop()
		if ok || err != nil {
			return v, err
		}
		select {
		case <-r.readable:
		case <-r.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest entry without waiting. ok is false when the queue
// is empty; err is ErrQueueClosed when it is also closed.
func (r *RingBuffer[T]) TryPop() (v T, ok bool, err error) {
	r.mu.Lock()
	if r.size > 0 {
		v = r.takeLocked()
		r.mu.Unlock()
		signal(r.writable)
		return v, true, nil
	}
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return v, false, ErrQueueClosed
	}
	return v, false, nil
}

// Readable returns a channel that receives after pushes. Consumers use it to
// wait on several queues at once and must re-check with TryPop.
func (r *RingBuffer[T]) Readable() <-chan struct{} {
	return r.readable
}

// Done is closed once Close has been called.
func (r *RingBuffer[T]) Done() <-chan struct{} {
	return r.done
}

// Close stops accepting pushes. Idempotent.
func (r *RingBuffer[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
}

// Drain removes all queued entries and hands them to fn, or to the eviction
// hook when fn is nil.
func (r *RingBuffer[T]) Drain(fn func(T)) int {
	var out []T
	r.mu.Lock()
	for r.size > 0 {
		out = append(out, r.takeLocked())
	}
	r.mu.Unlock()
	signal(r.writable)
	if fn == nil {
		fn = r.onEvict
	}
	if fn != nil {
		for _, v := range out {
			fn(v)
		}
	}
	return len(out)
}

// Len returns the number of queued entries.
func (r *RingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns how many entries were evicted by OverflowDropOldest.
func (r *RingBuffer[T]) Dropped() uint64 {
	return r.dropped.Load()
}

// Pushed returns how many entries were accepted.
func (r *RingBuffer[T]) Pushed() uint64 {
	return r.pushed.Load()
}

// Policy returns the overflow policy.
func (r *RingBuffer[T]) Policy() OverflowPolicy {
	return r.policy
}

func (r *RingBuffer[T]) insertLocked(v T) {
	tail := (r.head + r.size) % len(r.buf)
	r.buf[tail] = v
	r.size++
	r.pushed.Add(1)
}

func (r *RingBuffer[T]) takeLocked() T {
	var zero T
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v
}
