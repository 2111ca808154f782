package dawio

import "sync/atomic"

// spscRing is a bounded single-producer single-consumer queue. Neither side
// blocks or allocates.
type spscRing[T any] struct {
	buf  []T
	mask uint64

	_    [56]byte
	head atomic.Uint64 // next slot to read, owned by the consumer
	_    [56]byte
	tail atomic.Uint64 // next slot to write, owned by the producer
}

func newSPSCRing[T any](capacity int) *spscRing[T] {
	size := nextPowerOfTwo(uint32(max(capacity, 2)))
	return &spscRing[T]{
		buf:  make([]T, size),
		mask: uint64(size - 1),
	}
}

func (r *spscRing[T]) push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

func (r *spscRing[T]) pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}
