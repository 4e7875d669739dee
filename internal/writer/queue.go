package writer

import "sync"

// Queue is a thread-safe FIFO that doubles its capacity when it reaches 70%
// full, up to an optional limit. Send never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	limit    int // max capacity (0 = unbounded)
	closed   bool
	ready    chan struct{}
	dropped  int64
	received int64
}

// NewQueue creates a queue with the given initial capacity. limit caps growth;
// Send rejects items once the queue holds limit items.
func NewQueue[T any](initialCapacity, limit int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Queue[T]{
		buf:   make([]T, initialCapacity),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Send appends item. Returns false if the queue is closed or full.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.limit > 0 && q.count >= q.limit {
		q.dropped++
		return false
	}

	threshold := (len(q.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.received++

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after Send. A single signal may cover several items.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes up to max items (max <= 0 takes all) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = zero // Clear reference for GC
		q.head = (q.head + 1) % len(q.buf)
		q.count--
	}
	return out
}

// Close rejects further sends. Items already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count    int
	Capacity int
	Received int64
	Dropped  int64
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:    q.count,
		Capacity: len(q.buf),
		Received: q.received,
		Dropped:  q.dropped,
	}
}

// grow doubles the capacity. Must be called with lock held.
func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	if size <= len(q.buf) {
		return
	}

	buf := make([]T, size)
	if q.count > 0 {
		if q.head < q.tail {
			copy(buf, q.buf[q.head:q.tail])
		} else {
			n := copy(buf, q.buf[q.head:])
			copy(buf[n:], q.buf[:q.tail])
		}
	}

	q.buf = buf
	q.head = 0
	q.tail = q.count
}
