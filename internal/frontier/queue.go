package frontier

// FIFOQueue is a first-in first-out queue. It is not safe for concurrent use.
type FIFOQueue[T any] struct {
	items []T
}

// NewFIFOQueue returns an empty queue.
func NewFIFOQueue[T any]() *FIFOQueue[T] {
	return &FIFOQueue[T]{}
}

// Enqueue appends item at the tail.
func (q *FIFOQueue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes the head. The second value is false when the queue is empty.
func (q *FIFOQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	head := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return head, true
}

// Size returns the number of pending items.
func (q *FIFOQueue[T]) Size() int {
	return len(q.items)
}
