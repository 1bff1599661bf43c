// Package pool keeps a bounded free list of reusable objects.
package pool

// Resettable objects clear their state before being reused.
type Resettable interface {
	Reset()
}

// Pool recycles values of type T. Unlike sync.Pool it never drops idle
// objects on GC and holds at most capacity of them.
type Pool[T Resettable] struct {
	items   chan T
	newItem func() T
}

// New returns a Pool holding up to capacity idle objects. newItem builds a
// fresh object whenever the pool is empty.
func New[T Resettable](capacity int, newItem func() T) *Pool[T] {
	return &Pool[T]{
		items:   make(chan T, capacity),
		newItem: newItem,
	}
}

// Get takes an idle object or builds a new one.
func (p *Pool[T]) Get() T {
	select {
	case item := <-p.items:
		return item
	default:
		return p.newItem()
	}
}

// Put resets item and keeps it for reuse. Items beyond capacity are discarded.
func (p *Pool[T]) Put(item T) {
	item.Reset()

	select {
	case p.items <- item:
	default:
	}
}

// Idle reports how many objects are waiting for reuse.
func (p *Pool[T]) Idle() int {
	return len(p.items)
}
