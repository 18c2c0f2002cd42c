package deque

import (
	"sync/atomic"

	"github.com/vnykmshr/stealflow/pkg/common/cacheline"
)

// DefaultCapacity is the initial number of slots used by New when the
// requested capacity is zero.
const DefaultCapacity = 32

// StealResult reports the outcome of a Steal.
type StealResult int

const (
	// Empty means there was nothing to take.
	Empty StealResult = iota
	// Stolen means the returned value now belongs to the caller.
	Stolen
	// Aborted means another thief or the owner won the race for the top
	// element. It is not an error; the caller may retry or move on.
	Aborted
)

func (r StealResult) String() string {
	switch r {
	case Empty:
		return "empty"
	case Stolen:
		return "stolen"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Deque is a Chase-Lev work-stealing deque of *T.
//
// Push, Pop and TryPop may only be called by the single owning goroutine.
// Steal may be called from any goroutine, concurrently with the owner.
//
// Every operation in sync/atomic is sequentially consistent, so the relaxed,
// acquire and release accesses of the published algorithm are all satisfied
// by plain Load/Store, and the full fences are implied by the store to bottom
// (in Pop) and the load of top (in Steal). What matters, and what must not be
// reordered, is the sequence of those accesses.
type Deque[T any] struct {
	array  atomic.Pointer[CircularArray[T]]
	top    cacheline.Padded[atomic.Int64]
	bottom cacheline.Padded[atomic.Int64]
}

// New creates a deque whose first generation has the given capacity, which
// must be a power of two. A capacity of 0 selects DefaultCapacity.
func New[T any](capacity int) (*Deque[T], error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	a, err := NewCircularArray[T](capacity)
	if err != nil {
		return nil, err
	}
	d := &Deque[T]{}
	d.array.Store(a)
	return d, nil
}

// Push adds v at the bottom. Owner only.
//
// The only possible error is errors.ErrCapacityExceeded when the deque would
// have to grow past MaxCapacity; the deque is unchanged in that case.
func (d *Deque[T]) Push(v *T) error {
	b := d.bottom.Value.Load()
	t := d.top.Value.Load()
	a := d.array.Load()
	if b-t > int64(a.Cap())-1 {
		grown, err := a.Grow(t, b)
		if err != nil {
			return err
		}
		a = grown
		d.array.Store(a)
	}
	a.Put(b, v)
	// The slot write above is ordered before this publish: a thief that
	// observes b+1 also observes the slot.
	d.bottom.Value.Store(b + 1)
	return nil
}

// Pop removes the most recently pushed value. Owner only.
//
// It returns false when the deque is empty or when a thief took the last
// element first. It never retries.
func (d *Deque[T]) Pop() (*T, bool) {
	b := d.bottom.Value.Load() - 1
	a := d.array.Load()
	d.bottom.Value.Store(b)
	t := d.top.Value.Load()

	if t > b {
		d.bottom.Value.Store(b + 1)
		return nil, false
	}

	v := a.Get(b)
	if t == b {
		// Last element: race the thieves for it through top.
		if !d.top.Value.CompareAndSwap(t, t+1) {
			d.bottom.Value.Store(b + 1)
			return nil, false
		}
		d.bottom.Value.Store(b + 1)
	}
	return v, true
}

// TryPop is Pop for callers that treat nil as "nothing". Callers that push
// nil values must use Pop to tell the two apart.
func (d *Deque[T]) TryPop() *T {
	v, _ := d.Pop()
	return v
}

// Steal takes the oldest value from the top. Safe from any goroutine.
func (d *Deque[T]) Steal() (*T, StealResult) {
	t := d.top.Value.Load()
	b := d.bottom.Value.Load()
	if t >= b {
		return nil, Empty
	}

	a := d.array.Load()
	v := a.Get(t)
	if !d.top.Value.CompareAndSwap(t, t+1) {
		return nil, Aborted
	}
	return v, Stolen
}

// Len returns a snapshot of the number of elements. It may be stale by the
// time it is used and never reports less than zero.
func (d *Deque[T]) Len() int {
	n := d.bottom.Value.Load() - d.top.Value.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Empty reports whether Len is zero.
func (d *Deque[T]) Empty() bool {
	return d.Len() == 0
}

// Cap returns the capacity of the current generation.
func (d *Deque[T]) Cap() int {
	return d.array.Load().Cap()
}

// Generations returns how many backing arrays the deque has allocated. All
// of them stay reachable until the deque itself is unreachable.
func (d *Deque[T]) Generations() int {
	return d.array.Load().Generation()
}
