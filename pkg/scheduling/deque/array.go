package deque

import (
	"sync/atomic"

	gferrors "github.com/vnykmshr/stealflow/pkg/common/errors"
	"github.com/vnykmshr/stealflow/pkg/common/validation"
)

// MaxCapacity is the largest number of slots a single generation may hold.
// Growing past it fails with errors.ErrCapacityExceeded.
const MaxCapacity = 1 << 30

// CircularArray is one generation of a deque's backing storage: a fixed,
// power-of-two ring of atomically accessed slots addressed by unbounded
// 64-bit indices.
//
// A generation that has been grown from keeps its predecessor reachable for
// as long as it is itself reachable. A stealer that loaded an older generation
// before the owner swapped it out can therefore still read from it safely.
type CircularArray[T any] struct {
	mask  int64
	slots []atomic.Pointer[T]
	prev  *CircularArray[T]
}

// NewCircularArray allocates a generation with the given number of slots.
// The capacity must be a positive power of two.
func NewCircularArray[T any](capacity int) (*CircularArray[T], error) {
	if err := validation.ValidatePowerOfTwo("deque", "capacity", capacity); err != nil {
		return nil, err
	}
	if capacity > MaxCapacity {
		return nil, gferrors.NewOperationError("deque", "NewCircularArray", gferrors.ErrCapacityExceeded)
	}
	return &CircularArray[T]{
		mask:  int64(capacity - 1),
		slots: make([]atomic.Pointer[T], capacity),
	}, nil
}

// Cap returns the number of slots.
func (a *CircularArray[T]) Cap() int {
	return int(a.mask + 1)
}

// Get loads the slot for index i.
func (a *CircularArray[T]) Get(i int64) *T {
	return a.slots[i&a.mask].Load()
}

// Put stores v into the slot for index i.
func (a *CircularArray[T]) Put(i int64, v *T) {
	a.slots[i&a.mask].Store(v)
}

// Grow returns a generation of twice the capacity holding the live range
// [top, bottom) at the same indices. The receiver becomes its predecessor.
func (a *CircularArray[T]) Grow(top, bottom int64) (*CircularArray[T], error) {
	n := 2 * a.Cap()
	if n > MaxCapacity {
		return nil, gferrors.NewOperationError("deque", "Grow", gferrors.ErrCapacityExceeded)
	}
	next := &CircularArray[T]{
		mask:  int64(n - 1),
		slots: make([]atomic.Pointer[T], n),
		prev:  a,
	}
	for i := top; i < bottom; i++ {
		next.Put(i, a.Get(i))
	}
	return next, nil
}

// Previous returns the generation this one grew from, or nil.
func (a *CircularArray[T]) Previous() *CircularArray[T] {
	return a.prev
}

// Generation returns 1 for a freshly allocated array and one more for each growth.
func (a *CircularArray[T]) Generation() int {
	n := 0
	for g := a; g != nil; g = g.prev {
		n++
	}
	return n
}
