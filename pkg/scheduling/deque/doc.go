/*
Package deque provides a lock-free work-stealing deque.

Deque implements the dynamic circular work-stealing deque of Chase and Lev
("Dynamic Circular Work-Stealing Deque", SPAA 2005). One goroutine owns the
deque and pushes and pops at the bottom; any number of other goroutines may
concurrently steal from the top:

	d, _ := deque.New[job](0) // DefaultCapacity slots

	// owner
	d.Push(&job{id: 1})
	if j, ok := d.Pop(); ok {
		run(j)
	}

	// thief, on another goroutine
	switch j, res := d.Steal(); res {
	case deque.Stolen:
		run(j)
	case deque.Aborted:
		// lost a race; try again or look elsewhere
	case deque.Empty:
	}

The owner sees its own work in LIFO order; thieves take the oldest work first.
Owner and thieves only contend when a single element remains, and that race
is settled by one compare-and-swap on the top index.

# Storage

Elements live in a CircularArray whose capacity is a power of two. When a
push finds the array full, the owner allocates a generation of twice the size,
copies the live range at the same indices and publishes it. Older generations
are never reused or freed while the deque is alive: each generation links to
its predecessor, so a thief still reading through a stale generation reads a
valid slot.

Values are stored as *T in atomic.Pointer slots, which keeps every slot a
single machine word that can be loaded and stored without tearing.
*/
package deque
