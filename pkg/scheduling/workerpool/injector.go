package workerpool

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// injector buffers tasks submitted from outside the pool. Each worker has an
// affine queue for SubmitTo and all workers share one queue for Submit.
//
// Workers consult the injector only when their own deque is empty, so the
// lock is never on the hot path. The per-queue counts let an idle worker see
// that there is nothing for it without taking the lock.
type injector struct {
	mu     sync.Mutex
	queues []*queue.Queue // index n is the shared queue
	counts []atomic.Int64
}

func newInjector(n int) *injector {
	in := &injector{
		queues: make([]*queue.Queue, n+1),
		counts: make([]atomic.Int64, n+1),
	}
	for i := range in.queues {
		in.queues[i] = queue.New()
	}
	return in
}

func (in *injector) shared() int {
	return len(in.queues) - 1
}

// add queues t for worker target, or for any worker if target is negative.
func (in *injector) add(target int, t *Task) {
	if target < 0 {
		target = in.shared()
	}
	in.mu.Lock()
	in.queues[target].Add(t)
	in.counts[target].Add(1)
	in.mu.Unlock()
}

// take returns the oldest task queued for worker, falling back to the shared
// queue, or nil if there is none.
func (in *injector) take(worker int) *Task {
	if t := in.takeFrom(worker); t != nil {
		return t
	}
	return in.takeFrom(in.shared())
}

func (in *injector) takeFrom(q int) *Task {
	if in.counts[q].Load() == 0 {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.queues[q].Length() == 0 {
		return nil
	}
	in.counts[q].Add(-1)
	return in.queues[q].Remove().(*Task)
}

// pending returns the number of queued tasks.
func (in *injector) pending() int64 {
	var n int64
	for i := range in.counts {
		n += in.counts[i].Load()
	}
	return n
}
