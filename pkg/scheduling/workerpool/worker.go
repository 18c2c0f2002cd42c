package workerpool

import (
	"encoding/binary"
	"math"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"lukechampine.com/frand"

	"github.com/vnykmshr/stealflow/pkg/common/cacheline"
	"github.com/vnykmshr/stealflow/pkg/metrics"
	"github.com/vnykmshr/stealflow/pkg/scheduling/deque"
)

// spinsBeforeSleep is how many idle checks a worker makes, yielding between
// each, before it starts sleeping with MaxIdleBackoff.
const spinsBeforeSleep = 64

type counters struct {
	executed        atomic.Uint64
	failed          atomic.Uint64
	spawned         atomic.Uint64
	dealsAttempted  atomic.Uint64
	dealsSucceeded  atomic.Uint64
	stealAttempts   atomic.Uint64
	steals          atomic.Uint64
	mailboxReceived atomic.Uint64
	idleSpins       atomic.Uint64
}

// Worker owns one deque and runs on one OS thread. Tasks receive the worker
// they run on, and only that worker may Spawn onto its deque.
type Worker struct {
	id    int
	pool  *Pool
	deque *deque.Deque[Task]
	rng   *frand.RNG

	// nextDeal is only touched by the owning goroutine.
	nextDeal time.Time

	stats cacheline.Padded[counters]
}

func newWorker(p *Pool, id int, seed Seeder) (*Worker, error) {
	d, err := deque.New[Task](p.config.InitialDequeCapacity)
	if err != nil {
		return nil, err
	}

	var s [32]byte
	for k := 0; k < 4; k++ {
		binary.LittleEndian.PutUint64(s[8*k:], seed.Uint64())
	}

	return &Worker{
		id:    id,
		pool:  p,
		deque: d,
		rng:   frand.NewCustom(s[:], 1024, 12),
	}, nil
}

// ID returns the worker's index within its pool.
func (w *Worker) ID() int { return w.id }

// Pool returns the pool the worker belongs to.
func (w *Worker) Pool() *Pool { return w.pool }

// Len returns the number of tasks waiting in the worker's deque.
func (w *Worker) Len() int { return w.deque.Len() }

// Spawn pushes a task onto the worker's own deque. It must only be called
// from a task running on w.
func (w *Worker) Spawn(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	w.pool.outstanding.Value.Add(1)
	if err := w.deque.Push(&task); err != nil {
		w.pool.finish()
		return err
	}
	w.stats.Value.spawned.Add(1)
	return nil
}

func (w *Worker) run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p := w.pool
	defer p.logger.Debug().Int("worker", w.id).Msg("worker-exiting")

	for {
		if p.shutdown.Value.Load() {
			return nil
		}

		t, ok := w.deque.Pop()
		if !ok {
			if t = w.idle(); t == nil {
				return nil
			}
		}

		if len(p.workers) > 1 {
			w.deal()
		}

		if err := w.execute(*t); err != nil {
			// fail before finish, so Wait never sees zero outstanding
			// without also seeing the failure.
			p.fail(err)
			p.finish()
			return err
		}
		p.finish()
	}
}

func (w *Worker) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{WorkerID: w.id, Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
		if err != nil {
			w.stats.Value.failed.Add(1)
			w.pool.logger.Error().Err(err).Int("worker", w.id).Msg("task-failed")
			return
		}
		w.stats.Value.executed.Add(1)
	}()

	if err := task(w); err != nil {
		return &TaskError{WorkerID: w.id, Err: err}
	}
	return nil
}

// idle finds the next task once the local deque is empty. It returns nil
// only when the pool is shutting down.
func (w *Worker) idle() *Task {
	p := w.pool
	if t := p.inject.take(w.id); t != nil {
		return t
	}

	if t := p.mail.markIdle(w.id); t != nil {
		w.stats.Value.mailboxReceived.Add(1)
		return t
	}
	for spins := 0; ; spins++ {
		if p.shutdown.Value.Load() {
			p.mail.retract(w.id)
			return nil
		}
		if t := p.mail.take(w.id); t != nil {
			w.stats.Value.mailboxReceived.Add(1)
			return t
		}
		if t := p.inject.take(w.id); t != nil {
			return w.claim(t)
		}
		if !p.config.DisableStealing && len(p.workers) > 1 {
			if t := w.stealFromPeer(); t != nil {
				return w.claim(t)
			}
		}
		w.stats.Value.idleSpins.Add(1)
		w.pause(spins)
	}
}

// claim closes the mailbox after the worker found t by other means. A task
// delivered in the meantime takes priority and t goes onto the deque.
func (w *Worker) claim(t *Task) *Task {
	posted := w.pool.mail.retract(w.id)
	if posted == nil {
		return t
	}
	w.stats.Value.mailboxReceived.Add(1)
	if err := w.deque.Push(t); err != nil {
		w.pool.fail(err)
	}
	return posted
}

func (w *Worker) stealFromPeer() *Task {
	victim := w.pool.workers[w.randomPeer()]
	w.stats.Value.stealAttempts.Add(1)
	t, res := victim.deque.Steal()
	if res != deque.Stolen {
		return nil
	}
	w.stats.Value.steals.Add(1)
	return t
}

// randomPeer picks a worker other than w uniformly. The pool must have at
// least two workers.
func (w *Worker) randomPeer() int {
	j := w.rng.Intn(len(w.pool.workers) - 1)
	if j >= w.id {
		j++
	}
	return j
}

// deal hands the oldest local task to a random peer if that peer is idle.
// The task is taken off the deque the same way a thief would take it, so it
// cannot also be popped or stolen, and goes back on the deque if the peer
// stops being idle first.
func (w *Worker) deal() {
	p := w.pool
	now := p.config.Clock.Now()
	if !now.After(w.nextDeal) || w.deque.Empty() {
		return
	}

	j := w.randomPeer()
	if p.mail.idle(j) {
		w.stats.Value.dealsAttempted.Add(1)
		if t, res := w.deque.Steal(); res == deque.Stolen {
			if p.mail.post(j, t) {
				w.stats.Value.dealsSucceeded.Add(1)
			} else if err := w.deque.Push(t); err != nil {
				p.fail(err)
			}
		}
	}

	w.nextDeal = now.Add(-dealDelay(w.rng, p.config.ExpectedTaskDuration))
}

// dealDelay draws from an exponential distribution with the given mean,
// truncated to whole nanoseconds.
func dealDelay(rng *frand.RNG, mean time.Duration) time.Duration {
	u := rng.Float64()
	return time.Duration(-math.Log1p(-u) * float64(mean))
}

func (w *Worker) pause(spins int) {
	limit := w.pool.config.MaxIdleBackoff
	if limit <= 0 || spins < spinsBeforeSleep {
		runtime.Gosched()
		return
	}
	d := time.Microsecond << min(spins-spinsBeforeSleep, 20)
	if d > limit {
		d = limit
	}
	time.Sleep(d)
}

func (w *Worker) snapshot() metrics.WorkerSample {
	c := &w.stats.Value
	return metrics.WorkerSample{
		Worker:          w.id,
		Executed:        c.executed.Load(),
		Failed:          c.failed.Load(),
		Spawned:         c.spawned.Load(),
		DealsAttempted:  c.dealsAttempted.Load(),
		DealsSucceeded:  c.dealsSucceeded.Load(),
		StealAttempts:   c.stealAttempts.Load(),
		Steals:          c.steals.Load(),
		MailboxReceived: c.mailboxReceived.Load(),
		IdleSpins:       c.idleSpins.Load(),
		QueueLength:     w.deque.Len(),
		Generations:     w.deque.Generations(),
	}
}
